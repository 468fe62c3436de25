package domain

import (
	"strconv"
	"strings"
)

const (
	DeviceName         = "Tuya Smart Scale"
	DeviceManufacturer = "Tuya"
	DeviceModel        = "Smart Scale"
)

const (
	UnitGrams      = "g"
	UnitResistance = "Ω"
)

type StateClass string

const (
	StateClassNone            StateClass = ""
	StateClassMeasurement     StateClass = "measurement"
	StateClassTotalIncreasing StateClass = "total_increasing"
)

// Sensor describes how one snapshot property is presented to consumers.
type Sensor struct {
	Key         string
	Name        string
	Unit        string
	Icon        string
	DeviceClass string
	StateClass  StateClass
	Binary      bool
}

// UniqueID is the stable entity identity for this sensor on a device.
func (s Sensor) UniqueID(deviceID string) string {
	return deviceID + "_" + s.Key
}

// FriendlyName prefixes the sensor name with the device name.
func (s Sensor) FriendlyName() string {
	return DeviceName + " " + s.Name
}

var Sensors = []Sensor{
	{Key: "weight", Name: "Weight", Unit: UnitGrams, Icon: "mdi:scale-bathroom", DeviceClass: "weight", StateClass: StateClassMeasurement},
	{Key: "BR", Name: "Body Resistance", Unit: UnitResistance, Icon: "mdi:omega", StateClass: StateClassMeasurement},
	{Key: "weightcount", Name: "Measurement Count", Icon: "mdi:counter", StateClass: StateClassTotalIncreasing},
	{Key: "LResistance", Name: "Left Resistance", Unit: UnitResistance, Icon: "mdi:omega", StateClass: StateClassMeasurement},
	{Key: "RHR", Name: "Right High Resistance", Unit: UnitResistance, Icon: "mdi:omega", StateClass: StateClassMeasurement},
	{Key: "LLR", Name: "Left Low Resistance", Unit: UnitResistance, Icon: "mdi:omega", StateClass: StateClassMeasurement},
	{Key: "RLR", Name: "Right Low Resistance", Unit: UnitResistance, Icon: "mdi:omega", StateClass: StateClassMeasurement},
	{Key: "battery", Name: "Battery Status", Icon: "mdi:battery", DeviceClass: "battery", Binary: true},
}

// AvailableSensors returns the sensors whose keys are present in the snapshot.
func AvailableSensors(s DeviceSnapshot) []Sensor {
	var out []Sensor
	for _, sensor := range Sensors {
		if _, ok := s[sensor.Key]; ok {
			out = append(out, sensor)
		}
	}
	return out
}

// SensorValue returns the display value of a record. Weight is stored in
// kilograms in the snapshot and reported in grams by the weight sensor.
func SensorValue(sensor Sensor, rec PropertyRecord) any {
	if rec.Value == nil {
		return nil
	}
	if sensor.Key == "weight" {
		if v, ok := NumericValue(rec.Value); ok {
			return v * 1000
		}
	}
	return rec.Value
}

// NumericValue converts a normalized value into a float64 where that makes
// sense. Booleans map to 0/1.
func NumericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
