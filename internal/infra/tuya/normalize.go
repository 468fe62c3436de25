package tuya

import (
	"strconv"
	"strings"
	"time"

	"tuya-scale/internal/domain"
)

// LastUpdateLayout formats the human readable last update of a record.
const LastUpdateLayout = "2006-01-02 15:04:05"

// converter maps a raw property value to its normalized value. lastUpdate is
// the formatted timestamp of the same property.
type converter func(prop domain.RawProperty, lastUpdate string) any

// conversions holds the per-code value conversions. Codes without an entry
// pass their value through unchanged.
var conversions = map[string]converter{
	"weight":  convertWeight,
	"battery": convertBattery,
	"time":    convertTime,
}

// Normalizer turns the vendor property list into a DeviceSnapshot.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer formats timestamps in loc, or in local time when loc is nil.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Normalize builds a snapshot from props. Later duplicates of a code replace
// earlier ones.
func (n *Normalizer) Normalize(props []domain.RawProperty) domain.DeviceSnapshot {
	snapshot := make(domain.DeviceSnapshot, len(props))
	for _, prop := range props {
		lastUpdate := time.UnixMilli(prop.Time).In(n.loc).Format(LastUpdateLayout)

		value := prop.Value
		if convert, ok := conversions[prop.Code]; ok {
			value = convert(prop, lastUpdate)
		}

		snapshot[prop.Code] = domain.PropertyRecord{
			Value:      value,
			Timestamp:  prop.Time,
			Type:       prop.Type,
			LastUpdate: lastUpdate,
		}
	}
	return snapshot
}

func convertWeight(prop domain.RawProperty, _ string) any {
	switch v := prop.Value.(type) {
	case float64:
		return v / 1000
	case int:
		return float64(v) / 1000
	case int64:
		return float64(v) / 1000
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f / 1000
		}
	}
	return prop.Value
}

func convertBattery(prop domain.RawProperty, _ string) any {
	return truthy(prop.Value)
}

func convertTime(prop domain.RawProperty, lastUpdate string) any {
	if prop.Type != "string" {
		return prop.Value
	}
	if s, ok := prop.Value.(string); prop.Value == nil || (ok && s == "") {
		return lastUpdate
	}
	return prop.Value
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
