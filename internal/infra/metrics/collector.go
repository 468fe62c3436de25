package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tuya-scale/internal/application"
	"tuya-scale/internal/domain"
)

// SnapshotReader is the read side of the coordinator.
type SnapshotReader interface {
	DeviceID() string
	CurrentSnapshot() (domain.DeviceSnapshot, bool)
	Status() application.Status
}

// Collector exports the held snapshot as gauges. Collect reads memory only;
// a scrape never reaches the vendor cloud.
type Collector struct {
	reader SnapshotReader

	available           prometheus.Gauge
	lastSuccess         prometheus.Gauge
	lastAttempt         prometheus.Gauge
	consecutiveFailures prometheus.Gauge
	propertyValue       *prometheus.GaugeVec
	propertyTimestamp   *prometheus.GaugeVec
}

func NewCollector(reader SnapshotReader) *Collector {
	constLabels := prometheus.Labels{"device_id": reader.DeviceID()}
	return &Collector{
		reader: reader,
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tuya_scale_available",
			Help:        "1 if the last fetch cycle succeeded",
			ConstLabels: constLabels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tuya_scale_last_success_timestamp_seconds",
			Help:        "Last successful fetch cycle (epoch seconds)",
			ConstLabels: constLabels,
		}),
		lastAttempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tuya_scale_last_attempt_timestamp_seconds",
			Help:        "Start of the most recent fetch cycle (epoch seconds)",
			ConstLabels: constLabels,
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tuya_scale_consecutive_failures",
			Help:        "Fetch cycles failed since the last success",
			ConstLabels: constLabels,
		}),
		propertyValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tuya_scale_property_value",
			Help:        "Normalized numeric value of a device property (booleans as 0/1)",
			ConstLabels: constLabels,
		}, []string{"code"}),
		propertyTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tuya_scale_property_timestamp_seconds",
			Help:        "Device-reported time of a property (epoch seconds)",
			ConstLabels: constLabels,
		}, []string{"code"}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.available.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.lastAttempt.Describe(ch)
	c.consecutiveFailures.Describe(ch)
	c.propertyValue.Describe(ch)
	c.propertyTimestamp.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status := c.reader.Status()
	c.available.Set(boolToFloat(status.Available))
	c.consecutiveFailures.Set(float64(status.ConsecutiveFailures))
	setTimestamp(c.lastSuccess, status.LastSuccess.Unix(), !status.LastSuccess.IsZero())
	setTimestamp(c.lastAttempt, status.LastAttempt.Unix(), !status.LastAttempt.IsZero())

	c.propertyValue.Reset()
	c.propertyTimestamp.Reset()
	if snap, ok := c.reader.CurrentSnapshot(); ok {
		for _, code := range snap.Codes() {
			rec := snap[code]
			if v, ok := domain.NumericValue(rec.Value); ok {
				c.propertyValue.WithLabelValues(code).Set(v)
			}
			if rec.Timestamp > 0 {
				c.propertyTimestamp.WithLabelValues(code).Set(float64(rec.Timestamp) / 1000)
			}
		}
	}

	c.available.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.lastAttempt.Collect(ch)
	c.consecutiveFailures.Collect(ch)
	c.propertyValue.Collect(ch)
	c.propertyTimestamp.Collect(ch)
}

func setTimestamp(g prometheus.Gauge, unix int64, ok bool) {
	if !ok {
		g.Set(0)
		return
	}
	g.Set(float64(unix))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
