package sensors

import (
	"time"

	"github.com/XANi/homebrainz2prom/device"
)

type Sensor interface {
	// Collect extracts this sensor's reading from a snapshot and pushes
	// it down the metric queue. A missing source field is not an error,
	// the sensor just emits nothing.
	Collect(snap *device.Snapshot) error
}

type Metric struct {
	Name   string
	Labels map[string]string
	Value  float64
	TS     time.Time
}

// Clone makes a copy with its own label map so fan-out consumers can
// decorate labels without racing each other.
func (m Metric) Clone() Metric {
	labels := make(map[string]string, len(m.Labels))
	for k, v := range m.Labels {
		labels[k] = v
	}
	m.Labels = labels
	return m
}

type DeviceClass string
