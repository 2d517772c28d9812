package sensors

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassSignalStrength DeviceClass = "signal_strength"

// SignalStrengthSensor reports the device's own WiFi RSSI, which lives in
// /status rather than /sensors.
type SignalStrengthSensor struct {
	device string
	sensor string
	unit   string
	queue  chan Metric
}

func (t *SignalStrengthSensor) Collect(snap *device.Snapshot) error {
	if snap.Status == nil || snap.Status.RSSI == nil {
		return nil
	}
	metric := Metric{
		Name: "signal_strength",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
			"unit":   t.unit,
		},
	}
	metric.Value = *snap.Status.RSSI
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewSignalStrengthSensor(log *zap.SugaredLogger, deviceName string, out chan Metric) *SignalStrengthSensor {
	s := &SignalStrengthSensor{device: deviceName, sensor: "wifi", unit: "dBm"}
	s.queue = out
	return s
}
