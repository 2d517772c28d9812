package sensors

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassAQI DeviceClass = "aqi"

// AQISensor reports the ENS160 air quality index, a unitless 1-5 scale.
type AQISensor struct {
	device string
	sensor string
	queue  chan Metric
}

func (t *AQISensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.ENS160 == nil || snap.Sensors.ENS160.AQI == nil {
		return nil
	}
	metric := Metric{
		Name: "air_quality_index",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
		},
	}
	metric.Value = *snap.Sensors.ENS160.AQI
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewAQISensor(log *zap.SugaredLogger, deviceName string, out chan Metric) *AQISensor {
	ts := &AQISensor{device: deviceName, sensor: "ens160"}
	ts.queue = out
	return ts
}
