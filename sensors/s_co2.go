package sensors

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassCO2 DeviceClass = "carbon_dioxide"

type CO2Sensor struct {
	device string
	sensor string
	queue  chan Metric
}

func (t *CO2Sensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.ENS160 == nil || snap.Sensors.ENS160.CO2 == nil {
		return nil
	}
	metric := Metric{
		Name: "co2",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
			"unit":   "ppm",
		},
	}
	metric.Value = *snap.Sensors.ENS160.CO2
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewCO2Sensor(log *zap.SugaredLogger, deviceName string, out chan Metric) *CO2Sensor {
	ts := &CO2Sensor{device: deviceName, sensor: "ens160"}
	ts.queue = out
	return ts
}
