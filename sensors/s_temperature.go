package sensors

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassTemperature DeviceClass = "temperature"

type TemperatureSensor struct {
	device     string
	sensor     string
	conversion func(float64) float64
	queue      chan Metric
}

func (t *TemperatureSensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.AHT20 == nil || snap.Sensors.AHT20.Temperature == nil {
		return nil
	}
	metric := Metric{
		Name: "temperature",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
		},
	}
	metric.Value = t.conversion(*snap.Sensors.AHT20.Temperature)
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewTemperatureSensor(log *zap.SugaredLogger, deviceName string, unit string, out chan Metric) *TemperatureSensor {
	s := &TemperatureSensor{device: deviceName, sensor: "aht20"}
	if strings.Contains(strings.ToUpper(unit), "K") {
		s.conversion = func(k float64) (c float64) { return k - 273.15 }
	} else if strings.Contains(strings.ToUpper(unit), "F") {
		s.conversion = func(f float64) (c float64) {
			return float64(math.Round((f-32.0)*(5.0/9.0)*10.0)) / 10.0
		}
	} else {
		s.conversion = func(c float64) float64 { return c }
	}
	s.queue = out
	return s
}
