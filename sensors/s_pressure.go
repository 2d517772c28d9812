package sensors

import (
	"fmt"
	"strings"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassPressure DeviceClass = "atmospheric_pressure"

type PressureSensor struct {
	device     string
	sensor     string
	conversion func(float64) float64
	queue      chan Metric
}

func (t *PressureSensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.BMP280 == nil || snap.Sensors.BMP280.Pressure == nil {
		return nil
	}
	metric := Metric{
		Name: "pressure",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
		},
	}
	metric.Value = t.conversion(*snap.Sensors.BMP280.Pressure)
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewPressureSensor(log *zap.SugaredLogger, deviceName string, unit string, out chan Metric) *PressureSensor {
	ts := &PressureSensor{device: deviceName, sensor: "bmp280"}
	switch strings.ToLower(unit) {
	case "", "hpa", "mbar":
		ts.conversion = func(c float64) float64 { return c }
	case "pa":
		ts.conversion = func(c float64) float64 { return c / 100 }
	case "kpa":
		ts.conversion = func(c float64) float64 { return c * 10 }
	default:
		log.Warnf("unknown pressure unit [%s], passing values through", unit)
		ts.conversion = func(c float64) float64 { return c }
	}
	ts.queue = out
	return ts
}
