package sensors

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassHumidity DeviceClass = "humidity"

type HumiditySensor struct {
	device string
	sensor string
	queue  chan Metric
}

func (t *HumiditySensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.AHT20 == nil || snap.Sensors.AHT20.Humidity == nil {
		return nil
	}
	metric := Metric{
		Name: "humidity",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
		},
	}
	metric.Value = *snap.Sensors.AHT20.Humidity
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewHumiditySensor(log *zap.SugaredLogger, deviceName string, out chan Metric) *HumiditySensor {
	ts := &HumiditySensor{device: deviceName, sensor: "aht20"}
	ts.queue = out
	return ts
}
