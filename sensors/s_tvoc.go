package sensors

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

var DeviceClassTVOC DeviceClass = "volatile_organic_compounds_parts"

type TVOCSensor struct {
	device string
	sensor string
	queue  chan Metric
}

func (t *TVOCSensor) Collect(snap *device.Snapshot) error {
	if snap.Sensors == nil || snap.Sensors.ENS160 == nil || snap.Sensors.ENS160.TVOC == nil {
		return nil
	}
	metric := Metric{
		Name: "tvoc",
		Labels: map[string]string{
			"device": t.device,
			"sensor": t.sensor,
			"unit":   "ppb",
		},
	}
	metric.Value = *snap.Sensors.ENS160.TVOC
	metric.TS = snap.TS
	select {
	case t.queue <- metric:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("timeout on send queue")
	}
}

func NewTVOCSensor(log *zap.SugaredLogger, deviceName string, out chan Metric) *TVOCSensor {
	ts := &TVOCSensor{device: deviceName, sensor: "ens160"}
	ts.queue = out
	return ts
}
