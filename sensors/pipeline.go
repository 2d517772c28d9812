package sensors

import (
	"github.com/XANi/homebrainz2prom/device"
	"go.uber.org/zap"
)

type Pipeline struct {
	sensors []Sensor
	l       *zap.SugaredLogger
}

type PipelineConfig struct {
	Logger *zap.SugaredLogger
	// DeviceName goes into the device label of every metric
	DeviceName string
	// TemperatureUnit the device reports in, Celsius if empty
	TemperatureUnit string
	// PressureUnit the device reports in, hPa if empty
	PressureUnit string
	Out          chan Metric
}

// NewPipeline registers one sensor per entity the device exposes.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	l := cfg.Logger
	return &Pipeline{
		l: l,
		sensors: []Sensor{
			NewTemperatureSensor(l, cfg.DeviceName, cfg.TemperatureUnit, cfg.Out),
			NewHumiditySensor(l, cfg.DeviceName, cfg.Out),
			NewPressureSensor(l, cfg.DeviceName, cfg.PressureUnit, cfg.Out),
			NewAQISensor(l, cfg.DeviceName, cfg.Out),
			NewCO2Sensor(l, cfg.DeviceName, cfg.Out),
			NewTVOCSensor(l, cfg.DeviceName, cfg.Out),
			NewSignalStrengthSensor(l, cfg.DeviceName, cfg.Out),
		},
	}
}

// Dispatch runs every sensor against the snapshot. A sensor failing to
// push does not stop the rest.
func (p *Pipeline) Dispatch(snap *device.Snapshot) {
	for _, s := range p.sensors {
		if err := s.Collect(snap); err != nil {
			p.l.Warnf("could not process snapshot from %s: %s", snap.TS, err)
		}
	}
}

// Fanout tees the metric stream to every consumer. A consumer with a full
// queue gets a drop and a warning instead of stalling the poll loop.
func Fanout(log *zap.SugaredLogger, in <-chan Metric, outs ...chan<- Metric) {
	for m := range in {
		for _, out := range outs {
			select {
			case out <- m.Clone():
			default:
				log.Warnf("metric consumer queue full, dropping %s", m.Name)
			}
		}
	}
	for _, out := range outs {
		close(out)
	}
}
