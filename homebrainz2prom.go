package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/XANi/go-yamlcfg"
	"github.com/XANi/goneric"
	"github.com/XANi/homebrainz2prom/config"
	"github.com/XANi/homebrainz2prom/device"
	"github.com/XANi/homebrainz2prom/hass"
	"github.com/XANi/homebrainz2prom/poller"
	"github.com/XANi/homebrainz2prom/sensors"
	"github.com/XANi/homebrainz2prom/store"
	"github.com/XANi/homebrainz2prom/web"
	"github.com/XANi/promwriter"
	"github.com/efigence/go-mon"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string
var log *zap.SugaredLogger
var debug = true
var exit = make(chan error, 1)

// /* embeds with all files, just dir/ ignores files starting with _ or .
//
//go:embed static templates
var embeddedWebContent embed.FS

func init() {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	// naive systemd detection. Drop timestamp if running under it
	if os.Getenv("JOURNAL_STREAM") != "" {
		consoleEncoderConfig.TimeKey = ""
	}
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return (lvl < zapcore.ErrorLevel) != (lvl == zapcore.DebugLevel && !debug)
	})
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, os.Stderr, lowPriority),
		zapcore.NewCore(consoleEncoder, os.Stderr, highPriority),
	)
	logger := zap.New(core)
	if debug {
		logger = logger.WithOptions(
			zap.Development(),
			zap.AddCaller(),
			zap.AddStacktrace(highPriority),
		)
	} else {
		logger = logger.WithOptions(
			zap.AddCaller(),
		)
	}
	log = logger.Sugar()

}

func main() {
	defer log.Sync()
	// register internal stats
	mon.RegisterGcStats()
	app := &cli.Command{
		Name:        "homebrainz2prom",
		Description: "Poll HomeBrainz clock sensors into prometheus and Home Assistant",
		Version:     version,
		HideHelp:    true,
	}
	log.Infof("Starting %s version: %s", app.Name, version)
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "help, h", Usage: "show help"},
		&cli.BoolFlag{Name: "debug, d", Usage: "enable debug logs"},
		&cli.StringFlag{Name: "config, c",
			Usage: "config file. Will be created if it does not exist",
		},
		&cli.StringFlag{
			Name:     "device-addr",
			Usage:    "address of the HomeBrainz device",
			Required: true,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DEVICE_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "listen-addr",
			Usage: "Listen addr",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LISTEN_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "mqtt-addr",
			Usage: "mqtt broker address for Home Assistant discovery",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "prometheus-write-url",
			Usage: "prometheus write protocol url",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("PROMETHEUS_WRITE_URL"),
			),
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Value: 30 * time.Second,
			Usage: "how often to poll the device",
		},
		&cli.StringFlag{
			Name:  "db-dsn",
			Usage: "readings history DSN, sqlite file path by default, empty disables history",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DB_DSN"),
			),
		},
		&cli.StringFlag{
			Name:  "db-driver",
			Value: "sqlite",
			Usage: "readings history driver, sqlite or postgres",
		},
		&cli.StringFlag{
			Name:  "pprof-addr",
			Value: "",
			Usage: "address to run pprof on, disabled by default",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Value: "",
			Usage: "prefix for metrics name",
		},
		&cli.StringMapFlag{
			Name: "extra-labels",
			Value: map[string]string{
				"host": goneric.Must(os.Hostname()),
			},
			Usage: "comma separated key=value pairs of additional prometheus labels",
		},
	}
	app.Action = run
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	if c.Bool("help") {
		cli.ShowAppHelp(c)
		os.Exit(1)
	}
	cfg := config.Config{
		DeviceAddress:      c.String("device-addr"),
		PollInterval:       c.Duration("poll-interval").String(),
		ListenAddress:      c.String("listen-addr"),
		MQTTAddress:        c.String("mqtt-addr"),
		PrometheusWriteURL: c.String("prometheus-write-url"),
		PrometheusPrefix:   c.String("prefix"),
		DBDriver:           c.String("db-driver"),
		DBDSN:              c.String("db-dsn"),
		Debug:              c.Bool("debug"),
		PProfAddress:       c.String("pprof-addr"),
		ExtraLabels:        c.StringMap("extra-labels"),
	}
	if c.String("config") != "" {
		err := yamlcfg.LoadConfig([]string{c.String("config")}, &cfg)
		if err != nil {
			log.Fatal(err)
		}
	}
	debug = cfg.Debug
	log.Debug("debug enabled")

	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("bad poll_interval [%s]: %w", cfg.PollInterval, err)
	}
	retention := time.Duration(0)
	if cfg.Retention != "" {
		retention, err = time.ParseDuration(cfg.Retention)
		if err != nil {
			return fmt.Errorf("bad retention [%s]: %w", cfg.Retention, err)
		}
	}

	client, err := device.New(device.Config{
		Address: cfg.DeviceAddress,
		Logger:  log.Named("device"),
	})
	if err != nil {
		return err
	}
	// confirm it is actually a HomeBrainz device and learn its identity
	// before wiring anything up
	deviceID := client.Host()
	deviceName := "HomeBrainz Clock"
	swVersion := ""
	status, err := client.Validate(ctx)
	if err != nil {
		if cfg.RequireFirstPoll {
			return err
		}
		log.Warnf("device validation failed, starting anyway: %s", err)
	} else {
		if status.MacAddress != "" {
			deviceID = status.MacAddress
		}
		if status.Device != "" {
			deviceName = status.Device
		}
		swVersion = status.Version
		log.Infof("found device [%s] id [%s] fw [%s]", deviceName, deviceID, swVersion)
	}

	if len(cfg.PProfAddress) > 0 {
		log.Infof("listening pprof on %s", cfg.PProfAddress)
		go func() {
			log.Errorf("failed to start debug listener: %s (ignoring)", http.ListenAndServe(cfg.PProfAddress, nil))
		}()
	}

	var st *store.Store
	if cfg.DBDSN != "" {
		st, err = store.New(store.Config{
			Driver: cfg.DBDriver,
			DSN:    cfg.DBDSN,
			Logger: log.Named("store"),
		})
		if err != nil {
			return err
		}
		defer st.Close()
		if retention > 0 {
			go func() {
				ticker := time.NewTicker(time.Hour)
				defer ticker.Stop()
				for range ticker.C {
					pruned, err := st.Prune(retention)
					if err != nil {
						log.Warnf("prune failed: %s", err)
					} else if pruned > 0 {
						log.Infof("pruned %d readings older than %s", pruned, retention)
					}
				}
			}()
		}
	}

	var w *web.Web
	var webDir fs.FS
	webDir = embeddedWebContent
	if fi, err := os.Stat("./static"); err == nil && fi.IsDir() {
		if fi, err := os.Stat("./templates"); err == nil && fi.IsDir() {
			webDir = os.DirFS(".")
			log.Infof(`detected directories "static" and "templates", using local static files instead of ones embedded in binary`)
		}
	}
	if len(cfg.ListenAddress) > 0 {
		var history web.History
		if st != nil {
			history = st
		}
		w, err = web.New(web.Config{
			Logger:      log.Named("web"),
			ListenAddr:  cfg.ListenAddress,
			Prefix:      cfg.PrometheusPrefix,
			ExtraLabels: cfg.ExtraLabels,
			Commander:   client,
			History:     history,
			Debug:       cfg.Debug,
		}, webDir)
		if err != nil {
			log.Panicf("error starting web listener: %s", err)
		}
	}

	var bridge *hass.Bridge
	if len(cfg.MQTTAddress) > 0 {
		bridge, err = hass.New(&hass.Config{
			MQTTAddr:   cfg.MQTTAddress,
			Logger:     log.Named("mq"),
			Commander:  client,
			DeviceID:   deviceID,
			DeviceName: deviceName,
			SWVersion:  swVersion,
			Host:       client.Host(),
		})
		if err != nil {
			log.Panicf("error starting mqtt bridge: %s", err)
		}
		defer bridge.Close()
	}

	metricQueue := make(chan sensors.Metric, 128)
	consumers := []chan<- sensors.Metric{}
	if w != nil {
		webQueue := make(chan sensors.Metric, 128)
		go w.Collect(webQueue)
		consumers = append(consumers, webQueue)
	}
	if st != nil {
		storeQueue := make(chan sensors.Metric, 128)
		go st.Run(storeQueue)
		consumers = append(consumers, storeQueue)
	}
	if bridge != nil {
		mqttQueue := make(chan sensors.Metric, 128)
		go bridge.Run(mqttQueue)
		consumers = append(consumers, mqttQueue)
	}
	if len(cfg.PrometheusWriteURL) > 0 {
		promQueue := make(chan sensors.Metric, 128)
		go runPromWriter(cfg, promQueue)
		consumers = append(consumers, promQueue)
	}
	go sensors.Fanout(log.Named("fanout"), metricQueue, consumers...)

	pipeline := sensors.NewPipeline(sensors.PipelineConfig{
		Logger:     log.Named("sensors"),
		DeviceName: deviceName,
		Out:        metricQueue,
	})
	p, err := poller.New(poller.Config{
		Client:           client,
		Logger:           log.Named("poller"),
		Interval:         pollInterval,
		RequireFirstPoll: cfg.RequireFirstPoll,
		OnSnapshot: func(snap *device.Snapshot) {
			pipeline.Dispatch(snap)
			if w != nil {
				w.SetSnapshot(snap)
			}
			if bridge != nil {
				bridge.PublishSnapshot(snap)
			}
		},
		OnAvailabilityChange: func(available bool) {
			if available {
				mon.GlobalStatus.Update(mon.Ok, fmt.Sprintf("device %s available", client.Host()))
			} else {
				mon.GlobalStatus.Update(mon.Warning, fmt.Sprintf("device %s unavailable", client.Host()))
			}
			if bridge != nil {
				bridge.SetAvailability(available)
			}
		},
	})
	if err != nil {
		return err
	}
	go func() {
		exit <- p.Run(ctx)
	}()
	if w != nil {
		go func() {
			exit <- w.Run()
		}()
	}
	return <-exit
}

// runPromWriter feeds the metric stream into prometheus write protocol
func runPromWriter(cfg config.Config, in <-chan sensors.Metric) {
	promcfg := promwriter.Config{
		URL:              cfg.PrometheusWriteURL,
		MaxBatchDuration: time.Second * 1,
		MaxBatchLength:   10,
		Logger:           log.Named("promwriter"),
	}
	pw, err := promwriter.New(promcfg)
	if err != nil {
		log.Panicw("promwriter", "err", err)
	}
	for ev := range in {
		for k, v := range cfg.ExtraLabels {
			ev.Labels[k] = v
		}
		metric := promwriter.Metric{
			Name:   cfg.PrometheusPrefix + ev.Name,
			Labels: ev.Labels,
			TS:     ev.TS.UTC(),
			Value:  ev.Value,
		}
		err := pw.WriteMetric(metric)
		if err != nil {
			log.Warnf("error writing metric %+v: %s", metric, err)
		}
	}
}
