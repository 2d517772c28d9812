package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"github.com/XANi/homebrainz2prom/sensors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Commander is the slice of device.Client the command topics need.
type Commander interface {
	SetBrightness(ctx context.Context, level int) error
	SetScreens(ctx context.Context, screens []string) error
	StartOTAUpdate(ctx context.Context, url string) error
	OTA(ctx context.Context) (*device.OTAStatus, error)
}

type Config struct {
	MQTTAddr  string
	Logger    *zap.SugaredLogger
	Commander Commander
	// DeviceID is the stable id used in topics and unique ids, MAC
	// address when the device reports one
	DeviceID   string
	DeviceName string
	SWVersion  string
	// Host of the device, for the configuration URL in discovery
	Host string
}

// Bridge publishes the device to Home Assistant over MQTT discovery and
// relays HA commands back to it.
type Bridge struct {
	client     mqtt.Client
	l          *zap.SugaredLogger
	cmd        Commander
	deviceID   string
	deviceName string
	swVersion  string
	host       string
	base       string

	sync.RWMutex
	screens []string
	ota     *device.OTAStatus
}

func New(cfg *Config) (*Bridge, error) {
	mqttURL, err := url.Parse(cfg.MQTTAddr)
	if err != nil {
		return nil, fmt.Errorf("cannot parse MQTT URL: %w", err)
	}
	p, _ := mqttURL.User.Password()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTAddr).
		SetUsername(mqttURL.User.Username()).
		SetPassword(p).
		SetClientID("homebrainz2prom").
		SetKeepAlive(2 * time.Second).
		SetPingTimeout(1 * time.Second)

	b := &Bridge{
		client:     mqtt.NewClient(opts),
		l:          cfg.Logger,
		cmd:        cfg.Commander,
		deviceID:   topicSafe(cfg.DeviceID),
		deviceName: cfg.DeviceName,
		swVersion:  cfg.SWVersion,
		host:       cfg.Host,
	}
	b.base = "homebrainz/" + b.deviceID
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("cannot connect to MQTT broker: %w", token.Error())
	}
	if err := b.publishDiscovery(); err != nil {
		return nil, err
	}
	if err := b.subscribeCommands(); err != nil {
		return nil, err
	}
	// entities stay unavailable until the first successful poll
	b.SetAvailability(false)
	return b, nil
}

// topicSafe turns MAC addresses and hostnames into something usable in an
// MQTT topic and a HA unique id.
func topicSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '#', '+', ' ', '.':
			return '_'
		}
		return r
	}, strings.ToLower(s))
}

func (b *Bridge) stateTopic(name string) string {
	return b.base + "/" + name + "/state"
}

func (b *Bridge) availabilityTopic() string {
	return b.base + "/availability"
}

func (b *Bridge) brightnessStateTopic() string {
	return b.base + "/brightness/state"
}

func (b *Bridge) brightnessCommandTopic() string {
	return b.base + "/brightness/set"
}

func (b *Bridge) screenStateTopic(id string) string {
	return b.base + "/screen/" + id + "/state"
}

func (b *Bridge) screenCommandTopic(id string) string {
	return b.base + "/screen/" + id + "/set"
}

func (b *Bridge) firmwareStateTopic() string {
	return b.base + "/firmware/state"
}

func (b *Bridge) firmwareAttributesTopic() string {
	return b.base + "/firmware/attributes"
}

func (b *Bridge) firmwareCheckTopic() string {
	return b.base + "/firmware/check"
}

func (b *Bridge) firmwareInstallTopic() string {
	return b.base + "/firmware/install"
}

func (b *Bridge) publishDiscovery() error {
	for _, msg := range b.discoveryMessages() {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("cannot marshal discovery for %s: %w", msg.Topic, err)
		}
		if token := b.client.Publish(msg.Topic, 0, true, payload); token.Wait() && token.Error() != nil {
			return fmt.Errorf("cannot publish discovery to %s: %w", msg.Topic, token.Error())
		}
	}
	b.l.Infof("published discovery for device %s", b.deviceID)
	return nil
}

func (b *Bridge) subscribeCommands() error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.brightnessCommandTopic(), b.onBrightness},
		{b.base + "/screen/+/set", b.onScreen},
		{b.firmwareCheckTopic(), b.onFirmwareCheck},
		{b.firmwareInstallTopic(), b.onFirmwareInstall},
	}
	for _, sub := range subs {
		if token := b.client.Subscribe(sub.topic, 0, sub.handler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("cannot subscribe to %s: %w", sub.topic, token.Error())
		}
	}
	return nil
}

// Run consumes the metric stream and republishes values on their state
// topics. Blocks until the channel closes.
func (b *Bridge) Run(in <-chan sensors.Metric) {
	for m := range in {
		value := strconv.FormatFloat(m.Value, 'f', -1, 64)
		if token := b.client.Publish(b.stateTopic(m.Name), 0, false, value); token.Wait() && token.Error() != nil {
			b.l.Warnf("could not publish %s: %s", m.Name, token.Error())
		}
	}
}

// PublishSnapshot pushes the non-metric entity states: brightness, screen
// switches and firmware update state.
func (b *Bridge) PublishSnapshot(snap *device.Snapshot) {
	b.Lock()
	if snap.Screens != nil {
		b.screens = snap.Screens
	}
	if snap.OTA != nil {
		b.ota = snap.OTA
	}
	screens := b.screens
	ota := b.ota
	b.Unlock()

	if snap.Status != nil && snap.Status.Brightness != nil {
		b.publish(b.brightnessStateTopic(), strconv.Itoa(*snap.Status.Brightness), false)
	}
	if screens != nil {
		enabled := map[string]bool{}
		for _, s := range screens {
			enabled[s] = true
		}
		for _, screen := range device.DefaultScreenOrder {
			state := "OFF"
			if enabled[screen] {
				state = "ON"
			}
			b.publish(b.screenStateTopic(screen), state, false)
		}
	}
	if ota != nil {
		b.publishOTA(ota)
	}
}

func (b *Bridge) publishOTA(ota *device.OTAStatus) {
	state := "OFF"
	if ota.UpdateAvailable {
		state = "ON"
	}
	b.publish(b.firmwareStateTopic(), state, false)
	attrs, err := json.Marshal(map[string]string{
		"current_firmware_id": ota.CurrentFirmwareID,
		"latest_firmware_id":  ota.LatestFirmwareID,
		"current_version":     ota.CurrentVersion,
		"latest_version":      ota.LatestVersion,
		"download_url":        ota.DownloadURL,
		"release_notes":       ota.ReleaseNotes,
	})
	if err == nil {
		b.publish(b.firmwareAttributesTopic(), string(attrs), false)
	}
}

// SetAvailability publishes the retained availability flag the discovery
// configs point at.
func (b *Bridge) SetAvailability(online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	b.publish(b.availabilityTopic(), state, true)
}

func (b *Bridge) publish(topic, payload string, retain bool) {
	if token := b.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		b.l.Warnf("could not publish to %s: %s", topic, token.Error())
	}
}

func (b *Bridge) onBrightness(c mqtt.Client, m mqtt.Message) {
	level, err := strconv.Atoi(strings.TrimSpace(string(m.Payload())))
	if err != nil {
		b.l.Warnf("could not parse brightness command [%s]: %s", string(m.Payload()), err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := b.cmd.SetBrightness(ctx, level); err != nil {
		b.l.Warnf("set_brightness failed: %s", err)
		return
	}
	b.publish(b.brightnessStateTopic(), strconv.Itoa(level), false)
}

func (b *Bridge) onScreen(c mqtt.Client, m mqtt.Message) {
	parts := strings.Split(m.Topic(), "/")
	if len(parts) < 2 {
		return
	}
	screen := parts[len(parts)-2]
	if _, ok := ScreenLabels[screen]; !ok {
		b.l.Warnf("command for unknown screen [%s]", screen)
		return
	}
	enable := strings.EqualFold(strings.TrimSpace(string(m.Payload())), "ON")

	b.RLock()
	current := b.screens
	b.RUnlock()
	next := nextScreens(current, screen, enable)
	if next == nil {
		b.l.Warnf("refusing to disable last enabled screen [%s]", screen)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := b.cmd.SetScreens(ctx, next); err != nil {
		b.l.Warnf("screen update failed: %s", err)
		return
	}
	b.Lock()
	b.screens = next
	b.Unlock()
	state := "OFF"
	if enable {
		state = "ON"
	}
	b.publish(b.screenStateTopic(screen), state, false)
}

// nextScreens recomputes the enabled screen list in canonical order. Nil
// means the change would disable the last screen and must be refused.
func nextScreens(current []string, screen string, enable bool) []string {
	enabled := map[string]bool{}
	for _, s := range current {
		enabled[s] = true
	}
	enabled[screen] = enable
	next := make([]string, 0, len(device.DefaultScreenOrder))
	for _, s := range device.DefaultScreenOrder {
		if enabled[s] {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		return nil
	}
	return next
}

func (b *Bridge) onFirmwareCheck(c mqtt.Client, m mqtt.Message) {
	ctx, cancel := commandContext()
	defer cancel()
	ota, err := b.cmd.OTA(ctx)
	if err != nil {
		b.l.Warnf("firmware check failed: %s", err)
		return
	}
	b.Lock()
	b.ota = ota
	b.Unlock()
	b.publishOTA(ota)
}

func (b *Bridge) onFirmwareInstall(c mqtt.Client, m mqtt.Message) {
	b.RLock()
	ota := b.ota
	b.RUnlock()
	if ota == nil || ota.DownloadURL == "" {
		b.l.Warnf("no firmware download url known, run a check first")
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := b.cmd.StartOTAUpdate(ctx, ota.DownloadURL); err != nil {
		b.l.Warnf("firmware update failed: %s", err)
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Close flags the device offline and disconnects from the broker.
func (b *Bridge) Close() {
	b.SetAvailability(false)
	b.client.Disconnect(250)
}
