package hass

import (
	"github.com/XANi/homebrainz2prom/device"
)

const (
	manufacturer = "HomeBrainz"
	model        = "ESPTimeCast"
)

// ScreenLabels maps firmware screen ids to entity-friendly names.
var ScreenLabels = map[string]string{
	"clock":    "Clock",
	"temp":     "Temperature",
	"humidity": "Humidity",
	"pressure": "Pressure",
	"gas":      "Gas",
	"iaq":      "IAQ",
}

type discoveryMessage struct {
	Topic   string
	Payload Discovery
}

// sensorDef mirrors the sensors package pipeline, one entry per metric
// name it can emit.
type sensorDef struct {
	name        string
	friendly    string
	deviceClass string
	unit        string
}

var sensorDefs = []sensorDef{
	{name: "temperature", friendly: "Temperature", deviceClass: "temperature", unit: "°C"},
	{name: "humidity", friendly: "Humidity", deviceClass: "humidity", unit: "%"},
	{name: "pressure", friendly: "Pressure", deviceClass: "atmospheric_pressure", unit: "hPa"},
	{name: "air_quality_index", friendly: "Air Quality Index", deviceClass: "aqi"},
	{name: "co2", friendly: "CO2", deviceClass: "carbon_dioxide", unit: "ppm"},
	{name: "tvoc", friendly: "TVOC", deviceClass: "volatile_organic_compounds_parts", unit: "ppb"},
	{name: "signal_strength", friendly: "WiFi Signal", deviceClass: "signal_strength", unit: "dBm"},
}

// discoveryMessages builds the retained config payloads recreating the
// entity set of the original integration: seven sensors, the firmware
// update binary sensor and its two buttons, the brightness slider and one
// switch per display screen.
func (b *Bridge) discoveryMessages() []discoveryMessage {
	dev := &Device{
		ID:               b.deviceID,
		Name:             b.deviceName,
		SoftwareVersion:  b.swVersion,
		Model:            model,
		Manufacturer:     manufacturer,
		ConfigurationURL: "http://" + b.host,
	}
	msgs := make([]discoveryMessage, 0, len(sensorDefs)+len(device.DefaultScreenOrder)+4)
	for _, def := range sensorDefs {
		uid := b.deviceID + "_" + def.name
		msgs = append(msgs, discoveryMessage{
			Topic: "homeassistant/sensor/" + uid + "/config",
			Payload: Discovery{
				DeviceClass:       def.deviceClass,
				Unit:              def.unit,
				StateClass:        "measurement",
				Name:              def.friendly,
				StateTopic:        b.stateTopic(def.name),
				AvailabilityTopic: b.availabilityTopic(),
				UniqID:            uid,
				Dev:               dev,
			},
		})
	}
	uid := b.deviceID + "_firmware_update_available"
	msgs = append(msgs, discoveryMessage{
		Topic: "homeassistant/binary_sensor/" + uid + "/config",
		Payload: Discovery{
			DeviceClass:         "update",
			Name:                "Firmware Update Available",
			StateTopic:          b.firmwareStateTopic(),
			JSONAttributesTopic: b.firmwareAttributesTopic(),
			AvailabilityTopic:   b.availabilityTopic(),
			UniqID:              uid,
			EntityCategory:      "diagnostic",
			Dev:                 dev,
		},
	})
	uid = b.deviceID + "_firmware_check"
	msgs = append(msgs, discoveryMessage{
		Topic: "homeassistant/button/" + uid + "/config",
		Payload: Discovery{
			Name:              "Check Firmware Update",
			CommandTopic:      b.firmwareCheckTopic(),
			AvailabilityTopic: b.availabilityTopic(),
			UniqID:            uid,
			EntityCategory:    "diagnostic",
			Dev:               dev,
		},
	})
	uid = b.deviceID + "_firmware_install"
	msgs = append(msgs, discoveryMessage{
		Topic: "homeassistant/button/" + uid + "/config",
		Payload: Discovery{
			Name:              "Install Firmware Update",
			CommandTopic:      b.firmwareInstallTopic(),
			AvailabilityTopic: b.availabilityTopic(),
			UniqID:            uid,
			EntityCategory:    "diagnostic",
			Dev:               dev,
		},
	})
	uid = b.deviceID + "_brightness_level"
	msgs = append(msgs, discoveryMessage{
		Topic: "homeassistant/number/" + uid + "/config",
		Payload: Discovery{
			Name:              "Display Brightness",
			StateTopic:        b.brightnessStateTopic(),
			CommandTopic:      b.brightnessCommandTopic(),
			AvailabilityTopic: b.availabilityTopic(),
			UniqID:            uid,
			Icon:              "mdi:brightness-6",
			Min:               intPtr(device.BrightnessMin),
			Max:               intPtr(device.BrightnessMax),
			Step:              intPtr(1),
			Mode:              "slider",
			Dev:               dev,
		},
	})
	for _, screen := range device.DefaultScreenOrder {
		uid := b.deviceID + "_screen_" + screen
		msgs = append(msgs, discoveryMessage{
			Topic: "homeassistant/switch/" + uid + "/config",
			Payload: Discovery{
				Name:              "Screen " + ScreenLabels[screen],
				StateTopic:        b.screenStateTopic(screen),
				CommandTopic:      b.screenCommandTopic(screen),
				AvailabilityTopic: b.availabilityTopic(),
				UniqID:            uid,
				EntityCategory:    "config",
				Dev:               dev,
			},
		})
	}
	return msgs
}
