package hass

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBridge() *Bridge {
	b := &Bridge{
		l:          zap.NewNop().Sugar(),
		deviceID:   topicSafe("AA:BB:CC:DD:EE:FF"),
		deviceName: "Kitchen Clock",
		swVersion:  "1.4.2",
		host:       "192.168.1.50",
	}
	b.base = "homebrainz/" + b.deviceID
	return b
}

func TestTopicSafe(t *testing.T) {
	assert.Equal(t, "aa_bb_cc_dd_ee_ff", topicSafe("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, "192_168_1_50", topicSafe("192.168.1.50"))
	assert.Equal(t, "clock_local", topicSafe("clock.local"))
}

func TestDiscoveryMessages(t *testing.T) {
	b := testBridge()
	msgs := b.discoveryMessages()
	// 7 sensors + binary_sensor + 2 buttons + number + 6 screen switches
	require.Len(t, msgs, 17)

	byTopic := map[string]Discovery{}
	for _, m := range msgs {
		byTopic[m.Topic] = m.Payload
	}

	temp, ok := byTopic["homeassistant/sensor/aa_bb_cc_dd_ee_ff_temperature/config"]
	require.True(t, ok)
	assert.Equal(t, "temperature", temp.DeviceClass)
	assert.Equal(t, "°C", temp.Unit)
	assert.Equal(t, "measurement", temp.StateClass)
	assert.Equal(t, "homebrainz/aa_bb_cc_dd_ee_ff/temperature/state", temp.StateTopic)
	assert.Equal(t, "homebrainz/aa_bb_cc_dd_ee_ff/availability", temp.AvailabilityTopic)
	require.NotNil(t, temp.Dev)
	assert.Equal(t, "Kitchen Clock", temp.Dev.Name)
	assert.Equal(t, "ESPTimeCast", temp.Dev.Model)
	assert.Equal(t, "HomeBrainz", temp.Dev.Manufacturer)
	assert.Equal(t, "1.4.2", temp.Dev.SoftwareVersion)
	assert.Equal(t, "http://192.168.1.50", temp.Dev.ConfigurationURL)

	fw, ok := byTopic["homeassistant/binary_sensor/aa_bb_cc_dd_ee_ff_firmware_update_available/config"]
	require.True(t, ok)
	assert.Equal(t, "update", fw.DeviceClass)
	assert.Equal(t, "diagnostic", fw.EntityCategory)
	assert.NotEmpty(t, fw.JSONAttributesTopic)

	num, ok := byTopic["homeassistant/number/aa_bb_cc_dd_ee_ff_brightness_level/config"]
	require.True(t, ok)
	assert.Equal(t, "slider", num.Mode)
	require.NotNil(t, num.Min)
	require.NotNil(t, num.Max)
	assert.Equal(t, 0, *num.Min)
	assert.Equal(t, 15, *num.Max)
	assert.Equal(t, "homebrainz/aa_bb_cc_dd_ee_ff/brightness/set", num.CommandTopic)

	sw, ok := byTopic["homeassistant/switch/aa_bb_cc_dd_ee_ff_screen_clock/config"]
	require.True(t, ok)
	assert.Equal(t, "Screen Clock", sw.Name)
	assert.Equal(t, "homebrainz/aa_bb_cc_dd_ee_ff/screen/clock/set", sw.CommandTopic)
}

func TestDiscoveryPayloadUsesAbbreviatedKeys(t *testing.T) {
	b := testBridge()
	msgs := b.discoveryMessages()
	payload, err := json.Marshal(msgs[0].Payload)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Contains(t, raw, "dev_cla")
	assert.Contains(t, raw, "stat_t")
	assert.Contains(t, raw, "avty_t")
	assert.Contains(t, raw, "uniq_id")
	assert.Contains(t, raw, "dev")
	assert.NotContains(t, raw, "cmd_t")
}

func TestNextScreens(t *testing.T) {
	// enabling keeps canonical order regardless of input order
	assert.Equal(t, []string{"clock", "temp", "iaq"},
		nextScreens([]string{"iaq", "clock"}, "temp", true))
	assert.Equal(t, []string{"clock"},
		nextScreens([]string{"clock", "temp"}, "temp", false))
	// disabling the last screen is refused
	assert.Nil(t, nextScreens([]string{"clock"}, "clock", false))
	// enabling an already enabled screen is a no-op
	assert.Equal(t, []string{"clock", "temp"},
		nextScreens([]string{"clock", "temp"}, "temp", true))
}
