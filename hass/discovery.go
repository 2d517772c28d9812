package hass

// Home Assistant MQTT discovery payload, abbreviated keys as documented in
// https://www.home-assistant.io/integrations/mqtt/#discovery-payload
type Discovery struct {
	// https://www.home-assistant.io/integrations/sensor/#device-class
	DeviceClass string `json:"dev_cla,omitempty"`
	Unit        string `json:"unit_of_meas,omitempty"`
	// https://developers.home-assistant.io/docs/core/entity/sensor/#available-state-classes
	StateClass          string  `json:"stat_cla,omitempty"`
	Name                string  `json:"name"`
	StateTopic          string  `json:"stat_t,omitempty"`
	CommandTopic        string  `json:"cmd_t,omitempty"`
	AvailabilityTopic   string  `json:"avty_t,omitempty"`
	JSONAttributesTopic string  `json:"json_attr_t,omitempty"`
	UniqID              string  `json:"uniq_id"`
	EntityCategory      string  `json:"ent_cat,omitempty"`
	Icon                string  `json:"ic,omitempty"`
	Min                 *int    `json:"min,omitempty"`
	Max                 *int    `json:"max,omitempty"`
	Step                *int    `json:"step,omitempty"`
	Mode                string  `json:"mode,omitempty"`
	Dev                 *Device `json:"dev"`
}

type Device struct {
	ID               string `json:"ids"`
	Name             string `json:"name"`
	SoftwareVersion  string `json:"sw"`
	Model            string `json:"mdl"`
	Manufacturer     string `json:"mf"`
	ConfigurationURL string `json:"cu,omitempty"`
}

func intPtr(i int) *int { return &i }
