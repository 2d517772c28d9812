package device

import (
	"time"
)

// Readings is the payload of /sensors. Each key is a sensor chip; a chip
// missing from the payload means it is not installed or failed to init,
// not that it read zero.
type Readings struct {
	AHT20  *AHT20  `json:"aht20,omitempty"`
	BMP280 *BMP280 `json:"bmp280,omitempty"`
	ENS160 *ENS160 `json:"ens160,omitempty"`
}

type AHT20 struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

type BMP280 struct {
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
}

type ENS160 struct {
	AQI  *float64 `json:"aqi"`
	CO2  *float64 `json:"co2"`
	TVOC *float64 `json:"tvoc"`
}

// Status is the payload of /status.
type Status struct {
	Device     string   `json:"device"`
	MacAddress string   `json:"mac_address"`
	Version    string   `json:"version"`
	RSSI       *float64 `json:"rssi"`
	Brightness *int     `json:"brightness"`
	Uptime     int64    `json:"uptime"`
	FreeHeap   int64    `json:"free_heap"`
}

// OTAStatus is the payload of /api/ota/status. Field names are camelCase
// on the wire, unlike the rest of the firmware API.
type OTAStatus struct {
	UpdateAvailable   bool   `json:"updateAvailable"`
	CurrentFirmwareID string `json:"currentFirmwareId"`
	LatestFirmwareID  string `json:"latestFirmwareId"`
	CurrentVersion    string `json:"currentVersion"`
	LatestVersion     string `json:"latestVersion"`
	DownloadURL       string `json:"downloadUrl"`
	ReleaseNotes      string `json:"releaseNotes"`
}

type screenList struct {
	Screens []string `json:"screens"`
}

// Snapshot is the result of one full poll. Sensors and Status are always
// set on a successful snapshot, OTA and Screens are best effort.
type Snapshot struct {
	Sensors *Readings  `json:"sensors"`
	Status  *Status    `json:"status"`
	OTA     *OTAStatus `json:"ota,omitempty"`
	Screens []string   `json:"screens,omitempty"`
	TS      time.Time  `json:"ts"`
}

// ID returns a stable device identifier, MAC address when the firmware
// reports one, configured host otherwise.
func (s *Snapshot) ID(fallback string) string {
	if s != nil && s.Status != nil && s.Status.MacAddress != "" {
		return s.Status.MacAddress
	}
	return fallback
}

func (s *Snapshot) Name() string {
	if s != nil && s.Status != nil && s.Status.Device != "" {
		return s.Status.Device
	}
	return "HomeBrainz Clock"
}
