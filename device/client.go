package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	BrightnessMin = 0
	BrightnessMax = 15
)

// DefaultScreenOrder is the canonical display rotation order of the
// firmware. Screen lists sent to the device keep this order.
var DefaultScreenOrder = []string{"clock", "temp", "humidity", "pressure", "gas", "iaq"}

var ErrInvalidDevice = errors.New("status response does not look like a HomeBrainz device")

type Config struct {
	// Address of the device, with or without http:// prefix
	Address string
	// Timeout per request, 10s if unset
	Timeout    time.Duration
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client
}

type Client struct {
	host string
	hc   *http.Client
	l    *zap.SugaredLogger
}

func New(cfg Config) (*Client, error) {
	host := NormalizeHost(cfg.Address)
	if host == "" {
		return nil, fmt.Errorf("device address is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		host: host,
		hc:   hc,
		l:    cfg.Logger,
	}, nil
}

// NormalizeHost strips the URL scheme and trailing slashes users tend to
// paste along with the address.
func NormalizeHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	return strings.TrimRight(addr, "/")
}

func (c *Client) Host() string { return c.host }

func (c *Client) url(path string) string {
	return "http://" + c.host + path
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("device %s: %w", c.host, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("device %s: %w", c.host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device %s: GET %s returned HTTP %d", c.host, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("device %s: decoding %s: %w", c.host, path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("device %s: %w", c.host, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("device %s: %w", c.host, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("device %s: %w", c.host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device %s: POST %s returned HTTP %d", c.host, path, resp.StatusCode)
	}
	return nil
}

func (c *Client) Sensors(ctx context.Context) (*Readings, error) {
	r := &Readings{}
	if err := c.get(ctx, "/sensors", r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	s := &Status{}
	if err := c.get(ctx, "/status", s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) OTA(ctx context.Context) (*OTAStatus, error) {
	o := &OTAStatus{}
	if err := c.get(ctx, "/api/ota/status", o); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *Client) Screens(ctx context.Context) ([]string, error) {
	var sl screenList
	if err := c.get(ctx, "/display/screens", &sl); err != nil {
		return nil, err
	}
	return sl.Screens, nil
}

// Snapshot polls every endpoint of the device. Sensors and status are
// mandatory, OTA state and screen rotation are best effort since older
// firmware does not serve them.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	sensors, err := c.Sensors(ctx)
	if err != nil {
		return nil, err
	}
	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Sensors: sensors,
		Status:  status,
		TS:      time.Now(),
	}
	if ota, err := c.OTA(ctx); err == nil {
		snap.OTA = ota
	} else {
		c.l.Debugf("ota status unavailable: %s", err)
	}
	if screens, err := c.Screens(ctx); err == nil {
		snap.Screens = screens
	} else {
		c.l.Debugf("screen list unavailable: %s", err)
	}
	return snap, nil
}

// Validate checks that the address actually points at a HomeBrainz device
// and returns its status for device identity.
func (c *Client) Validate(ctx context.Context) (*Status, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.Device == "" {
		return nil, fmt.Errorf("device %s: %w", c.host, ErrInvalidDevice)
	}
	return status, nil
}

// Command sends a generic device command over /api/command.
func (c *Client) Command(ctx context.Context, command string, value interface{}) error {
	return c.post(ctx, "/api/command", map[string]interface{}{
		"command": command,
		"value":   value,
	})
}

func (c *Client) SetBrightness(ctx context.Context, level int) error {
	if level < BrightnessMin {
		level = BrightnessMin
	}
	if level > BrightnessMax {
		level = BrightnessMax
	}
	return c.Command(ctx, "set_brightness", level)
}

func (c *Client) SetScreens(ctx context.Context, screens []string) error {
	if len(screens) == 0 {
		return fmt.Errorf("device %s: at least one screen must remain enabled", c.host)
	}
	return c.post(ctx, "/display/screens", screenList{Screens: screens})
}

func (c *Client) StartOTAUpdate(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("device %s: no firmware download url", c.host)
	}
	// firmware needs a bit longer to ack the update start
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return c.post(ctx, "/api/ota/update", map[string]interface{}{
		"url":     url,
		"confirm": true,
	})
}
