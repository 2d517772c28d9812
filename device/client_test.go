package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testDevice(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Address: srv.URL,
		Logger:  testLogger(t),
	})
	require.NoError(t, err)
	return c, srv
}

func deviceMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/sensors", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"aht20": {"temperature": 21.4, "humidity": 48.2},
			"bmp280": {"pressure": 1013.2, "temperature": 21.9},
			"ens160": {"aqi": 2, "co2": 623, "tvoc": 118}
		}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"device": "Kitchen Clock",
			"mac_address": "AA:BB:CC:DD:EE:FF",
			"version": "1.4.2",
			"rssi": -61,
			"brightness": 7,
			"uptime": 86400,
			"free_heap": 123456
		}`))
	})
	mux.HandleFunc("/api/ota/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"updateAvailable": true,
			"currentVersion": "1.4.2",
			"latestVersion": "1.5.0",
			"downloadUrl": "http://fw.example.com/1.5.0.bin"
		}`))
	})
	mux.HandleFunc("/display/screens", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"screens": ["clock", "temp", "iaq"]}`))
	})
	return mux
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "192.168.1.50", NormalizeHost("192.168.1.50"))
	assert.Equal(t, "192.168.1.50", NormalizeHost("http://192.168.1.50"))
	assert.Equal(t, "192.168.1.50", NormalizeHost("https://192.168.1.50/"))
	assert.Equal(t, "clock.local", NormalizeHost(" clock.local// "))
	assert.Equal(t, "", NormalizeHost(""))
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(Config{Logger: testLogger(t)})
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	c, _ := testDevice(t, deviceMux(t))
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Sensors)
	require.NotNil(t, snap.Sensors.AHT20)
	assert.Equal(t, 21.4, *snap.Sensors.AHT20.Temperature)
	assert.Equal(t, 48.2, *snap.Sensors.AHT20.Humidity)
	require.NotNil(t, snap.Sensors.BMP280)
	assert.Equal(t, 1013.2, *snap.Sensors.BMP280.Pressure)
	require.NotNil(t, snap.Sensors.ENS160)
	assert.Equal(t, float64(623), *snap.Sensors.ENS160.CO2)
	require.NotNil(t, snap.Status)
	assert.Equal(t, "Kitchen Clock", snap.Status.Device)
	assert.Equal(t, float64(-61), *snap.Status.RSSI)
	require.NotNil(t, snap.OTA)
	assert.True(t, snap.OTA.UpdateAvailable)
	assert.Equal(t, []string{"clock", "temp", "iaq"}, snap.Screens)
	assert.False(t, snap.TS.IsZero())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", snap.ID("fallback"))
	assert.Equal(t, "Kitchen Clock", snap.Name())
}

func TestSnapshotOptionalEndpointsMissing(t *testing.T) {
	// older firmware serves neither ota status nor screen rotation
	mux := deviceMux(t)
	failing := http.NewServeMux()
	failing.Handle("/sensors", mux)
	failing.Handle("/status", mux)
	failing.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, _ := testDevice(t, failing)
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.OTA)
	assert.Nil(t, snap.Screens)
}

func TestSnapshotMandatoryEndpointFailing(t *testing.T) {
	mux := deviceMux(t)
	failing := http.NewServeMux()
	failing.Handle("/sensors", mux)
	failing.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c, _ := testDevice(t, failing)
	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestSnapshotAbsentChip(t *testing.T) {
	mux := deviceMux(t)
	noEns := http.NewServeMux()
	noEns.HandleFunc("/sensors", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aht20": {"temperature": 20.0, "humidity": 50.0}}`))
	})
	noEns.Handle("/", mux)
	c, _ := testDevice(t, noEns)
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Sensors.ENS160)
	assert.Nil(t, snap.Sensors.BMP280)
	require.NotNil(t, snap.Sensors.AHT20)
}

func TestValidate(t *testing.T) {
	c, _ := testDevice(t, deviceMux(t))
	status, err := c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Kitchen Clock", status.Device)
}

func TestValidateNotAHomeBrainz(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "some other thing"}`))
	})
	c, _ := testDevice(t, mux)
	_, err := c.Validate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestSetBrightnessClampsAndPosts(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})
	c, _ := testDevice(t, mux)
	require.NoError(t, c.SetBrightness(context.Background(), 99))
	assert.Equal(t, "set_brightness", got["command"])
	assert.Equal(t, float64(BrightnessMax), got["value"])

	require.NoError(t, c.SetBrightness(context.Background(), -3))
	assert.Equal(t, float64(BrightnessMin), got["value"])
}

func TestSetScreens(t *testing.T) {
	var got screenList
	mux := http.NewServeMux()
	mux.HandleFunc("/display/screens", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})
	c, _ := testDevice(t, mux)
	require.NoError(t, c.SetScreens(context.Background(), []string{"clock", "temp"}))
	assert.Equal(t, []string{"clock", "temp"}, got.Screens)

	err := c.SetScreens(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one screen")
}

func TestStartOTAUpdate(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ota/update", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})
	c, _ := testDevice(t, mux)
	require.NoError(t, c.StartOTAUpdate(context.Background(), "http://fw.example.com/1.5.0.bin"))
	assert.Equal(t, "http://fw.example.com/1.5.0.bin", got["url"])
	assert.Equal(t, true, got["confirm"])

	err := c.StartOTAUpdate(context.Background(), "")
	require.Error(t, err)
}

func TestErrorsCarryHost(t *testing.T) {
	c, err := New(Config{Address: "127.0.0.1:1", Logger: testLogger(t)})
	require.NoError(t, err)
	_, err = c.Status(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "127.0.0.1:1"))
}
