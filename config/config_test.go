package config

import (
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	var c Config
	raw := c.GetDefaultConfig()
	require.NotEmpty(t, raw)

	var parsed Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &parsed))
	assert.NotEmpty(t, parsed.DeviceAddress)
	assert.Equal(t, "sqlite", parsed.DBDriver)

	interval, err := time.ParseDuration(parsed.PollInterval)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
	retention, err := time.ParseDuration(parsed.Retention)
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, retention)
}
