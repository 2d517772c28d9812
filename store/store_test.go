package store

import (
	"testing"
	"time"

	"github.com/XANi/homebrainz2prom/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	s, err := New(Config{
		DSN:    "file::memory:",
		Logger: zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Logger: zap.NewNop().Sugar()})
	assert.Error(t, err)
	_, err = New(Config{DSN: "x", Driver: "mssql", Logger: zap.NewNop().Sugar()})
	assert.Error(t, err)
}

func TestSaveAndRecent(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	require.NoError(t, s.Save([]Reading{
		{Device: "Kitchen Clock", Sensor: "temperature", Value: 21.4, TS: now.Add(-2 * time.Minute)},
		{Device: "Kitchen Clock", Sensor: "temperature", Value: 21.6, TS: now.Add(-1 * time.Minute)},
		{Device: "Kitchen Clock", Sensor: "humidity", Value: 48.2, TS: now},
	}))

	readings, err := s.Recent("temperature", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	// newest first
	assert.Equal(t, 21.6, readings[0].Value)
	assert.Equal(t, 21.4, readings[1].Value)

	readings, err = s.Recent("temperature", now.Add(-90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	readings, err = s.Recent("temperature", now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 21.6, readings[0].Value)
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	require.NoError(t, s.Save([]Reading{
		{Sensor: "temperature", Value: 20, TS: now.Add(-48 * time.Hour)},
		{Sensor: "temperature", Value: 21, TS: now.Add(-36 * time.Hour)},
		{Sensor: "temperature", Value: 22, TS: now},
	}))
	pruned, err := s.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	readings, err := s.Recent("temperature", now.Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, float64(22), readings[0].Value)
}

func TestRunFlushesOnBatchSize(t *testing.T) {
	s, err := New(Config{
		DSN:       "file::memory:",
		Logger:    zap.NewNop().Sugar(),
		BatchSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	in := make(chan sensors.Metric, 8)
	done := make(chan struct{})
	go func() {
		s.Run(in)
		close(done)
	}()
	ts := time.Now()
	in <- sensors.Metric{Name: "temperature", Labels: map[string]string{"device": "Kitchen Clock"}, Value: 21.4, TS: ts}
	in <- sensors.Metric{Name: "co2", Labels: map[string]string{"device": "Kitchen Clock", "unit": "ppm"}, Value: 623, TS: ts}
	in <- sensors.Metric{Name: "humidity", Labels: map[string]string{"device": "Kitchen Clock"}, Value: 48.2, TS: ts}
	close(in)
	<-done

	readings, err := s.Recent("co2", ts.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "Kitchen Clock", readings[0].Device)
	assert.Equal(t, "ppm", readings[0].Unit)

	// the partial batch flushes when the stream closes
	readings, err = s.Recent("humidity", ts.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
}
