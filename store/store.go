package store

import (
	"fmt"
	"time"

	"github.com/XANi/homebrainz2prom/sensors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// Reading is one stored sensor value.
type Reading struct {
	ID     uint      `gorm:"primarykey" json:"-"`
	Device string    `json:"device"`
	Sensor string    `gorm:"index:idx_readings_sensor_ts,priority:1" json:"sensor"`
	Unit   string    `json:"unit,omitempty"`
	Value  float64   `json:"value"`
	TS     time.Time `gorm:"index:idx_readings_sensor_ts,priority:2" json:"ts"`
}

type Config struct {
	// Driver is sqlite (default) or postgres
	Driver string
	DSN    string
	Logger *zap.SugaredLogger
	// BatchSize readings per insert, 32 if unset
	BatchSize int
	// FlushInterval caps how long a partial batch waits, 5s if unset
	FlushInterval time.Duration
}

type Store struct {
	db            *gorm.DB
	l             *zap.SugaredLogger
	batchSize     int
	flushInterval time.Duration
}

func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	var dial gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dial = sqlite.Open(cfg.DSN)
	case "postgres":
		dial = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver [%s]", cfg.Driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open readings db: %w", err)
	}
	if err := db.AutoMigrate(&Reading{}); err != nil {
		return nil, fmt.Errorf("cannot migrate readings db: %w", err)
	}
	s := &Store{
		db:            db,
		l:             cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
	if s.batchSize == 0 {
		s.batchSize = 32
	}
	if s.flushInterval == 0 {
		s.flushInterval = 5 * time.Second
	}
	return s, nil
}

// Run consumes the metric stream, writing readings in small batches.
// Blocks until the channel closes, flushing whatever is left.
func (s *Store) Run(in <-chan sensors.Metric) {
	batch := make([]Reading, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.Save(batch); err != nil {
			s.l.Warnf("could not save %d readings: %s", len(batch), err)
		}
		batch = batch[:0]
	}
	for {
		select {
		case m, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, Reading{
				Device: m.Labels["device"],
				Sensor: m.Name,
				Unit:   m.Labels["unit"],
				Value:  m.Value,
				TS:     m.TS,
			})
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Store) Save(readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return s.db.Create(&readings).Error
}

// Recent returns readings for one sensor since the given time, newest
// first.
func (s *Store) Recent(sensor string, since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	var readings []Reading
	err := s.db.
		Where("sensor = ? AND ts >= ?", sensor, since).
		Order("ts DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("cannot query readings: %w", err)
	}
	return readings, nil
}

// Prune drops readings older than the retention window and returns how
// many went away.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.Where("ts < ?", cutoff).Delete(&Reading{})
	if res.Error != nil {
		return 0, fmt.Errorf("cannot prune readings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
