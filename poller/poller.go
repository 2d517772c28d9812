package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/XANi/homebrainz2prom/device"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Snapshotter is the slice of device.Client the poller needs.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*device.Snapshot, error)
}

type Config struct {
	Client Snapshotter
	Logger *zap.SugaredLogger
	// Interval between polls, 30s if unset
	Interval time.Duration
	// Timeout per poll attempt, 10s if unset
	Timeout time.Duration
	// FailureThreshold is how many consecutive failed polls mark the
	// device unavailable, 3 if unset
	FailureThreshold int
	// RequireFirstPoll makes Run return an error when the initial poll
	// fails instead of retrying on schedule
	RequireFirstPoll bool
	// OnSnapshot gets every successful poll result
	OnSnapshot func(*device.Snapshot)
	// OnAvailabilityChange fires when the device flips between
	// available and unavailable
	OnAvailabilityChange func(bool)
	// Clock is swappable for tests
	Clock clock.Clock
}

type Poller struct {
	c        Snapshotter
	l        *zap.SugaredLogger
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	cfg      Config

	sync.Mutex
	failures  int
	available bool
	lastErr   error
}

func New(cfg Config) (*Poller, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Poller{
		c:        cfg.Client,
		l:        cfg.Logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		clock:    cfg.Clock,
		cfg:      cfg,
	}, nil
}

// Run polls immediately, then on every interval tick until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.poll(ctx); err != nil {
		if p.cfg.RequireFirstPoll {
			return fmt.Errorf("initial poll failed: %w", err)
		}
		p.l.Warnf("initial poll failed, will retry: %s", err)
	}
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.l.Warnf("poll failed: %s", err)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	snap, err := p.c.Snapshot(pollCtx)
	if err != nil {
		p.markFailure(err)
		return err
	}
	p.markSuccess()
	if p.cfg.OnSnapshot != nil {
		p.cfg.OnSnapshot(snap)
	}
	return nil
}

func (p *Poller) markFailure(err error) {
	p.Lock()
	p.failures++
	p.lastErr = err
	flip := p.available && p.failures >= p.cfg.FailureThreshold
	if flip {
		p.available = false
	}
	failures := p.failures
	p.Unlock()
	if flip {
		p.l.Warnf("device unavailable after %d consecutive failures: %s", failures, err)
		if p.cfg.OnAvailabilityChange != nil {
			p.cfg.OnAvailabilityChange(false)
		}
	}
}

func (p *Poller) markSuccess() {
	p.Lock()
	p.failures = 0
	p.lastErr = nil
	flip := !p.available
	p.available = true
	p.Unlock()
	if flip {
		if p.cfg.OnAvailabilityChange != nil {
			p.cfg.OnAvailabilityChange(true)
		}
	}
}

func (p *Poller) Available() bool {
	p.Lock()
	defer p.Unlock()
	return p.available
}

// LastError returns the error of the most recent failed poll, nil after a
// success.
func (p *Poller) LastError() error {
	p.Lock()
	defer p.Unlock()
	return p.lastErr
}
