// Package monitor renews a session's access token shortly before it
// expires so that requests rarely see a 401.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
)

// DefaultInterval replaces a non-positive check interval.
const DefaultInterval = 5 * time.Second

// Source returns the session's current pair.
type Source interface {
	Get() credentials.Pair
}

// Renewer starts a renewal without waiting for it.
type Renewer interface {
	TryRenew() bool
}

type Monitor struct {
	source   Source
	renewer  Renewer
	interval time.Duration
	margin   time.Duration
	now      func() time.Time
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func New(source Source, renewer Renewer, interval, margin time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		renewer:  renewer,
		interval: interval,
		margin:   margin,
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("module", "monitor")
	if m.interval <= 0 {
		m.logger.Warn(context.Background(), "non-positive check interval, using default",
			"interval", interval.String(), "default", DefaultInterval.String())
		m.interval = DefaultInterval
	}
	return m
}

// Start launches the check loop. It does nothing if the loop is running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
}

// Stop ends the loop and waits for it to exit. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check starts a renewal when the access token has less than the margin
// left. It reports whether a renewal was started.
func (m *Monitor) Check(ctx context.Context) bool {
	p := m.source.Get()
	if p.Empty() {
		return false
	}

	remaining := p.ExpiresAt().Sub(m.now())
	if remaining >= m.margin {
		return false
	}

	started := m.renewer.TryRenew()
	if started {
		m.logger.Debug(ctx, "proactive renewal started", "remaining", remaining.String())
	}
	return started
}
