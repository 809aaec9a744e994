// Package renewal makes sure a session has at most one refresh request in
// flight. Everyone who needs a fresh access token while it runs gets the
// same token or the same error.
package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
)

const DefaultTimeout = 15 * time.Second

// Refresher redeems a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error)
}

// flight is one renewal in progress. done is closed once token or err is
// set; both are read-only afterwards.
type flight struct {
	done  chan struct{}
	token string
	err   error
}

type Coordinator struct {
	cache     *credentials.Cache
	refresher Refresher
	timeout   time.Duration
	logger    logging.Logger
	onFailure func(error)

	mu       sync.Mutex
	current  *flight
	closed   bool
	draining bool
	closing  chan struct{}

	failOnce sync.Once
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithFailureHandler registers fn to run once, on the first failed renewal.
// It is called without any coordinator lock held and may call Close.
func WithFailureHandler(fn func(error)) Option {
	return func(c *Coordinator) { c.onFailure = fn }
}

func New(cache *credentials.Cache, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:     cache,
		refresher: refresher,
		timeout:   DefaultTimeout,
		logger:    logging.Nop(),
		closing:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("module", "renewal")
	return c
}

// Renew returns an access token newer than stale. If the cache already
// holds a different token it is returned at once; otherwise the caller
// joins the running flight or starts one.
func (c *Coordinator) Renew(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", common.ErrSessionClosed
	}
	if cur := c.cache.AccessToken(); cur != "" && cur != stale {
		c.mu.Unlock()
		return cur, nil
	}

	f := c.current
	if f == nil {
		if c.draining {
			c.mu.Unlock()
			return "", common.ErrSessionClosed
		}
		if c.cache.RefreshToken() == "" {
			c.mu.Unlock()
			return "", common.ErrNotLoggedIn
		}
		f = c.startLocked()
	}
	closing := c.closing
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.token, f.err
	case <-closing:
		// a failed flight closes the coordinator; its waiters get its error
		select {
		case <-f.done:
			return f.token, f.err
		default:
			return "", common.ErrSessionClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TryRenew starts a flight unless one is already running. It never waits.
func (c *Coordinator) TryRenew() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.draining || c.current != nil || c.cache.RefreshToken() == "" {
		return false
	}
	c.startLocked()
	return true
}

func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Close rejects current and future waiters with common.ErrSessionClosed.
// A running flight is left to finish; its result is dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.closing)
}

// Drain stops new flights from starting and waits for the running one, if
// any, to finish. Unlike Close, the flight's result still reaches the cache.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	f := c.current
	c.mu.Unlock()

	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) startLocked() *flight {
	f := &flight{done: make(chan struct{})}
	c.current = f
	go c.fly(f, c.cache.RefreshToken())
	return f
}

func (c *Coordinator) fly(f *flight, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.logger.Debug(ctx, "renewing access token")
	pair, err := c.refresher.Refresh(ctx, refreshToken)

	c.mu.Lock()
	closed := c.closed
	switch {
	case closed:
		f.err = common.ErrSessionClosed
	case err != nil:
		f.err = err
		// no further refresh may start before the failure handler runs
		c.closed = true
	default:
		if serr := c.cache.Set(ctx, pair); serr != nil {
			c.logger.Warn(ctx, "renewed credentials not persisted", "error", serr)
		}
		f.token = pair.AccessToken
	}
	c.current = nil
	close(f.done)
	if c.closed && !closed {
		close(c.closing)
	}
	c.mu.Unlock()

	if err != nil && !closed {
		c.logger.Warn(ctx, "renewal failed", "error", err)
		c.fail(err)
	}
}

func (c *Coordinator) fail(err error) {
	c.failOnce.Do(func() {
		if c.onFailure != nil {
			c.onFailure(err)
		}
	})
}
