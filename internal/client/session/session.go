// Package session owns one logged-in client session: its credential cache,
// renewal coordinator, expiry monitor and request gateway. Several sessions
// can coexist in one process.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/api"
	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/client/gateway"
	"github.com/dmitrijs2005/fooddelivery/internal/client/monitor"
	"github.com/dmitrijs2005/fooddelivery/internal/client/renewal"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
)

type Config struct {
	CheckInterval  time.Duration
	RenewalMargin  time.Duration
	RefreshTimeout time.Duration
}

type Session struct {
	api    *api.Client
	cache  *credentials.Cache
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	// lifetime of background work; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	// serializes login, logout and teardown
	opMu sync.Mutex

	mu    sync.Mutex
	coord *renewal.Coordinator
	mon   *monitor.Monitor
	gw    *gateway.Gateway

	terminated chan error
}

func New(client *api.Client, cache *credentials.Cache, cfg Config, logger logging.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:        client,
		cache:      cache,
		cfg:        cfg,
		logger:     logger.With("module", "session"),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		terminated: make(chan error, 1),
	}
}

// Resume restores the pair saved by an earlier run. It returns
// common.ErrNotLoggedIn when there is none or its refresh token has
// expired.
func (s *Session) Resume(ctx context.Context) error {
	p, err := s.cache.Restore(ctx)
	if err != nil {
		return err
	}

	if !p.RefreshExpiresAt.IsZero() && !s.now().Before(p.RefreshExpiresAt) {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn(ctx, "error clearing stale credentials", "error", err)
		}
		return common.ErrNotLoggedIn
	}

	s.start()
	s.logger.Info(ctx, "session resumed", "user_id", p.User.ID)
	return nil
}

func (s *Session) Register(ctx context.Context, name, email, password string) (credentials.User, error) {
	return s.api.Register(ctx, name, email, password)
}

// Login authenticates and replaces any current session.
func (s *Session) Login(ctx context.Context, email, password string) (credentials.User, error) {
	p, err := s.api.Login(ctx, email, password)
	if err != nil {
		return credentials.User{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stop()

	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.Warn(ctx, "credentials not persisted", "error", err)
	}
	s.start()

	s.logger.Info(ctx, "logged in", "user_id", p.User.ID)
	return p.User, nil
}

// Do sends an authenticated request through the session's gateway.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	gw := s.gateway()
	if gw == nil {
		return nil, common.ErrNotLoggedIn
	}
	return gw.Do(req)
}

func (s *Session) GetJSON(ctx context.Context, path string, out any) error {
	gw := s.gateway()
	if gw == nil {
		return common.ErrNotLoggedIn
	}
	return gw.GetJSON(ctx, path, out)
}

func (s *Session) LoggedIn() bool {
	return s.gateway() != nil
}

// Current returns the cached pair; it is empty when logged out.
func (s *Session) Current() credentials.Pair {
	return s.cache.Get()
}

// Terminated delivers the error of a failed renewal that ended the session.
// At most one value is pending at a time.
func (s *Session) Terminated() <-chan error {
	return s.terminated
}

// Logout ends the session locally and asks the server to revoke its refresh
// token, or every token of the user when all is set. The server call is
// best effort. Logout is idempotent.
func (s *Session) Logout(ctx context.Context, all bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.drain(ctx)
	s.stop()

	p := s.cache.Get()
	if p.Empty() {
		return nil
	}

	access, refresh := p.AccessToken, p.RefreshToken
	if !p.ExpiresAt().After(s.now()) {
		// the server needs a valid bearer to log us out
		if fresh, err := s.api.Refresh(ctx, p.RefreshToken); err == nil {
			access, refresh = fresh.AccessToken, fresh.RefreshToken
		}
	}
	if all {
		refresh = ""
	}

	if err := s.api.Logout(ctx, access, refresh); err != nil {
		s.logger.Warn(ctx, "server logout failed", "error", err)
	}

	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("error clearing credentials: %w", err)
	}

	s.logger.Info(ctx, "logged out", "user_id", p.User.ID, "all", all)
	return nil
}

// Close stops background work and keeps the stored credentials for the
// next Resume.
func (s *Session) Close() {
	s.stop()
	s.cancel()
}

func (s *Session) gateway() *gateway.Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw
}

func (s *Session) start() {
	var coord *renewal.Coordinator
	coord = renewal.New(s.cache, s.api,
		renewal.WithTimeout(s.cfg.RefreshTimeout),
		renewal.WithLogger(s.logger),
		renewal.WithFailureHandler(func(err error) { s.terminate(coord, err) }),
	)
	mon := monitor.New(s.cache, coord, s.cfg.CheckInterval, s.cfg.RenewalMargin, monitor.WithLogger(s.logger))
	gw := gateway.New(s.api.BaseURL(), s.api.HTTPClient(), s.cache, coord, s.logger)

	s.mu.Lock()
	s.coord, s.mon, s.gw = coord, mon, gw
	s.mu.Unlock()

	mon.Start(s.ctx)
}

// drain stops the monitor and lets a renewal that is already running land
// in the cache, so that logout presents the newest refresh token and no
// other refresh call overlaps with its own.
func (s *Session) drain(ctx context.Context) {
	s.mu.Lock()
	c, mon := s.coord, s.mon
	s.mu.Unlock()

	if c == nil {
		return
	}
	mon.Stop()
	if err := c.Drain(ctx); err != nil {
		s.logger.Warn(ctx, "renewal still running at logout", "error", err)
	}
}

// stop detaches and shuts down the current coordinator and monitor.
func (s *Session) stop() {
	s.detach(nil)
}

// detach clears the session's components if coord is current (any when
// coord is nil) and shuts them down. It reports whether it did.
func (s *Session) detach(coord *renewal.Coordinator) bool {
	s.mu.Lock()
	if s.coord == nil || (coord != nil && s.coord != coord) {
		s.mu.Unlock()
		return false
	}
	c, mon := s.coord, s.mon
	s.coord, s.mon, s.gw = nil, nil, nil
	s.mu.Unlock()

	mon.Stop()
	c.Close()
	return true
}

// terminate tears the session down after coord failed to renew. Failures
// of a coordinator that has already been replaced are ignored.
func (s *Session) terminate(coord *renewal.Coordinator, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.detach(coord) {
		return
	}

	ctx := context.Background()
	if cerr := s.cache.Clear(ctx); cerr != nil {
		s.logger.Warn(ctx, "error clearing credentials", "error", cerr)
	}
	s.logger.Warn(ctx, "session terminated", "error", err)

	if errors.Is(err, common.ErrInvalidCredential) {
		err = fmt.Errorf("session expired, please log in again: %w", err)
	}
	select {
	case s.terminated <- err:
	default:
	}
}
