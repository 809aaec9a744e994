package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/api"
	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/client/storage"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
	"github.com/dmitrijs2005/fooddelivery/internal/server/auth"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/memory"
	"github.com/dmitrijs2005/fooddelivery/internal/server/rest"
	"github.com/dmitrijs2005/fooddelivery/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const (
	email    = "alice@example.com"
	password = "pw-alice"
)

// backend is a real auth server whose token clock can be skewed so that
// credentials come out already expired or about to expire.
type backend struct {
	url          string
	client       *http.Client
	sessions     *services.SessionService
	store        *memory.Manager
	skew         atomic.Int64
	refreshCalls atomic.Int32

	// when set, refresh requests report on refreshStarted and wait for
	// refreshRelease before they are served
	refreshStarted chan struct{}
	refreshRelease chan struct{}
}

func (b *backend) holdRefreshes() {
	b.refreshStarted = make(chan struct{}, 4)
	b.refreshRelease = make(chan struct{})
}

func (b *backend) setSkew(d time.Duration) { b.skew.Store(int64(d)) }

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{}
	clock := func() time.Time { return time.Now().Add(time.Duration(b.skew.Load())) }

	store := memory.NewManager()
	b.store = store
	issuer := auth.NewIssuer("session-test", 15*time.Minute, 7*24*time.Hour, auth.WithClock(clock))
	b.sessions = services.NewSessionService(nil, store, store, issuer, auth.NewBcryptHasher(bcrypt.MinCost))

	_, err := b.sessions.Register(context.Background(), "Alice", email, password)
	require.NoError(t, err)

	router := rest.NewHTTPServer(":0", logging.Nop(), b.sessions, issuer).Router()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			b.refreshCalls.Add(1)
			if b.refreshRelease != nil {
				b.refreshStarted <- struct{}{}
				<-b.refreshRelease
			}
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(hs.Close)

	b.url, b.client = hs.URL, hs.Client()
	return b
}

func newStore(t *testing.T) *credentials.SQLiteStore {
	t.Helper()
	db, err := storage.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return credentials.NewSQLiteStore(db)
}

func newSession(t *testing.T, b *backend, store credentials.Store, cfg Config) *Session {
	t.Helper()
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.RenewalMargin == 0 {
		cfg.RenewalMargin = time.Minute
	}
	cfg.RefreshTimeout = 5 * time.Second

	s := New(api.New(b.url, 5*time.Second, api.WithHTTPClient(b.client)), credentials.NewCache(store), cfg, logging.Nop())
	t.Cleanup(s.Close)
	return s
}

type meResponse struct {
	User credentials.User `json:"user"`
}

func TestLogin_ServesRequests(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	assert.False(t, s.LoggedIn())

	u, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	assert.Equal(t, email, u.Email)
	assert.True(t, s.LoggedIn())

	var me meResponse
	require.NoError(t, s.GetJSON(ctx, "/api/auth/me", &me))
	assert.Equal(t, u.ID, me.User.ID)
	assert.Zero(t, b.refreshCalls.Load())
}

func TestLogin_WrongPassword(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})

	_, err := s.Login(context.Background(), email, "nope")
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	assert.False(t, s.LoggedIn())
}

func TestNotLoggedIn(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})

	var me meResponse
	assert.ErrorIs(t, s.GetJSON(context.Background(), "/api/auth/me", &me), common.ErrNotLoggedIn)

	req, err := http.NewRequest(http.MethodGet, b.url+"/api/auth/me", nil)
	require.NoError(t, err)
	_, err = s.Do(req)
	assert.ErrorIs(t, err, common.ErrNotLoggedIn)

	assert.NoError(t, s.Logout(context.Background(), false), "logout without a session is a no-op")
}

func TestExpiredAccess_RenewedOnceForConcurrentCalls(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	b.setSkew(-20 * time.Minute)
	_, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	b.setSkew(0)

	stale := s.Current().AccessToken

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			var me meResponse
			return s.GetJSON(gctx, "/api/auth/me", &me)
		})
	}
	require.NoError(t, g.Wait(), "callers see success")

	assert.Equal(t, int32(1), b.refreshCalls.Load(), "exactly one refresh request")
	assert.NotEqual(t, stale, s.Current().AccessToken)
}

func TestMonitor_RenewsBeforeExpiry(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{CheckInterval: 10 * time.Millisecond, RenewalMargin: time.Minute})
	ctx := context.Background()

	// 30s of validity left, inside the one-minute margin
	b.setSkew(-14*time.Minute - 30*time.Second)
	_, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	b.setSkew(0)
	first := s.Current().AccessToken

	assert.Eventually(t, func() bool {
		exp, err := credentials.AccessExpiry(s.Current().AccessToken)
		return err == nil && time.Until(exp) > 10*time.Minute
	}, 5*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, first, s.Current().AccessToken)

	n := b.refreshCalls.Load()
	assert.GreaterOrEqual(t, n, int32(1))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, b.refreshCalls.Load(), "fresh token is left alone")
}

func TestFailedRenewal_TerminatesSession(t *testing.T) {
	b := newBackend(t)
	store := newStore(t)
	s := newSession(t, b, store, Config{})
	ctx := context.Background()

	b.setSkew(-20 * time.Minute)
	u, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	b.setSkew(0)

	// an admin revokes everything behind the client's back
	_, err = b.sessions.RevokeUserSessions(ctx, auth.Subject{UserID: "root", Role: common.RoleAdmin}, u.ID)
	require.NoError(t, err)

	var me meResponse
	err = s.GetJSON(ctx, "/api/auth/me", &me)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	select {
	case err := <-s.Terminated():
		assert.ErrorIs(t, err, common.ErrInvalidCredential)
	case <-time.After(5 * time.Second):
		t.Fatal("no termination notice")
	}

	assert.False(t, s.LoggedIn())
	assert.True(t, s.Current().Empty())
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, common.ErrNotLoggedIn, "stored credentials are wiped")

	select {
	case <-s.Terminated():
		t.Fatal("termination reported twice")
	default:
	}
}

func TestLogout_RevokesOwnToken(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})
	other := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	_, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	_, err = other.Login(ctx, email, password)
	require.NoError(t, err)

	old := s.Current().RefreshToken
	require.NoError(t, s.Logout(ctx, false))
	assert.False(t, s.LoggedIn())
	assert.True(t, s.Current().Empty())

	client := api.New(b.url, time.Second, api.WithHTTPClient(b.client))
	_, err = client.Refresh(ctx, old)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	var me meResponse
	assert.NoError(t, other.GetJSON(ctx, "/api/auth/me", &me), "other sessions survive")

	assert.NoError(t, s.Logout(ctx, false), "logout is idempotent")
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})
	other := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	_, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	_, err = other.Login(ctx, email, password)
	require.NoError(t, err)
	otherRefresh := other.Current().RefreshToken

	require.NoError(t, s.Logout(ctx, true))

	client := api.New(b.url, time.Second, api.WithHTTPClient(b.client))
	_, err = client.Refresh(ctx, otherRefresh)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestLogout_WithExpiredAccessToken(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	b.setSkew(-20 * time.Minute)
	_, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	b.setSkew(0)
	old := s.Current().RefreshToken

	require.NoError(t, s.Logout(ctx, true))
	assert.Equal(t, int32(1), b.refreshCalls.Load(), "a usable bearer is obtained first")

	client := api.New(b.url, time.Second, api.WithHTTPClient(b.client))
	_, err = client.Refresh(ctx, old)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestLogout_WaitsForRunningRenewal(t *testing.T) {
	b := newBackend(t)
	b.holdRefreshes()
	s := newSession(t, b, newStore(t), Config{})
	ctx := context.Background()

	b.setSkew(-20 * time.Minute)
	u, err := s.Login(ctx, email, password)
	require.NoError(t, err)
	b.setSkew(0)

	go func() {
		var me meResponse
		_ = s.GetJSON(ctx, "/api/auth/me", &me)
	}()
	<-b.refreshStarted

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- s.Logout(ctx, false) }()

	select {
	case err := <-loggedOut:
		t.Fatalf("logout finished while a renewal was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(b.refreshRelease)
	require.NoError(t, <-loggedOut)

	assert.Equal(t, int32(1), b.refreshCalls.Load(), "logout reuses the renewed token")
	left, err := b.store.RefreshTokens(nil).RevokeAllForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, left, "no refresh token is left active on the server")
}

func TestResume(t *testing.T) {
	b := newBackend(t)
	store := newStore(t)
	ctx := context.Background()

	first := newSession(t, b, store, Config{})
	_, err := first.Login(ctx, email, password)
	require.NoError(t, err)
	first.Close()

	second := newSession(t, b, store, Config{})
	require.NoError(t, second.Resume(ctx))
	assert.True(t, second.LoggedIn())

	var me meResponse
	require.NoError(t, second.GetJSON(ctx, "/api/auth/me", &me))
	assert.Equal(t, email, me.User.Email)
}

func TestResume_NothingStored(t *testing.T) {
	b := newBackend(t)
	s := newSession(t, b, newStore(t), Config{})

	assert.ErrorIs(t, s.Resume(context.Background()), common.ErrNotLoggedIn)
	assert.False(t, s.LoggedIn())
}

func TestResume_ExpiredRefresh(t *testing.T) {
	b := newBackend(t)
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, credentials.Pair{
		AccessToken:      "a",
		RefreshToken:     "r",
		RefreshExpiresAt: time.Now().Add(-time.Minute),
	}))

	s := newSession(t, b, store, Config{})
	assert.ErrorIs(t, s.Resume(ctx), common.ErrNotLoggedIn)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, common.ErrNotLoggedIn)
}
