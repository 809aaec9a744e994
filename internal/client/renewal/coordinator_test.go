package renewal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type memStore struct {
	mu   sync.Mutex
	pair credentials.Pair
}

func (s *memStore) Load(context.Context) (credentials.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair.Empty() {
		return credentials.Pair{}, common.ErrNotLoggedIn
	}
	return s.pair, nil
}

func (s *memStore) Save(_ context.Context, p credentials.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = p
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = credentials.Pair{}
	return nil
}

// gatedRefresher blocks every call until release is closed.
type gatedRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error
}

func newGated(err error) *gatedRefresher {
	return &gatedRefresher{release: make(chan struct{}), started: make(chan struct{}, 16), err: err}
}

func (r *gatedRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error) {
	n := r.calls.Add(1)
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return credentials.Pair{}, ctx.Err()
	}
	if r.err != nil {
		return credentials.Pair{}, r.err
	}
	return credentials.Pair{
		AccessToken:  "a" + string(rune('1'+n)),
		RefreshToken: "r" + string(rune('1'+n)),
	}, nil
}

func newCache(t *testing.T, access, refresh string) *credentials.Cache {
	t.Helper()
	c := credentials.NewCache(&memStore{})
	if access != "" || refresh != "" {
		require.NoError(t, c.Set(context.Background(), credentials.Pair{AccessToken: access, RefreshToken: refresh}))
	}
	return c
}

func TestRenew_SingleFlight(t *testing.T) {
	cache := newCache(t, "a1", "r1")
	ref := newGated(nil)
	c := New(cache, ref)

	const n = 20
	tokens := make([]string, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			tok, err := c.Renew(ctx, "a1")
			tokens[i] = tok
			return err
		})
	}

	<-ref.started
	assert.Eventually(t, c.InFlight, time.Second, time.Millisecond)
	close(ref.release)

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ref.calls.Load(), "exactly one refresh request")
	for _, tok := range tokens {
		assert.Equal(t, "a2", tok)
	}
	assert.Equal(t, "r2", cache.RefreshToken())
	assert.False(t, c.InFlight())
}

func TestRenew_AlreadyRenewed(t *testing.T) {
	ref := newGated(nil)
	c := New(newCache(t, "a2", "r2"), ref)

	tok, err := c.Renew(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
	assert.Zero(t, ref.calls.Load())
}

func TestRenew_NotLoggedIn(t *testing.T) {
	c := New(newCache(t, "", ""), newGated(nil))

	_, err := c.Renew(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrNotLoggedIn)
	assert.False(t, c.TryRenew())
}

func TestRenew_FailureSharedAndReportedOnce(t *testing.T) {
	rejected := common.ErrInvalidCredential
	ref := newGated(rejected)

	var failures atomic.Int32
	c := New(newCache(t, "a1", "r1"), ref, WithFailureHandler(func(err error) {
		assert.ErrorIs(t, err, rejected)
		failures.Add(1)
	}))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Renew(context.Background(), "a1")
		}()
	}
	<-ref.started
	close(ref.release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, rejected)
	}
	assert.Equal(t, "a1", c.cache.AccessToken(), "failed renewal leaves the cache alone")

	_, err := c.Renew(context.Background(), "a1")
	assert.ErrorIs(t, err, common.ErrSessionClosed, "a failed coordinator is closed")
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), failures.Load(), "teardown hook runs once")
}

func TestClose_RejectsWaitersAndDropsResult(t *testing.T) {
	cache := newCache(t, "a1", "r1")
	ref := newGated(nil)
	c := New(cache, ref)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Renew(context.Background(), "a1")
		errCh <- err
	}()
	<-ref.started

	c.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, common.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}

	close(ref.release)
	assert.Eventually(t, func() bool { return !c.InFlight() }, time.Second, time.Millisecond)
	assert.Equal(t, "a1", cache.AccessToken(), "result of a closed flight is dropped")

	_, err := c.Renew(context.Background(), "a1")
	assert.ErrorIs(t, err, common.ErrSessionClosed)
	assert.False(t, c.TryRenew())
	c.Close()
}

func TestTryRenew(t *testing.T) {
	cache := newCache(t, "a1", "r1")
	ref := newGated(nil)
	c := New(cache, ref)

	assert.True(t, c.TryRenew())
	assert.False(t, c.TryRenew(), "one flight at a time")
	<-ref.started

	// a caller arriving mid-flight joins it
	done := make(chan string, 1)
	go func() {
		tok, _ := c.Renew(context.Background(), "a1")
		done <- tok
	}()

	close(ref.release)
	assert.Equal(t, "a2", <-done)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestRenew_Timeout(t *testing.T) {
	ref := newGated(nil)
	got := make(chan error, 1)
	c := New(newCache(t, "a1", "r1"), ref, WithTimeout(20*time.Millisecond), WithFailureHandler(func(err error) { got <- err }))

	_, err := c.Renew(context.Background(), "a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, <-got, context.DeadlineExceeded)
}

func TestRenew_WaiterContext(t *testing.T) {
	ref := newGated(nil)
	c := New(newCache(t, "a1", "r1"), ref)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ref.started
		cancel()
	}()

	_, err := c.Renew(ctx, "a1")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, c.InFlight(), "the flight outlives an impatient waiter")

	close(ref.release)
	assert.Eventually(t, func() bool { return !c.InFlight() }, time.Second, time.Millisecond)
	assert.Equal(t, "a2", c.cache.AccessToken())
}

func TestRenew_NoNewFlightAfterFailure(t *testing.T) {
	ref := newGated(common.ErrInvalidCredential)
	close(ref.release)

	// the handler blocks like a teardown that has not finished yet
	inHandler := make(chan struct{})
	unblock := make(chan struct{})
	c := New(newCache(t, "a1", "r1"), ref, WithFailureHandler(func(error) {
		close(inHandler)
		<-unblock
	}))
	t.Cleanup(func() { close(unblock) })

	_, err := c.Renew(context.Background(), "a1")
	require.ErrorIs(t, err, common.ErrInvalidCredential)
	<-inHandler

	assert.False(t, c.TryRenew(), "monitor must not start another refresh")
	_, err = c.Renew(context.Background(), "a1")
	assert.ErrorIs(t, err, common.ErrSessionClosed)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestDrain_KeepsResultAndBlocksNewFlights(t *testing.T) {
	cache := newCache(t, "a1", "r1")
	ref := newGated(nil)
	c := New(cache, ref)

	require.True(t, c.TryRenew())
	<-ref.started

	drained := make(chan error, 1)
	go func() { drained <- c.Drain(context.Background()) }()

	assert.Eventually(t, func() bool { return !c.TryRenew() }, time.Second, time.Millisecond)
	select {
	case <-drained:
		t.Fatal("Drain returned while the flight was running")
	case <-time.After(10 * time.Millisecond):
	}

	close(ref.release)
	require.NoError(t, <-drained)
	assert.Equal(t, "r2", cache.RefreshToken(), "drained flight still writes the cache")

	_, err := c.Renew(context.Background(), "a2")
	assert.ErrorIs(t, err, common.ErrSessionClosed)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestDrain_Idle(t *testing.T) {
	c := New(newCache(t, "a1", "r1"), newGated(nil))
	require.NoError(t, c.Drain(context.Background()))
	assert.False(t, c.TryRenew())
}

func TestDrain_ContextCancelled(t *testing.T) {
	ref := newGated(nil)
	c := New(newCache(t, "a1", "r1"), ref)
	require.True(t, c.TryRenew())
	<-ref.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Drain(ctx), context.Canceled)
	close(ref.release)
}
