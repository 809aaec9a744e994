// Package memory provides an in-process RepositoryManager used for local
// development and tests. All state lives in maps guarded by a store-wide
// lock; WithTx serializes units of work and restores a snapshot when the
// work fails.
package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/dbx"
	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/users"
)

type txKey struct{}

type state struct {
	users  map[string]models.User
	tokens map[string]models.RefreshToken
}

func (s state) clone() state {
	c := state{
		users:  make(map[string]models.User, len(s.users)),
		tokens: make(map[string]models.RefreshToken, len(s.tokens)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		if v.RevokedAt != nil {
			at := *v.RevokedAt
			v.RevokedAt = &at
		}
		c.tokens[k] = v
	}
	return c
}

// Manager is both a repomanager.RepositoryManager and a dbx.Transactor.
type Manager struct {
	// txMu is held for the whole of a unit of work.
	txMu sync.Mutex
	// mu guards st for single operations.
	mu  sync.Mutex
	st  state
	now func() time.Time
}

type Option func(*Manager)

// WithClock overrides time.Now for expiry checks and revocation stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		st: state{
			users:  map[string]models.User{},
			tokens: map[string]models.RefreshToken{},
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RunMigrations is a no-op; the schema is implicit in the maps.
func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

// Users ignores db; every repository shares the manager's state.
func (m *Manager) Users(db dbx.DBTX) users.Repository {
	return &usersRepo{m: m}
}

// RefreshTokens ignores db; every repository shares the manager's state.
func (m *Manager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &refreshTokensRepo{m: m}
}

// WithTx runs fn as one unit of work. Other units of work and operations
// made outside any unit of work wait until fn returns. On error or panic the
// state is restored to what it was before fn started.
func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	if m.inTx(ctx) {
		return fn(ctx, nil)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			m.restore(snapshot)
			panic(p)
		}
		if err != nil {
			m.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, m), nil)
}

func (m *Manager) restore(s state) {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
}

func (m *Manager) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Manager)
	return owner == m
}

// do runs op against the state, waiting for any running unit of work unless
// ctx belongs to it.
func (m *Manager) do(ctx context.Context, op func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.inTx(ctx) {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return op(&m.st)
}
