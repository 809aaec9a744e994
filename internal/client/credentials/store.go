package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/dbx"
	"github.com/jmoiron/sqlx"
)

// Store persists the current pair between client runs.
type Store interface {
	// Load returns common.ErrNotLoggedIn when nothing is stored.
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
}

const (
	keyAccessToken      = "access_token"
	keyAccessExpiresAt  = "access_expires_at"
	keyRefreshToken     = "refresh_token"
	keyRefreshExpiresAt = "refresh_expires_at"
	keyUser             = "user"
)

// SQLiteStore keeps the pair as rows of the credentials key/value table.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) (Pair, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Pair{}, fmt.Errorf("failed to scan credentials row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return Pair{}, fmt.Errorf("failed to iterate credentials rows: %w", err)
	}

	p := Pair{
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefreshToken],
	}
	if p.RefreshToken == "" {
		return Pair{}, common.ErrNotLoggedIn
	}

	if p.AccessExpiresAt, err = parseTime(values[keyAccessExpiresAt]); err != nil {
		return Pair{}, err
	}
	if p.RefreshExpiresAt, err = parseTime(values[keyRefreshExpiresAt]); err != nil {
		return Pair{}, err
	}
	if u := values[keyUser]; u != "" {
		if err := json.Unmarshal([]byte(u), &p.User); err != nil {
			return Pair{}, fmt.Errorf("failed to decode stored user: %w", err)
		}
	}

	return p, nil
}

// Save replaces the stored pair in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, p Pair) error {
	user, err := json.Marshal(p.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	values := map[string]string{
		keyAccessToken:      p.AccessToken,
		keyAccessExpiresAt:  formatTime(p.AccessExpiresAt),
		keyRefreshToken:     p.RefreshToken,
		keyRefreshExpiresAt: formatTime(p.RefreshExpiresAt),
		keyUser:             string(user),
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO credentials (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value
			`, k, v); err != nil {
				return fmt.Errorf("failed to set credentials[%s]: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}
