package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
	"github.com/google/uuid"
)

type refreshTokensRepo struct {
	m *Manager
}

func (r *refreshTokensRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	var out *models.RefreshToken
	err := r.m.do(ctx, func(st *state) error {
		for _, t := range st.tokens {
			if t.TokenHash == tokenHash {
				return common.ErrAlreadyExists
			}
		}
		rt := models.RefreshToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			TokenHash: tokenHash,
			ExpiresAt: expiresAt,
			CreatedAt: r.m.now(),
		}
		st.tokens[rt.ID] = rt
		out = &rt
		return nil
	})
	return out, err
}

func (r *refreshTokensRepo) FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var out *models.RefreshToken
	err := r.m.do(ctx, func(st *state) error {
		now := r.m.now()
		for _, t := range st.tokens {
			if t.TokenHash == tokenHash && t.Active(now) {
				out = &t
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return out, err
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, id string) error {
	return r.m.do(ctx, func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || t.Revoked {
			return nil
		}
		now := r.m.now()
		t.Revoked = true
		t.RevokedAt = &now
		st.tokens[id] = t
		return nil
	})
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.m.do(ctx, func(st *state) error {
		now := r.m.now()
		for id, t := range st.tokens {
			if t.UserID != userID || t.Revoked {
				continue
			}
			at := now
			t.Revoked = true
			t.RevokedAt = &at
			st.tokens[id] = t
			n++
		}
		return nil
	})
	return n, err
}

func (r *refreshTokensRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.m.do(ctx, func(st *state) error {
		for id, t := range st.tokens {
			revokedLongAgo := t.Revoked && t.RevokedAt != nil && t.RevokedAt.Before(before)
			if revokedLongAgo || t.ExpiresAt.Before(before) {
				delete(st.tokens, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
