// Package refreshtokens declares the server-side repository contract for
// refresh credential records and its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
)

// Repository stores refresh credential records keyed by the hash of the
// token value. Records are only ever revoked, except by Purge.
type Repository interface {
	// Create stores a new active record for userID.
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)

	// FindActive returns the unrevoked, unexpired record for tokenHash and
	// locks it for the rest of the enclosing transaction. It returns
	// common.ErrorNotFound when no such record exists.
	FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke marks one record as revoked. Revoking twice is not an error.
	Revoke(ctx context.Context, id string) error

	// RevokeAllForUser revokes every active record owned by userID and
	// returns how many were changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// Purge deletes records revoked or expired before the given instant.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
