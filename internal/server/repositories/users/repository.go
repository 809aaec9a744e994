// Package users declares the server-side repository contract for user
// accounts and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
)

// Repository looks up and creates users. Email lookups are case-insensitive.
type Repository interface {
	// Create stores user and fills in its ID and CreatedAt. A duplicate email
	// yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail returns common.ErrorNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID returns common.ErrorNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
