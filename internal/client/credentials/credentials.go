// Package credentials holds the client's access/refresh pair: the model,
// its local SQLite persistence and the in-memory cache the request path
// reads from.
package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Pair is one session's credentials as handed out by the server.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             User      `json:"user"`
}

func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// AccessExpiry reads the exp claim of an access token without verifying
// its signature. The client cannot verify it and only needs the deadline.
func AccessExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("error parsing access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// ExpiresAt returns the access token's deadline, falling back to the
// server-reported one when the token cannot be parsed.
func (p Pair) ExpiresAt() time.Time {
	if exp, err := AccessExpiry(p.AccessToken); err == nil {
		return exp
	}
	return p.AccessExpiresAt
}
