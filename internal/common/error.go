// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation error")

	// Login errors. Bad identity or secret is never retried.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimited          = errors.New("too many login attempts")

	// ErrInvalidCredential covers every reason a credential is refused:
	// malformed, bad signature, expired, revoked or already rotated.
	// The reasons are deliberately not distinguished.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrSigning means the token issuer is misconfigured (e.g. missing secret).
	ErrSigning = errors.New("token signing failed")

	// Client-side errors.
	ErrTransport     = errors.New("transport failure")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSessionClosed = errors.New("session closed")
	ErrNotLoggedIn   = errors.New("not logged in")
)
