// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account that can open sessions. PasswordHash is a bcrypt hash
// and never leaves the server.
type User struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}
