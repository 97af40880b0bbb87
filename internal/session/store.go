// Package session provides server-side session storage backends.
package session

import (
	"context"
	"errors"
	"time"
)

// Record is the state held for one login session.
type Record struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("session not found or expired")

type Store interface {
	Save(ctx context.Context, tokenHash string, record Record, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (Record, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
	Close() error
}
