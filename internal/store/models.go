// Package store persists dashboards, their index, and users as JSON blobs in
// the backing contents repository. The repository is the sole source of truth:
// nothing is cached between requests.
package store

import (
	"context"
	"errors"
	"time"

	"execdash/api/internal/github"
)

// Contents is the slice of the contents API client the stores depend on.
type Contents interface {
	Get(ctx context.Context, path string) (github.File, error)
	Put(ctx context.Context, path string, content []byte, message, sha string) (string, error)
	Delete(ctx context.Context, path, message, sha string) error
}

// IndexRecord describes one dashboard's ownership, timestamps, and
// visibility. Invariant: AllowedUsers contains OwnerID whenever Published is
// true and PublishedToAll is false.
type IndexRecord struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"ownerId"`
	Name           string   `json:"name"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
	Published      bool     `json:"published"`
	PublishedToAll bool     `json:"publishedToAll,omitempty"`
	PublishedAt    string   `json:"publishedAt,omitempty"`
	AllowedUsers   []string `json:"allowedUsers,omitempty"`
}

// Document is the self-describing envelope written for every dashboard blob.
type Document struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	State map[string]any `json:"state"`
}

type User struct {
	UserID       string          `json:"userId"`
	PasswordHash string          `json:"passwordHash,omitempty"`
	Role         string          `json:"role"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
}

// Identity is the authenticated caller as handed over by the session layer.
type Identity struct {
	UserID      string
	Role        string
	Permissions map[string]bool
}

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Timestamps are persisted as ISO-8601 strings so legacy blobs written by
// other tooling stay readable.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
