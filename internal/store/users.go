package store

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// UsersStore holds identity records in one blob, keyed by user id. It is read
// on every authenticated request for the caller's current role.
type UsersStore struct {
	contents Contents
	path     string
}

func NewUsersStore(contents Contents, root string) *UsersStore {
	return &UsersStore{contents: contents, path: root + "/users.json"}
}

type usersFile struct {
	Users map[string]User `json:"users"`
}

func (s *UsersStore) Load(ctx context.Context) (map[string]User, error) {
	file, err := s.contents.Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !file.Exists {
		return map[string]User{}, nil
	}

	var parsed usersFile
	if err := json.Unmarshal(file.Content, &parsed); err != nil || parsed.Users == nil {
		return map[string]User{}, nil
	}
	return parsed.Users, nil
}

func (s *UsersStore) Save(ctx context.Context, users map[string]User, message string) error {
	payload, err := json.MarshalIndent(usersFile{Users: users}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if _, err := s.contents.Put(ctx, s.path, payload, message, ""); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// EnsureSeedAdmin creates the admin account on first use so a fresh
// repository is never locked out.
func (s *UsersStore) EnsureSeedAdmin(ctx context.Context, password string) error {
	users, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := users["admin"]; ok {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	users["admin"] = User{
		UserID:       "admin",
		PasswordHash: hash,
		Role:         "admin",
		UpdatedAt:    Now(),
	}
	return s.Save(ctx, users, "seed admin user")
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
