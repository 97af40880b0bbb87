package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"execdash/api/internal/auth"
	"execdash/api/internal/board"
	"execdash/api/internal/config"
	"execdash/api/internal/rbac"
	"execdash/api/internal/session"
	"execdash/api/internal/store"
	"execdash/api/internal/util"
)

// Session is the authenticated request context produced by the cookie layer.
type Session struct {
	Token     string
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type indexStore interface {
	Load(ctx context.Context) (map[string]store.IndexRecord, error)
	Save(ctx context.Context, records map[string]store.IndexRecord, message string) error
}

type documentStore interface {
	Load(ctx context.Context, id string) (store.LoadedDocument, error)
	Save(ctx context.Context, id, name string, state map[string]any, sha string) error
	Delete(ctx context.Context, id, sha string) error
}

type usersStore interface {
	Load(ctx context.Context) (map[string]store.User, error)
	Save(ctx context.Context, users map[string]store.User, message string) error
	EnsureSeedAdmin(ctx context.Context, password string) error
}

type Service struct {
	cfg      config.Config
	index    indexStore
	docs     documentStore
	users    usersStore
	sessions session.Store
}

func New(cfg config.Config, index *store.IndexStore, docs *store.DocumentStore, users *store.UsersStore, sessions session.Store) *Service {
	return &Service{
		cfg:      cfg,
		index:    index,
		docs:     docs,
		users:    users,
		sessions: sessions,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// Login verifies credentials against the users blob and creates a
// server-side session. The admin account is seeded on first use.
func (s *Service) Login(ctx context.Context, userID, password string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return Session{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "userId and password required", nil)
	}

	if err := s.users.EnsureSeedAdmin(ctx, s.cfg.AdminPassword); err != nil {
		return Session{}, err
	}

	users, err := s.users.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	user, ok := users[userID]
	if !ok || !store.CheckPassword(user.PasswordHash, password) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)
	}

	sessionID := util.NewID("sess")
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	err = s.sessions.Save(ctx, auth.HashToken(sessionID), session.Record{
		UserID: user.UserID,
		Role:   user.Role,
	}, expiresAt)
	if err != nil {
		return Session{}, err
	}

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		UserID:    user.UserID,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.UserID,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken verifies the cookie token and checks the server-side
// session has not been revoked.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	record, err := s.sessions.Lookup(ctx, auth.HashToken(claims.SessionID))
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if record.UserID != claims.UserID {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session) error {
	if sess.SessionID != "" {
		_ = s.sessions.Revoke(ctx, auth.HashToken(sess.SessionID))
	}
	return nil
}

// Identity resolves the caller's current role and permissions from the users
// blob. The session only proves who the caller is; authority is always read
// fresh so role changes take effect immediately.
func (s *Service) Identity(ctx context.Context, sess Session) (store.Identity, error) {
	users, err := s.users.Load(ctx)
	if err != nil {
		return store.Identity{}, err
	}
	user, ok := users[sess.UserID]
	if !ok {
		return store.Identity{UserID: sess.UserID, Role: string(rbac.RoleViewer)}, nil
	}
	return store.Identity{
		UserID:      user.UserID,
		Role:        string(rbac.Normalize(user.Role)),
		Permissions: user.Permissions,
	}, nil
}

// List returns summaries of every dashboard visible to the identity. Bodies
// are never exposed here.
func (s *Service) List(ctx context.Context, identity store.Identity) ([]map[string]any, error) {
	records, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]map[string]any, 0, len(records))
	for _, id := range ids {
		record := records[id]
		if !rbac.CanRead(record, identity) {
			continue
		}
		items = append(items, map[string]any{
			"id":        record.ID,
			"name":      record.Name,
			"updatedAt": record.UpdatedAt,
			"published": record.Published,
		})
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id string, identity store.Identity) (map[string]any, error) {
	records, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	record, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("dashboard %s: %w", id, store.ErrNotFound)
	}
	if !rbac.CanRead(record, identity) {
		return nil, fmt.Errorf("dashboard %s: %w", id, store.ErrForbidden)
	}

	doc, err := s.docs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.Exists {
		return nil, fmt.Errorf("dashboard %s: %w", id, store.ErrNotFound)
	}

	return map[string]any{
		"id":    record.ID,
		"name":  record.Name,
		"meta":  record,
		"state": doc.State,
	}, nil
}

type SaveInput struct {
	State map[string]any
	Patch map[string]any
	Name  string
	Merge bool
}

// Save creates or updates a dashboard. The first save creates the index
// record with the caller as owner. Both modes deep-merge onto the last-read
// state so a structural save cannot blank out sibling sections it does not
// mention. The document blob is written first under its last-read SHA, then
// the index; a failure between the two is reported, not hidden.
func (s *Service) Save(ctx context.Context, id string, identity store.Identity, input SaveInput) error {
	records, err := s.index.Load(ctx)
	if err != nil {
		return err
	}
	record, exists := records[id]
	if exists && !rbac.CanModify(record, identity) {
		return fmt.Errorf("dashboard %s: %w", id, store.ErrForbidden)
	}

	incoming := input.State
	if input.Merge {
		incoming = input.Patch
	}
	if incoming == nil {
		return fmt.Errorf("no data provided: %w", store.ErrInvalidInput)
	}

	doc, err := s.docs.Load(ctx, id)
	if err != nil {
		return err
	}
	next := store.Merge(doc.State, incoming)

	now := store.Now()
	if !exists {
		record = store.IndexRecord{
			ID:        id,
			OwnerID:   identity.UserID,
			CreatedAt: now,
			Published: false,
		}
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = record.Name
	}
	if name == "" {
		name = id
	}
	record.Name = name
	record.UpdatedAt = now
	records[id] = record

	if err := s.docs.Save(ctx, id, name, next, doc.SHA); err != nil {
		return err
	}
	if err := s.index.Save(ctx, records, "update dashboards index"); err != nil {
		// Known consistency window: the document blob is already current.
		return fmt.Errorf("dashboard %s written but index update failed: %w", id, err)
	}
	return nil
}

type PublishInput struct {
	All   bool
	Users []string
}

func (s *Service) Publish(ctx context.Context, id string, identity store.Identity, input PublishInput) error {
	return s.updateRecord(ctx, id, identity, func(record *store.IndexRecord) {
		now := store.Now()
		record.Published = true
		record.PublishedToAll = input.All
		record.PublishedAt = now
		record.UpdatedAt = now
		if input.All {
			record.AllowedUsers = nil
			return
		}
		record.AllowedUsers = allowedSet(record.OwnerID, input.Users)
	})
}

func (s *Service) Unpublish(ctx context.Context, id string, identity store.Identity) error {
	return s.updateRecord(ctx, id, identity, func(record *store.IndexRecord) {
		record.Published = false
		record.PublishedToAll = false
		record.PublishedAt = ""
		record.AllowedUsers = []string{record.OwnerID}
		record.UpdatedAt = store.Now()
	})
}

func (s *Service) updateRecord(ctx context.Context, id string, identity store.Identity, mutate func(*store.IndexRecord)) error {
	records, err := s.index.Load(ctx)
	if err != nil {
		return err
	}
	record, ok := records[id]
	if !ok {
		return fmt.Errorf("dashboard %s: %w", id, store.ErrNotFound)
	}
	if !rbac.CanModify(record, identity) {
		return fmt.Errorf("dashboard %s: %w", id, store.ErrForbidden)
	}

	mutate(&record)
	records[id] = record
	return s.index.Save(ctx, records, "update dashboards index")
}

// Delete removes the dashboard blob and its index record. The two writes are
// not atomic; a failure after the blob is gone is reported with the partial
// state named.
func (s *Service) Delete(ctx context.Context, id string, identity store.Identity) error {
	records, err := s.index.Load(ctx)
	if err != nil {
		return err
	}
	record, ok := records[id]
	if !ok {
		return fmt.Errorf("dashboard %s: %w", id, store.ErrNotFound)
	}
	if !rbac.CanModify(record, identity) {
		return fmt.Errorf("dashboard %s: %w", id, store.ErrForbidden)
	}

	doc, err := s.docs.Load(ctx, id)
	if err != nil {
		return err
	}
	if doc.Exists {
		if err := s.docs.Delete(ctx, id, doc.SHA); err != nil {
			return err
		}
	}

	delete(records, id)
	if err := s.index.Save(ctx, records, "update dashboards index"); err != nil {
		return fmt.Errorf("dashboard %s blob removed but index update failed: %w", id, err)
	}
	return nil
}

// Board assembles the executive-board cards: published dashboards visible to
// the caller, hydrated with their state.
func (s *Service) Board(ctx context.Context, identity store.Identity, sortMode string) (map[string]any, error) {
	if !rbac.HasPermission(identity, rbac.PermExecutiveBoard) {
		return nil, fmt.Errorf("executive board access required: %w", store.ErrForbidden)
	}

	records, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}

	cards := make([]board.Card, 0, len(records))
	for _, record := range records {
		if !record.Published || !rbac.CanRead(record, identity) {
			continue
		}
		doc, err := s.docs.Load(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, board.BuildCard(record, doc.State))
	}

	board.SortCards(cards, sortMode)
	return map[string]any{"items": cards}, nil
}

// Me reports the caller's current account state for the UI shell.
func (s *Service) Me(ctx context.Context, sess Session) (map[string]any, error) {
	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	user, ok := users[sess.UserID]
	if !ok {
		return map[string]any{"authenticated": false}, nil
	}
	permissions := user.Permissions
	if permissions == nil {
		permissions = map[string]bool{}
	}
	return map[string]any{
		"authenticated": true,
		"userId":        user.UserID,
		"role":          string(rbac.Normalize(user.Role)),
		"permissions":   permissions,
	}, nil
}

// ListUserRefs is available to any authenticated caller, for building share
// pickers. Only id and role are exposed.
func (s *Service) ListUserRefs(ctx context.Context) (map[string]any, error) {
	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]map[string]any, 0, len(users))
	for _, id := range sortedUserIDs(users) {
		refs = append(refs, map[string]any{
			"userId": users[id].UserID,
			"role":   users[id].Role,
		})
	}
	return map[string]any{"users": refs}, nil
}

func (s *Service) ListUsers(ctx context.Context, identity store.Identity) (map[string]any, error) {
	if !rbac.HasPermission(identity, rbac.PermUserManager) {
		return nil, fmt.Errorf("user manager access required: %w", store.ErrForbidden)
	}
	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, id := range sortedUserIDs(users) {
		user := users[id]
		permissions := user.Permissions
		if permissions == nil {
			permissions = map[string]bool{}
		}
		items = append(items, map[string]any{
			"userId":      user.UserID,
			"role":        user.Role,
			"permissions": permissions,
			"updatedAt":   user.UpdatedAt,
		})
	}
	return map[string]any{"users": items}, nil
}

type UserInput struct {
	UserID      string
	Password    string
	Role        string
	Permissions map[string]bool
}

// UpsertUser creates or replaces an account.
func (s *Service) UpsertUser(ctx context.Context, identity store.Identity, input UserInput) error {
	if !rbac.HasPermission(identity, rbac.PermUserManager) {
		return fmt.Errorf("user manager access required: %w", store.ErrForbidden)
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || input.Password == "" {
		return fmt.Errorf("userId and password required: %w", store.ErrInvalidInput)
	}

	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}
	hash, err := store.HashPassword(input.Password)
	if err != nil {
		return err
	}
	role := input.Role
	if role == "" {
		role = string(rbac.RoleViewer)
	}
	permissions := input.Permissions
	if permissions == nil {
		permissions = map[string]bool{}
	}
	users[userID] = store.User{
		UserID:       userID,
		PasswordHash: hash,
		Role:         role,
		Permissions:  permissions,
		UpdatedAt:    store.Now(),
	}
	return s.users.Save(ctx, users, "upsert user "+userID)
}

// UpdateUser changes only the fields present in the input.
func (s *Service) UpdateUser(ctx context.Context, identity store.Identity, input UserInput) error {
	if !rbac.HasPermission(identity, rbac.PermUserManager) {
		return fmt.Errorf("user manager access required: %w", store.ErrForbidden)
	}
	userID := strings.TrimSpace(input.UserID)
	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}
	user, ok := users[userID]
	if userID == "" || !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}

	if input.Role != "" {
		user.Role = input.Role
	}
	if input.Password != "" {
		hash, err := store.HashPassword(input.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	if input.Permissions != nil {
		user.Permissions = input.Permissions
	}
	user.UpdatedAt = store.Now()
	users[userID] = user
	return s.users.Save(ctx, users, "update user "+userID)
}

func (s *Service) DeleteUser(ctx context.Context, identity store.Identity, userID string) error {
	if !rbac.HasPermission(identity, rbac.PermUserManager) {
		return fmt.Errorf("user manager access required: %w", store.ErrForbidden)
	}
	userID = strings.TrimSpace(userID)
	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := users[userID]; userID == "" || !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	delete(users, userID)
	return s.users.Save(ctx, users, "delete user "+userID)
}

func allowedSet(ownerID string, users []string) []string {
	seen := map[string]struct{}{ownerID: {}}
	allowed := []string{ownerID}
	for _, user := range users {
		user = strings.TrimSpace(user)
		if user == "" {
			continue
		}
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}
		allowed = append(allowed, user)
	}
	return allowed
}

func sortedUserIDs(users map[string]store.User) []string {
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
