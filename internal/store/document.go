package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// DocumentStore reads and writes one blob per dashboard id. The SHA returned
// by Load is the compare-and-swap token for the following Save or Delete.
type DocumentStore struct {
	contents Contents
	dir      string
}

func NewDocumentStore(contents Contents, root string) *DocumentStore {
	return &DocumentStore{contents: contents, dir: root + "/dashboards"}
}

// LoadedDocument carries the normalized state together with the SHA it was
// read at.
type LoadedDocument struct {
	Exists bool
	SHA    string
	State  map[string]any
}

func (s *DocumentStore) Load(ctx context.Context, id string) (LoadedDocument, error) {
	file, err := s.contents.Get(ctx, s.path(id))
	if err != nil {
		return LoadedDocument{}, fmt.Errorf("load dashboard %s: %w", id, err)
	}
	if !file.Exists {
		return LoadedDocument{Exists: false}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(file.Content, &raw); err != nil {
		// Partially written or legacy blobs decode to the empty state.
		raw = nil
	}
	return LoadedDocument{Exists: true, SHA: file.SHA, State: normalizeState(raw)}, nil
}

func (s *DocumentStore) Save(ctx context.Context, id, name string, state map[string]any, sha string) error {
	payload, err := json.MarshalIndent(Document{ID: id, Name: name, State: state}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dashboard %s: %w", id, err)
	}
	if _, err := s.contents.Put(ctx, s.path(id), payload, "update "+id, sha); err != nil {
		return fmt.Errorf("save dashboard %s: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id, sha string) error {
	if err := s.contents.Delete(ctx, s.path(id), "delete "+id, sha); err != nil {
		return fmt.Errorf("delete dashboard %s: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) path(id string) string {
	return s.dir + "/" + id + ".json"
}

// Dashboard blobs exist in three historical envelopes: {"state":{...}},
// {"data":{"state":{...}}}, and the bare state object. Normalization prefers
// the most specific wrapper and always yields a non-nil mapping.
func normalizeState(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	if state, ok := raw["state"].(map[string]any); ok {
		return state
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if state, ok := data["state"].(map[string]any); ok {
			return state
		}
	}
	return raw
}
