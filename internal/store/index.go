package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// IndexStore holds the id → IndexRecord mapping in one well-known blob. The
// index is small enough that every save is a whole-document replace.
type IndexStore struct {
	contents Contents
	path     string
}

func NewIndexStore(contents Contents, root string) *IndexStore {
	return &IndexStore{contents: contents, path: root + "/dashboards/index.json"}
}

type indexFile struct {
	Dashboards map[string]IndexRecord `json:"dashboards"`
}

// Load reads the full index. A missing blob is initialized to an empty
// mapping and persisted before returning, so the index always exists after
// first use. Malformed content decodes to the empty mapping; only reads are
// lenient.
func (s *IndexStore) Load(ctx context.Context) (map[string]IndexRecord, error) {
	file, err := s.contents.Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if !file.Exists {
		records := map[string]IndexRecord{}
		if err := s.Save(ctx, records, "init dashboards index"); err != nil {
			return nil, err
		}
		return records, nil
	}

	var parsed indexFile
	if err := json.Unmarshal(file.Content, &parsed); err != nil || parsed.Dashboards == nil {
		return map[string]IndexRecord{}, nil
	}
	return parsed.Dashboards, nil
}

func (s *IndexStore) Save(ctx context.Context, records map[string]IndexRecord, message string) error {
	payload, err := json.MarshalIndent(indexFile{Dashboards: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if _, err := s.contents.Put(ctx, s.path, payload, message, ""); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}
