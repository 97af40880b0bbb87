package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execdash/api/internal/github"
)

type fakeBlob struct {
	content []byte
	sha     string
}

// fakeContents is an in-memory Contents implementation with the same
// compare-and-swap behavior as the real client.
type fakeContents struct {
	blobs map[string]fakeBlob
	seq   int
	puts  []string
}

func newFakeContents() *fakeContents {
	return &fakeContents{blobs: map[string]fakeBlob{}}
}

func (f *fakeContents) Get(_ context.Context, path string) (github.File, error) {
	blob, ok := f.blobs[path]
	if !ok {
		return github.File{Exists: false}, nil
	}
	return github.File{Exists: true, SHA: blob.sha, Content: blob.content}, nil
}

func (f *fakeContents) Put(_ context.Context, path string, content []byte, message, sha string) (string, error) {
	existing, ok := f.blobs[path]
	if ok && sha != "" && sha != existing.sha {
		return "", github.ErrConflict
	}
	f.seq++
	newSHA := fmt.Sprintf("sha-%d", f.seq)
	f.blobs[path] = fakeBlob{content: content, sha: newSHA}
	f.puts = append(f.puts, message)
	return newSHA, nil
}

func (f *fakeContents) Delete(_ context.Context, path, message, sha string) error {
	existing, ok := f.blobs[path]
	if !ok {
		return github.ErrNotFound
	}
	if sha != existing.sha {
		return github.ErrConflict
	}
	delete(f.blobs, path)
	return nil
}

func (f *fakeContents) seed(t *testing.T, path string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.seq++
	f.blobs[path] = fakeBlob{content: raw, sha: fmt.Sprintf("sha-%d", f.seq)}
}

func TestIndexStoreInitializesMissingIndex(t *testing.T) {
	contents := newFakeContents()
	index := NewIndexStore(contents, "db")

	records, err := index.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	blob, ok := contents.blobs["db/dashboards/index.json"]
	require.True(t, ok, "index blob should be persisted on first load")
	var parsed struct {
		Dashboards map[string]IndexRecord `json:"dashboards"`
	}
	require.NoError(t, json.Unmarshal(blob.content, &parsed))
	assert.NotNil(t, parsed.Dashboards)
	assert.Contains(t, contents.puts, "init dashboards index")
}

func TestIndexStoreRoundTrip(t *testing.T) {
	contents := newFakeContents()
	index := NewIndexStore(contents, "db")
	ctx := context.Background()

	record := IndexRecord{ID: "dash_1", OwnerID: "alice", Name: "Q1", Published: true, AllowedUsers: []string{"alice", "bob"}}
	require.NoError(t, index.Save(ctx, map[string]IndexRecord{"dash_1": record}, "update dashboards index"))

	records, err := index.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, record, records["dash_1"])
}

func TestIndexStoreLenientOnMalformedBlob(t *testing.T) {
	contents := newFakeContents()
	contents.blobs["db/dashboards/index.json"] = fakeBlob{content: []byte("{not json"), sha: "sha-1"}
	index := NewIndexStore(contents, "db")

	records, err := index.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDocumentStoreNormalizesEnvelopes(t *testing.T) {
	state := map[string]any{"executive": map[string]any{"summary": "ok"}}
	cases := map[string]any{
		"stateEnvelope": map[string]any{"id": "d", "state": state},
		"dataEnvelope":  map[string]any{"data": map[string]any{"state": state}},
		"bareState":     state,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			contents := newFakeContents()
			contents.seed(t, "db/dashboards/d.json", payload)
			docs := NewDocumentStore(contents, "db")

			doc, err := docs.Load(context.Background(), "d")
			require.NoError(t, err)
			assert.True(t, doc.Exists)
			assert.Equal(t, state, doc.State)
		})
	}
}

func TestDocumentStoreMissingBlob(t *testing.T) {
	docs := NewDocumentStore(newFakeContents(), "db")

	doc, err := docs.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
	assert.Empty(t, doc.SHA)
}

func TestDocumentStoreLenientOnMalformedBlob(t *testing.T) {
	contents := newFakeContents()
	contents.blobs["db/dashboards/d.json"] = fakeBlob{content: []byte("<<garbage>>"), sha: "sha-1"}
	docs := NewDocumentStore(contents, "db")

	doc, err := docs.Load(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, map[string]any{}, doc.State)
	assert.Equal(t, "sha-1", doc.SHA)
}

func TestDocumentStoreSaveWritesEnvelope(t *testing.T) {
	contents := newFakeContents()
	docs := NewDocumentStore(contents, "db")
	ctx := context.Background()

	state := map[string]any{"executive": map[string]any{"summary": "q1"}}
	require.NoError(t, docs.Save(ctx, "dash_1", "Q1 Launch", state, ""))

	var envelope Document
	require.NoError(t, json.Unmarshal(contents.blobs["db/dashboards/dash_1.json"].content, &envelope))
	assert.Equal(t, "dash_1", envelope.ID)
	assert.Equal(t, "Q1 Launch", envelope.Name)
	assert.Equal(t, state, envelope.State)
}

func TestUsersStoreSeedAdmin(t *testing.T) {
	contents := newFakeContents()
	users := NewUsersStore(contents, "db")
	ctx := context.Background()

	require.NoError(t, users.EnsureSeedAdmin(ctx, "s3cret"))

	loaded, err := users.Load(ctx)
	require.NoError(t, err)
	admin, ok := loaded["admin"]
	require.True(t, ok)
	assert.Equal(t, "admin", admin.Role)
	assert.True(t, CheckPassword(admin.PasswordHash, "s3cret"))
	assert.False(t, CheckPassword(admin.PasswordHash, "wrong"))

	// A second call must not rewrite the account.
	putsBefore := len(contents.puts)
	require.NoError(t, users.EnsureSeedAdmin(ctx, "different"))
	assert.Equal(t, putsBefore, len(contents.puts))
}

func TestUsersStoreMissingBlobIsEmpty(t *testing.T) {
	users := NewUsersStore(newFakeContents(), "db")

	loaded, err := users.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
