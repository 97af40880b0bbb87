package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"execdash/api/internal/store"
)

func TestCanRead(t *testing.T) {
	record := store.IndexRecord{
		ID:           "dash_1",
		OwnerID:      "alice",
		Published:    true,
		AllowedUsers: []string{"alice", "bob"},
	}

	cases := []struct {
		name     string
		record   store.IndexRecord
		identity store.Identity
		want     bool
	}{
		{"admin reads anything", store.IndexRecord{OwnerID: "alice"}, store.Identity{UserID: "root", Role: "admin"}, true},
		{"owner reads own draft", store.IndexRecord{OwnerID: "alice"}, store.Identity{UserID: "alice", Role: "viewer"}, true},
		{"stranger cannot read draft", store.IndexRecord{OwnerID: "alice"}, store.Identity{UserID: "bob", Role: "viewer"}, false},
		{"published to all is open", store.IndexRecord{OwnerID: "alice", Published: true, PublishedToAll: true}, store.Identity{UserID: "carol", Role: "viewer"}, true},
		{"allowed user reads published", record, store.Identity{UserID: "bob", Role: "viewer"}, true},
		{"unlisted user cannot read published", record, store.Identity{UserID: "carol", Role: "viewer"}, false},
		{"allow list ignored while unpublished", store.IndexRecord{OwnerID: "alice", Published: false, AllowedUsers: []string{"bob"}}, store.Identity{UserID: "bob", Role: "viewer"}, false},
		{"unknown role treated as viewer", record, store.Identity{UserID: "carol", Role: "superuser"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanRead(tc.record, tc.identity))
		})
	}
}

func TestCanModify(t *testing.T) {
	record := store.IndexRecord{
		OwnerID:      "alice",
		Published:    true,
		AllowedUsers: []string{"alice", "bob"},
	}

	assert.True(t, CanModify(record, store.Identity{UserID: "alice", Role: "viewer"}))
	assert.True(t, CanModify(record, store.Identity{UserID: "root", Role: "admin"}))
	// Read access never implies write access.
	assert.False(t, CanModify(record, store.Identity{UserID: "bob", Role: "viewer"}))
}

func TestHasPermission(t *testing.T) {
	viewer := store.Identity{UserID: "bob", Role: "viewer", Permissions: map[string]bool{PermExecutiveBoard: true}}

	assert.True(t, HasPermission(viewer, PermExecutiveBoard))
	assert.False(t, HasPermission(viewer, PermUserManager))
	assert.True(t, HasPermission(store.Identity{UserID: "root", Role: "admin"}, PermUserManager))
	assert.False(t, HasPermission(store.Identity{UserID: "carol", Role: "viewer"}, PermExecutiveBoard))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, RoleAdmin, Normalize("admin"))
	assert.Equal(t, RoleViewer, Normalize("viewer"))
	assert.Equal(t, RoleViewer, Normalize(""))
	assert.Equal(t, RoleViewer, Normalize("owner"))
}
