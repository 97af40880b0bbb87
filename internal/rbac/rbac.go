package rbac

import "execdash/api/internal/store"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

// Permission flags grantable to viewers.
const (
	PermExecutiveBoard = "executiveBoard"
	PermUserManager    = "userManager"
)

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// CanRead reports whether identity may read the dashboard described by
// record. Rule order: admin, owner, published-to-all, published with an
// allow-list hit.
func CanRead(record store.IndexRecord, identity store.Identity) bool {
	if Normalize(identity.Role) == RoleAdmin {
		return true
	}
	if record.OwnerID != "" && record.OwnerID == identity.UserID {
		return true
	}
	if record.PublishedToAll {
		return true
	}
	if record.Published {
		for _, allowed := range record.AllowedUsers {
			if allowed == identity.UserID {
				return true
			}
		}
	}
	return false
}

// CanModify is the stricter write-side check: only the owner or an admin may
// save, publish, unpublish, or delete.
func CanModify(record store.IndexRecord, identity store.Identity) bool {
	if Normalize(identity.Role) == RoleAdmin {
		return true
	}
	return record.OwnerID == identity.UserID
}

func HasPermission(identity store.Identity, permission string) bool {
	if Normalize(identity.Role) == RoleAdmin {
		return true
	}
	return identity.Permissions[permission]
}
