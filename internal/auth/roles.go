package auth

import "auth-gateway/internal/store"

// RoleFromResourceAccess maps a token's resource_access claim to the
// internal role for clientID.
//
// When the client entry carries roles, the FIRST listed role wins; multiple
// roles deliberately collapse to the first one rather than a union. Absent,
// empty or malformed claims default to "user". This never fails.
//
// Note: the request authenticator separately refuses tokens whose
// resource_access lacks the client key entirely (403); this extractor's
// default applies to role absence within a present claim set.
func RoleFromResourceAccess(ra map[string]ClientRoles, clientID string) string {
	if ra == nil || clientID == "" {
		return store.RoleUser
	}
	entry, ok := ra[clientID]
	if !ok || len(entry.Roles) == 0 {
		return store.RoleUser
	}
	return entry.Roles[0]
}
