package auth

// ClientRoles is one entry of the token's resource_access claim.
type ClientRoles struct {
	Roles []string `json:"roles"`
}

// Identity represents the verified claims of an external bearer token.
// It contains facts only, no decisions, and is never persisted directly.
type Identity struct {
	Subject        string                 // provider-scoped unique user identifier (sub)
	Expiry         int64                  // epoch seconds, 0 when absent
	Scopes         []string               // space-delimited scope claim, split
	ResourceAccess map[string]ClientRoles // client id -> granted roles, nil when absent
	Email          string
	Name           string
}
