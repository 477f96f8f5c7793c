// Package store is the narrow persistence boundary for user records.
//
// All operations run with administrative privilege: this subsystem is part
// of the access-control boundary and bypasses record-level access rules.
package store

import (
	"context"
	"errors"
	"time"
)

// Role values cached on the local user record. The role is a projection of
// the identity provider's latest resource-role claim and is re-synchronized
// on every authenticated bearer request.
const (
	RoleUser             = "user"
	RoleAdmin            = "admin"
	RoleDigitalColleague = "digital-colleague"
)

// Account types mirrored from the provider side.
const (
	AccountTypeOIDC     = "oidc"
	AccountTypeOAuth    = "oauth"
	AccountTypeEmail    = "email"
	AccountTypeWebAuthn = "webauthn"
)

var ErrNotFound = errors.New("store: not found")

// LinkedAccount ties a user to one external identity-provider account.
// Credential fields hold encrypted blobs; ExpiresAt stays in the clear so
// refresh decisions never require decryption.
type LinkedAccount struct {
	Provider          string
	ProviderAccountID string
	Type              string
	AccessToken       string
	RefreshToken      string
	IDToken           string
	TokenType         string
	Scope             string
	SessionState      string
	ExpiresAt         int64 // epoch seconds, 0 = no expiry recorded
}

// User is the local identity record.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	Enabled   bool
	Accounts  []LinkedAccount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account returns the linked account for provider, or nil.
func (u *User) Account(provider string) *LinkedAccount {
	for i := range u.Accounts {
		if u.Accounts[i].Provider == provider {
			return &u.Accounts[i]
		}
	}
	return nil
}

// Users is the persistence collaborator consumed by the auth layer.
// Lookups that match nothing return ErrNotFound, never a nil user.
type Users interface {
	FindOneByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
	Update(ctx context.Context, u *User) error
}
