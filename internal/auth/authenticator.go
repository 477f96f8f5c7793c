package auth

import (
	"context"
	"errors"
	"net/http"

	"auth-gateway/internal/logger"
	"auth-gateway/internal/store"
)

const (
	MethodCookie = "cookie"
	MethodBearer = "bearer"

	ProviderKeycloak = "keycloak"
)

// Principal is the normalized identity handed to request handlers.
type Principal struct {
	ID     string
	Email  string
	Name   string
	Role   string
	Method string
}

// BearerVerifier verifies a request's bearer token, yielding nil when the
// request carries no verifiable identity.
type BearerVerifier interface {
	VerifyRequest(ctx context.Context, r *http.Request) *Identity
}

// Authenticator reconciles cookie sessions and bearer tokens into one
// normalized identity backed by the local user store.
type Authenticator struct {
	verifier BearerVerifier
	users    store.Users
	clientID string
}

func NewAuthenticator(verifier BearerVerifier, users store.Users, clientID string) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		users:    users,
		clientID: clientID,
	}
}

// Authenticate produces the request's Principal. A session-derived user
// (cookie path) is trusted as-is; trust belongs to the session layer.
// Otherwise the bearer path verifies the token, requires a structurally
// present resource_access entry for this deployment's client id, and
// creates or role-syncs the local user record.
//
// The 403 on a missing client entry is stricter than the role extractor's
// default-to-user: the extractor's default applies to role absence inside
// a present entry, not to a missing entry.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, sessionUser *store.User) (*Principal, error) {
	if sessionUser != nil {
		return &Principal{
			ID:     sessionUser.ID,
			Email:  sessionUser.Email,
			Name:   sessionUser.Name,
			Role:   sessionUser.Role,
			Method: MethodCookie,
		}, nil
	}

	if a.verifier == nil || a.users == nil {
		return nil, NewAuthError(http.StatusInternalServerError, "authenticator is not configured")
	}
	if a.clientID == "" {
		return nil, NewAuthError(http.StatusInternalServerError, "no target client id configured")
	}

	identity := a.verifier.VerifyRequest(ctx, r)
	if identity == nil || identity.Subject == "" {
		return nil, NewAuthError(http.StatusUnauthorized, "no valid bearer identity")
	}
	if identity.Email == "" {
		return nil, NewAuthError(http.StatusUnauthorized, "bearer identity has no email claim")
	}

	if _, ok := identity.ResourceAccess[a.clientID]; !ok {
		return nil, NewAuthError(http.StatusForbidden, "token grants no access to this client")
	}
	role := RoleFromResourceAccess(identity.ResourceAccess, a.clientID)

	user, err := a.users.FindOneByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return a.provision(ctx, identity, role)
	case err != nil:
		return nil, NewAuthError(http.StatusInternalServerError, "user lookup failed")
	}

	if user.Role != role {
		logger.Info("syncing user role from provider claims", map[string]any{
			"user_id": user.ID,
			"from":    user.Role,
			"to":      role,
		})
		user.Role = role
		if err := a.users.Update(ctx, user); err != nil {
			return nil, NewAuthError(http.StatusInternalServerError, "role sync failed")
		}
	}

	return &Principal{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
		Method: MethodBearer,
	}, nil
}

// provision creates the local record for a first-time verified subject.
func (a *Authenticator) provision(ctx context.Context, identity *Identity, role string) (*Principal, error) {
	created, err := a.users.Create(ctx, &store.User{
		Email:   identity.Email,
		Name:    identity.Name,
		Role:    role,
		Enabled: true,
		Accounts: []store.LinkedAccount{{
			Provider:          ProviderKeycloak,
			ProviderAccountID: identity.Subject,
			Type:              store.AccountTypeOIDC,
		}},
	})
	if err != nil {
		return nil, NewAuthError(http.StatusInternalServerError, "user creation failed")
	}

	logger.Info("created local user for verified subject", map[string]any{
		"user_id": created.ID,
		"email":   created.Email,
		"role":    created.Role,
	})

	return &Principal{
		ID:     created.ID,
		Email:  created.Email,
		Name:   created.Name,
		Role:   created.Role,
		Method: MethodBearer,
	}, nil
}
