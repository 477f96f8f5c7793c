// Package account maintains the per-user ledger of linked provider
// accounts and the encryption of their credential fields.
//
// Sign-in and refresh deliberately have distinct merge semantics:
// SignInUpsert strictly replaces the whole row (omitted fields are
// nulled), while ApplyRefresh touches only the refreshed fields and keeps
// the stored refresh token when the provider did not rotate it. Collapsing
// the two would risk deleting a valid refresh token during a sign-in.
package account

import (
	"errors"
	"fmt"

	"auth-gateway/internal/auth/tokencipher"
	"auth-gateway/internal/store"
)

var ErrNoAccount = errors.New("account: no linked account for provider")

// Incoming carries the plaintext fields a provider returned at sign-in.
type Incoming struct {
	Provider          string
	ProviderAccountID string
	Type              string
	AccessToken       string
	RefreshToken      string
	IDToken           string
	TokenType         string
	Scope             string
	SessionState      string
	ExpiresAt         int64
}

// SignInUpsert returns the account list with incoming applied, matched by
// (provider, providerAccountId). An existing row is replaced in full, not
// merged; a new row is appended. Credential fields are encrypted under
// secret before they ever reach the ledger — an unset secret is a loud
// configuration error, never a silent plaintext write.
func SignInUpsert(existing []store.LinkedAccount, incoming Incoming, secret string) ([]store.LinkedAccount, error) {
	if secret == "" {
		return nil, tokencipher.ErrMissingSecret
	}
	if incoming.Provider == "" || incoming.ProviderAccountID == "" {
		return nil, errors.New("account: provider and providerAccountId are required")
	}

	access, err := tokencipher.Encrypt(incoming.AccessToken, secret)
	if err != nil {
		return nil, fmt.Errorf("account: encrypt access token: %w", err)
	}
	refresh, err := tokencipher.Encrypt(incoming.RefreshToken, secret)
	if err != nil {
		return nil, fmt.Errorf("account: encrypt refresh token: %w", err)
	}
	idToken, err := tokencipher.Encrypt(incoming.IDToken, secret)
	if err != nil {
		return nil, fmt.Errorf("account: encrypt id token: %w", err)
	}

	row := store.LinkedAccount{
		Provider:          incoming.Provider,
		ProviderAccountID: incoming.ProviderAccountID,
		Type:              incoming.Type,
		AccessToken:       access,
		RefreshToken:      refresh,
		IDToken:           idToken,
		TokenType:         incoming.TokenType,
		Scope:             incoming.Scope,
		SessionState:      incoming.SessionState,
		ExpiresAt:         incoming.ExpiresAt,
	}

	next := append([]store.LinkedAccount(nil), existing...)
	for i := range next {
		if next[i].Provider == row.Provider && next[i].ProviderAccountID == row.ProviderAccountID {
			next[i] = row
			return next, nil
		}
	}
	return append(next, row), nil
}

// ApplyRefresh updates the provider's row after an access-token refresh.
// Only the access token, expiry and (when rotated) refresh token change;
// every other field is carried forward unchanged. newRefresh == "" keeps
// the previously stored encrypted refresh token.
func ApplyRefresh(accounts []store.LinkedAccount, provider, newAccess, newRefresh string, expiresAt int64, secret string) ([]store.LinkedAccount, error) {
	if secret == "" {
		return nil, tokencipher.ErrMissingSecret
	}

	access, err := tokencipher.Encrypt(newAccess, secret)
	if err != nil {
		return nil, fmt.Errorf("account: encrypt refreshed access token: %w", err)
	}

	next := append([]store.LinkedAccount(nil), accounts...)
	for i := range next {
		if next[i].Provider != provider {
			continue
		}
		next[i].AccessToken = access
		next[i].ExpiresAt = expiresAt
		if newRefresh != "" {
			refresh, err := tokencipher.Encrypt(newRefresh, secret)
			if err != nil {
				return nil, fmt.Errorf("account: encrypt rotated refresh token: %w", err)
			}
			next[i].RefreshToken = refresh
		}
		return next, nil
	}
	return nil, ErrNoAccount
}
