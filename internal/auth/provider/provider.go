package provider

import (
	"context"

	"auth-gateway/internal/auth"
)

// Credentials is the raw token material a provider returned at sign-in.
// Values are plaintext here; the account ledger encrypts them before
// anything is stored.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	SessionState string
	ExpiresAt    int64 // epoch seconds, 0 when the provider sent no expiry
}

// OAuthProvider defines the contract every external auth provider must
// implement. Implementations return identity facts and token material
// only; user creation, linking and session management happen elsewhere.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "keycloak", "google").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider
	// credentials and returns the verified identity alongside them.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.Identity, *Credentials, error)
}
