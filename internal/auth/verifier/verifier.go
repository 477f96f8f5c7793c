// Package verifier validates externally issued OIDC bearer tokens.
package verifier

import (
	"context"
	"net/http"
	"strings"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/keyset"
	"auth-gateway/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier checks bearer tokens against the issuer's key set. Every
// verification failure collapses to "no identity": the caller decides
// whether absence of an identity is itself an error.
type Verifier struct {
	keys *keyset.Resolver
}

func New(keys *keyset.Resolver) *Verifier {
	return &Verifier{keys: keys}
}

// BearerFromHeader extracts the token from an Authorization header value.
// The Bearer scheme matches case-insensitively; anything else yields "".
func BearerFromHeader(header string) string {
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// VerifyRequest verifies the request's bearer token, if any.
func (v *Verifier) VerifyRequest(ctx context.Context, r *http.Request) *auth.Identity {
	raw := BearerFromHeader(r.Header.Get("Authorization"))
	if raw == "" {
		return nil
	}
	return v.Verify(ctx, raw)
}

// Verify validates signature, issuer, algorithm and expiry of raw and
// extracts the normalized identity. Returns nil on any failure.
func (v *Verifier) Verify(ctx context.Context, raw string) *auth.Identity {
	idv := oidc.NewVerifier(v.keys.Issuer(), v.keys.Keys(ctx), &oidc.Config{
		// Access tokens carry arbitrary audiences; authorization happens
		// against resource_access, not aud.
		SkipClientIDCheck:    true,
		SupportedSigningAlgs: []string{oidc.RS256},
	})

	idToken, err := idv.Verify(ctx, raw)
	if err != nil {
		logger.Warn("bearer verification failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	var claims struct {
		Scope          string                      `json:"scope"`
		Scp            string                      `json:"scp"`
		ResourceAccess map[string]auth.ClientRoles `json:"resource_access"`
		Email          string                      `json:"email"`
		Name           string                      `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		logger.Warn("bearer claims parse failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	// Keycloak emits "scope", Azure-style issuers emit "scp".
	scopeClaim := claims.Scope
	if scopeClaim == "" {
		scopeClaim = claims.Scp
	}
	scopes := []string{}
	if scopeClaim != "" {
		scopes = strings.Fields(scopeClaim)
	}

	return &auth.Identity{
		Subject:        idToken.Subject,
		Expiry:         idToken.Expiry.Unix(),
		Scopes:         scopes,
		ResourceAccess: claims.ResourceAccess,
		Email:          claims.Email,
		Name:           claims.Name,
	}
}
