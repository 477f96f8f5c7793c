// Package keyset resolves the identity provider's public signing keys.
package keyset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"auth-gateway/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	discoveryPath = "/.well-known/openid-configuration"
	// Keycloak's JWKS location, guessed when discovery is unreachable.
	fallbackJWKSPath = "/protocol/openid-connect/certs"

	fetchTimeout = 10 * time.Second
)

// Resolver discovers and caches the issuer's JWKS endpoint. It is a
// long-lived service object constructed once at startup; the key set is
// resolved lazily on first use and reused for the process lifetime.
// Per-kid refetching on key rotation belongs to the underlying
// oidc.RemoteKeySet, not to this resolver.
type Resolver struct {
	issuer string
	client *http.Client

	once sync.Once
	keys oidc.KeySet
}

func NewResolver(issuer string) *Resolver {
	return &Resolver{
		issuer: strings.TrimRight(issuer, "/"),
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (r *Resolver) Issuer() string {
	return r.issuer
}

// Keys returns the shared remote key set, resolving the JWKS URL on the
// first call. Discovery failure degrades to the guessed Keycloak JWKS
// path instead of failing outright; verification against a wrong guess
// simply fails later at the verifier.
func (r *Resolver) Keys(ctx context.Context) oidc.KeySet {
	r.once.Do(func() {
		url := r.jwksURL(ctx)
		// The remote key set re-fetches per unknown kid; the background
		// context keeps it usable beyond the first request.
		r.keys = oidc.NewRemoteKeySet(context.Background(), url)
	})
	return r.keys
}

func (r *Resolver) jwksURL(ctx context.Context) string {
	url, err := r.discoverJWKSURL(ctx)
	if err != nil {
		fallback := r.issuer + fallbackJWKSPath
		logger.Warn("oidc discovery failed, using guessed jwks url", map[string]any{
			"error":    err.Error(),
			"fallback": fallback,
		})
		return fallback
	}
	return url
}

func (r *Resolver) discoverJWKSURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.issuer+discoveryPath, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery document returned %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}
