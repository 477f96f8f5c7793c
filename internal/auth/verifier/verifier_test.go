package verifier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auth-gateway/internal/auth/keyset"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

// fakeIssuer serves an OIDC discovery document and a JWKS for key.
type fakeIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   f.srv.URL,
			"jwks_uri": f.srv.URL + "/protocol/openid-connect/certs",
		})
	})
	mux.HandleFunc("/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		pub := &key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	if _, ok := claims["iss"]; !ok {
		claims["iss"] = f.srv.URL
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *fakeIssuer) verifier() *Verifier {
	return New(keyset.NewResolver(f.srv.URL))
}

func TestBearerFromHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", BearerFromHeader("Bearer abc"))
	assert.Equal(t, "abc", BearerFromHeader("bearer abc"))
	assert.Equal(t, "abc", BearerFromHeader("BEARER abc"))
	assert.Empty(t, BearerFromHeader(""))
	assert.Empty(t, BearerFromHeader("Basic abc"))
	assert.Empty(t, BearerFromHeader("Bearer"))
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()

	iss := newFakeIssuer(t)
	raw := iss.sign(t, jwt.MapClaims{
		"sub":   "subject-1",
		"email": "jo@example.com",
		"name":  "Jo",
		"scope": "openid email profile",
		"resource_access": map[string]any{
			"my-client": map[string]any{"roles": []string{"admin", "user"}},
		},
	})

	id := iss.verifier().Verify(context.Background(), raw)
	require.NotNil(t, id)
	assert.Equal(t, "subject-1", id.Subject)
	assert.Equal(t, "jo@example.com", id.Email)
	assert.Equal(t, "Jo", id.Name)
	assert.Equal(t, []string{"openid", "email", "profile"}, id.Scopes)
	assert.Greater(t, id.Expiry, time.Now().Unix())
	require.Contains(t, id.ResourceAccess, "my-client")
	assert.Equal(t, []string{"admin", "user"}, id.ResourceAccess["my-client"].Roles)
}

func TestVerify_ScpFallbackAndAbsentScopes(t *testing.T) {
	t.Parallel()

	iss := newFakeIssuer(t)

	id := iss.verifier().Verify(context.Background(), iss.sign(t, jwt.MapClaims{
		"sub": "s",
		"scp": "read write",
	}))
	require.NotNil(t, id)
	assert.Equal(t, []string{"read", "write"}, id.Scopes)

	id = iss.verifier().Verify(context.Background(), iss.sign(t, jwt.MapClaims{"sub": "s"}))
	require.NotNil(t, id)
	assert.Empty(t, id.Scopes)
	assert.Nil(t, id.ResourceAccess)
}

func TestVerify_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	iss := newFakeIssuer(t)
	v := iss.verifier()
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		assert.Nil(t, v.Verify(ctx, "not-a-jwt"))
	})

	t.Run("expired", func(t *testing.T) {
		raw := iss.sign(t, jwt.MapClaims{
			"sub": "s",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		assert.Nil(t, v.Verify(ctx, raw))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		raw := iss.sign(t, jwt.MapClaims{
			"sub": "s",
			"iss": "https://evil.example.com",
		})
		assert.Nil(t, v.Verify(ctx, raw))
	})

	t.Run("wrong signer", func(t *testing.T) {
		other := newFakeIssuer(t)
		raw := other.sign(t, jwt.MapClaims{
			"sub": "s",
			"iss": iss.srv.URL,
		})
		assert.Nil(t, v.Verify(ctx, raw))
	})
}

func TestVerifyRequest(t *testing.T) {
	t.Parallel()

	iss := newFakeIssuer(t)
	v := iss.verifier()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, v.VerifyRequest(context.Background(), req), "no header means no identity")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+iss.sign(t, jwt.MapClaims{"sub": "s1"}))
	id := v.VerifyRequest(context.Background(), req)
	require.NotNil(t, id)
	assert.Equal(t, "s1", id.Subject)
}
