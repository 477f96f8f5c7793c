package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"auth-gateway/internal/auth/account"
	"auth-gateway/internal/auth/tokencipher"
	"auth-gateway/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "supplier-test-secret"

type fakeEndpoint struct {
	srv   *httptest.Server
	hits  atomic.Int32
	grant func(r *http.Request, w http.ResponseWriter)
}

func newFakeEndpoint(t *testing.T, grant func(r *http.Request, w http.ResponseWriter)) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{grant: grant}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/protocol/openid-connect/token" {
			http.NotFound(w, r)
			return
		}
		f.hits.Add(1)
		f.grant(r, w)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func seedUser(t *testing.T, users *store.Memory, expiresAt int64, withRefresh bool) *store.User {
	t.Helper()

	incoming := account.Incoming{
		Provider:          "keycloak",
		ProviderAccountID: "kc-1",
		Type:              store.AccountTypeOIDC,
		AccessToken:       "stored-access",
		ExpiresAt:         expiresAt,
	}
	if withRefresh {
		incoming.RefreshToken = "stored-refresh"
	}
	accounts, err := account.SignInUpsert(nil, incoming, secret)
	require.NoError(t, err)

	u, err := users.Create(context.Background(), &store.User{
		Email:    "jo@example.com",
		Role:     store.RoleUser,
		Enabled:  true,
		Accounts: accounts,
	})
	require.NoError(t, err)
	return u
}

func newSupplier(users store.Users, issuer string) *Supplier {
	return NewSupplier(users, Config{
		Issuer:       issuer,
		ClientID:     "my-client",
		ClientSecret: "my-secret",
	}, secret)
}

func TestAccessToken_ValidTokenNoRefresh(t *testing.T) {
	t.Parallel()

	ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
		t.Error("refresh endpoint must not be called for a valid token")
	})
	users := store.NewMemory()
	u := seedUser(t, users, time.Now().Add(time.Hour).Unix(), true)

	got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
	require.NoError(t, err)
	assert.Equal(t, "stored-access", got)
}

func TestAccessToken_ZeroExpiryNeverRefreshes(t *testing.T) {
	t.Parallel()

	ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
		t.Error("refresh endpoint must not be called when expires_at is 0")
	})
	users := store.NewMemory()
	u := seedUser(t, users, 0, true)

	got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
	require.NoError(t, err)
	assert.Equal(t, "stored-access", got)
}

func TestAccessToken_ExpiredTriggersRefresh(t *testing.T) {
	t.Parallel()

	ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "my-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "my-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "stored-refresh", r.PostForm.Get("refresh_token"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"expires_in":    300,
			"refresh_token": "rotated-refresh",
		})
	})
	users := store.NewMemory()
	u := seedUser(t, users, time.Now().Add(-1000*time.Second).Unix(), true)

	got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", got)
	assert.Equal(t, int32(1), ep.hits.Load())

	// The refreshed credentials were re-encrypted and persisted.
	stored, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	acct := stored.Account("keycloak")
	require.NotNil(t, acct)

	access, err := tokencipher.Decrypt(acct.AccessToken, secret)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", access)
	refresh, err := tokencipher.Decrypt(acct.RefreshToken, secret)
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh", refresh)
	assert.InDelta(t, time.Now().Unix()+300, acct.ExpiresAt, 5)
	assert.NotEqual(t, "fresh-access", acct.AccessToken, "plaintext must not be persisted")
}

func TestAccessToken_RefreshWithoutRotationKeepsStoredRefresh(t *testing.T) {
	t.Parallel()

	ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-access",
			"expires_in":   300,
		})
	})
	users := store.NewMemory()
	u := seedUser(t, users, time.Now().Add(-time.Hour).Unix(), true)
	before, _ := users.FindByID(context.Background(), u.ID)
	oldRefresh := before.Account("keycloak").RefreshToken

	got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", got)

	stored, _ := users.FindByID(context.Background(), u.ID)
	assert.Equal(t, oldRefresh, stored.Account("keycloak").RefreshToken)
}

func TestAccessToken_SkewCountsAsExpired(t *testing.T) {
	t.Parallel()

	ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-access",
			"expires_in":   300,
		})
	})
	users := store.NewMemory()
	// Expires in 10s: inside the 30s margin, must refresh.
	u := seedUser(t, users, time.Now().Add(10*time.Second).Unix(), true)

	got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", got)
	assert.Equal(t, int32(1), ep.hits.Load())
}

func TestAccessToken_SoftFailures(t *testing.T) {
	t.Parallel()

	t.Run("unknown user", func(t *testing.T) {
		users := store.NewMemory()
		got, err := newSupplier(users, "http://unused").AccessToken(context.Background(), "missing", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("no linked account", func(t *testing.T) {
		users := store.NewMemory()
		u, err := users.Create(context.Background(), &store.User{Email: "x@example.com", Role: store.RoleUser})
		require.NoError(t, err)
		got, err := newSupplier(users, "http://unused").AccessToken(context.Background(), u.ID, "keycloak")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		users := store.NewMemory()
		u := seedUser(t, users, time.Now().Add(-time.Hour).Unix(), false)
		got, err := newSupplier(users, "http://unused").AccessToken(context.Background(), u.ID, "keycloak")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("provider rejects the refresh", func(t *testing.T) {
		ep := newFakeEndpoint(t, func(r *http.Request, w http.ResponseWriter) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		})
		users := store.NewMemory()
		u := seedUser(t, users, time.Now().Add(-time.Hour).Unix(), true)
		got, err := newSupplier(users, ep.srv.URL).AccessToken(context.Background(), u.ID, "keycloak")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("undecryptable access token", func(t *testing.T) {
		users := store.NewMemory()
		u := seedUser(t, users, 0, true)
		loaded, _ := users.FindByID(context.Background(), u.ID)
		// three-part blob under a different key fails decryption
		other, err := tokencipher.Encrypt("whatever", "some-other-secret")
		require.NoError(t, err)
		loaded.Accounts[0].AccessToken = other
		require.NoError(t, users.Update(context.Background(), loaded))

		got, err := newSupplier(users, "http://unused").AccessToken(context.Background(), u.ID, "keycloak")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestAccessToken_MissingSecretIsConfigError(t *testing.T) {
	t.Parallel()

	s := NewSupplier(store.NewMemory(), Config{Issuer: "http://unused"}, "")
	_, err := s.AccessToken(context.Background(), "any", "")
	require.ErrorIs(t, err, tokencipher.ErrMissingSecret)
}
