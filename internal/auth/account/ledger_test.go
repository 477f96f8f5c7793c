package account

import (
	"testing"

	"auth-gateway/internal/auth/tokencipher"
	"auth-gateway/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "ledger-test-secret"

func decrypt(t *testing.T, blob string) string {
	t.Helper()
	pt, err := tokencipher.Decrypt(blob, secret)
	require.NoError(t, err)
	return pt
}

func TestSignInUpsert_AppendsNewRow(t *testing.T) {
	t.Parallel()

	got, err := SignInUpsert(nil, Incoming{
		Provider:          "keycloak",
		ProviderAccountID: "abc",
		Type:              store.AccountTypeOIDC,
		AccessToken:       "plain-access",
		RefreshToken:      "plain-refresh",
		IDToken:           "plain-id",
		TokenType:         "Bearer",
		Scope:             "openid email",
		ExpiresAt:         1234,
	}, secret)
	require.NoError(t, err)
	require.Len(t, got, 1)

	row := got[0]
	assert.Equal(t, "keycloak", row.Provider)
	assert.Equal(t, "abc", row.ProviderAccountID)
	assert.Equal(t, store.AccountTypeOIDC, row.Type)
	assert.Equal(t, int64(1234), row.ExpiresAt)

	// plaintext must never reach the ledger
	assert.NotEqual(t, "plain-access", row.AccessToken)
	assert.NotEqual(t, "plain-refresh", row.RefreshToken)
	assert.Equal(t, "plain-access", decrypt(t, row.AccessToken))
	assert.Equal(t, "plain-refresh", decrypt(t, row.RefreshToken))
	assert.Equal(t, "plain-id", decrypt(t, row.IDToken))
}

func TestSignInUpsert_ReplacesMatchingRow(t *testing.T) {
	t.Parallel()

	existing := []store.LinkedAccount{
		{
			Provider:          "keycloak",
			ProviderAccountID: "abc",
			Type:              store.AccountTypeOIDC,
			AccessToken:       "encX",
			RefreshToken:      "encY",
			SessionState:      "old-state",
			ExpiresAt:         1,
		},
		{Provider: "google", ProviderAccountID: "g-1", Type: store.AccountTypeOIDC},
	}

	got, err := SignInUpsert(existing, Incoming{
		Provider:          "keycloak",
		ProviderAccountID: "abc",
		Type:              store.AccountTypeOIDC,
		AccessToken:       "new",
		ExpiresAt:         99,
	}, secret)
	require.NoError(t, err)
	require.Len(t, got, 2, "no duplicate row for the matched key")

	row := got[0]
	assert.Equal(t, "new", decrypt(t, row.AccessToken))
	assert.Equal(t, int64(99), row.ExpiresAt)

	// strict replace: fields the provider omitted are nulled, not retained
	assert.Empty(t, row.RefreshToken)
	assert.Empty(t, row.SessionState)

	// unrelated provider row untouched
	assert.Equal(t, "google", got[1].Provider)

	// input slice not mutated
	assert.Equal(t, "encX", existing[0].AccessToken)
}

func TestSignInUpsert_MissingSecretFailsLoudly(t *testing.T) {
	t.Parallel()

	_, err := SignInUpsert(nil, Incoming{
		Provider:          "keycloak",
		ProviderAccountID: "abc",
		AccessToken:       "plain",
	}, "")
	require.ErrorIs(t, err, tokencipher.ErrMissingSecret)
}

func TestApplyRefresh_RotatesAndRetains(t *testing.T) {
	t.Parallel()

	oldRefresh, err := tokencipher.Encrypt("old-refresh", secret)
	require.NoError(t, err)

	accounts := []store.LinkedAccount{{
		Provider:          "keycloak",
		ProviderAccountID: "abc",
		RefreshToken:      oldRefresh,
		IDToken:           "enc-id",
		Scope:             "openid",
	}}

	t.Run("provider returned a new refresh token", func(t *testing.T) {
		got, err := ApplyRefresh(accounts, "keycloak", "fresh-access", "fresh-refresh", 500, secret)
		require.NoError(t, err)
		assert.Equal(t, "fresh-access", decrypt(t, got[0].AccessToken))
		assert.Equal(t, "fresh-refresh", decrypt(t, got[0].RefreshToken))
		assert.Equal(t, int64(500), got[0].ExpiresAt)
	})

	t.Run("provider omitted the refresh token", func(t *testing.T) {
		got, err := ApplyRefresh(accounts, "keycloak", "fresh-access", "", 500, secret)
		require.NoError(t, err)
		assert.Equal(t, oldRefresh, got[0].RefreshToken, "stored refresh token must be retained")
		// untouched fields carried forward, unlike the sign-in upsert
		assert.Equal(t, "enc-id", got[0].IDToken)
		assert.Equal(t, "openid", got[0].Scope)
	})

	t.Run("no row for provider", func(t *testing.T) {
		_, err := ApplyRefresh(accounts, "github", "x", "", 0, secret)
		require.ErrorIs(t, err, ErrNoAccount)
	})
}
