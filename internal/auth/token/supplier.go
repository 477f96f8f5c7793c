// Package token supplies currently valid provider access tokens,
// transparently refreshing expired ones.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auth-gateway/internal/auth/account"
	"auth-gateway/internal/auth/tokencipher"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/store"
)

const (
	DefaultProvider = "keycloak"

	tokenPath = "/protocol/openid-connect/token"

	// A token within this margin of its expiry counts as expired.
	refreshSkew = 30 * time.Second

	refreshTimeout = 10 * time.Second
)

// Config identifies this deployment at the provider's token endpoint.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
}

// Supplier returns valid access tokens for a user's linked provider
// account. Expected failures (no account, undecryptable token, refresh
// rejected, provider unreachable) yield an empty token with a nil error;
// only configuration and persistence problems are errors.
//
// Two concurrent refreshes for the same user may both hit the provider;
// the last write wins. Serialize per (user, provider) upstream if a
// deployment needs stronger guarantees.
type Supplier struct {
	users  store.Users
	cfg    Config
	secret string
	client *http.Client
	now    func() time.Time
}

func NewSupplier(users store.Users, cfg Config, secret string) *Supplier {
	return &Supplier{
		users:  users,
		cfg:    cfg,
		secret: secret,
		client: &http.Client{Timeout: refreshTimeout},
		now:    time.Now,
	}
}

// AccessToken returns a plaintext access token for the user's provider
// account, refreshing and re-persisting it when expired. Empty string
// means no token is available.
func (s *Supplier) AccessToken(ctx context.Context, userID, provider string) (string, error) {
	if s.secret == "" {
		return "", tokencipher.ErrMissingSecret
	}
	if provider == "" {
		provider = DefaultProvider
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("token: load user: %w", err)
	}

	acct := user.Account(provider)
	if acct == nil || acct.AccessToken == "" {
		return "", nil
	}

	accessToken, err := tokencipher.Decrypt(acct.AccessToken, s.secret)
	if err != nil {
		logger.Warn("stored access token failed to decrypt", map[string]any{
			"provider": provider,
		})
		return "", nil
	}

	// expires_at == 0 means no expiry was recorded; trust the token.
	if acct.ExpiresAt == 0 || s.now().Before(time.Unix(acct.ExpiresAt, 0).Add(-refreshSkew)) {
		return accessToken, nil
	}

	refreshToken, err := tokencipher.Decrypt(acct.RefreshToken, s.secret)
	if err != nil || refreshToken == "" {
		return "", nil
	}

	refreshed, err := s.refresh(ctx, refreshToken)
	if err != nil {
		logger.Warn("token refresh failed", map[string]any{
			"provider": provider,
			"error":    err.Error(),
		})
		return "", nil
	}

	expiresAt := s.now().Unix() + refreshed.ExpiresIn

	accounts, err := account.ApplyRefresh(
		user.Accounts, provider,
		refreshed.AccessToken, refreshed.RefreshToken,
		expiresAt, s.secret,
	)
	if err != nil {
		return "", err
	}
	user.Accounts = accounts

	if err := s.users.Update(ctx, user); err != nil {
		return "", fmt.Errorf("token: persist refreshed account: %w", err)
	}

	return refreshed.AccessToken, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// refresh performs the OAuth refresh_token grant. No retries: the caller
// may re-run the whole operation later.
func (s *Supplier) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	endpoint := strings.TrimRight(s.cfg.Issuer, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &out, nil
}
