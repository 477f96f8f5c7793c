package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/account"
	"auth-gateway/internal/auth/credentials"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/session"
	"auth-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

const sessionTTL = 24 * time.Hour

type Handler struct {
	providers         *provider.Registry
	sessionStore      session.Store
	users             store.Users
	credentialService *credentials.Service // nil when no database is configured
	encryptionSecret  string
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	users store.Users,
	credentialService *credentials.Service,
	encryptionSecret string,
) *Handler {
	return &Handler{
		providers:         registry,
		sessionStore:      sessionStore,
		users:             users,
		credentialService: credentialService,
		encryptionSecret:  encryptionSecret,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.GET("/auth/providers", h.listProviders)
	r.POST("/auth/logout", h.Logout)

	if h.credentialService != nil {
		r.POST("/auth/register", h.Register)
		r.POST("/auth/login", h.Login)
	}
}

func (h *Handler) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.providers.Names()})
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state := generateState(c)
	_, codeChallenge := generatePKCE(c)

	authURL := p.AuthCodeURL(state, codeChallenge)
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, "/login")
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	identity, creds, err := p.ExchangeCode(
		c.Request.Context(),
		code,
		codeVerifier,
	)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	user, err := h.signIn(c.Request.Context(), providerName, identity, creds)
	if err != nil {
		logger.Error("sign-in failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve user",
		})
		return
	}

	if err := h.createSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	logger.Info("login success", map[string]any{
		"user_id":  user.ID,
		"provider": providerName,
		"ip":       c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "authenticated",
	})
}

// signIn finds or creates the local user for a verified identity and
// upserts the provider's credential row with freshly encrypted tokens.
func (h *Handler) signIn(
	ctx context.Context,
	providerName string,
	identity *auth.Identity,
	creds *provider.Credentials,
) (*store.User, error) {

	user, err := h.users.FindOneByEmail(ctx, identity.Email)
	if errors.Is(err, store.ErrNotFound) {
		user, err = h.users.Create(ctx, &store.User{
			Email:   identity.Email,
			Name:    identity.Name,
			Role:    store.RoleUser,
			Enabled: true,
		})
	}
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, errors.New("user is disabled")
	}

	accounts, err := account.SignInUpsert(user.Accounts, account.Incoming{
		Provider:          providerName,
		ProviderAccountID: identity.Subject,
		Type:              store.AccountTypeOIDC,
		AccessToken:       creds.AccessToken,
		RefreshToken:      creds.RefreshToken,
		IDToken:           creds.IDToken,
		TokenType:         creds.TokenType,
		Scope:             creds.Scope,
		SessionState:      creds.SessionState,
		ExpiresAt:         creds.ExpiresAt,
	}, h.encryptionSecret)
	if err != nil {
		return nil, err
	}

	user.Accounts = accounts
	if err := h.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// createSession issues a fresh session and its cookie.
func (h *Handler) createSession(c *gin.Context, userID string) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(sessionTTL)

	if err := h.sessionStore.Create(c.Request.Context(), session.Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	session.SetCookie(c.Writer, sessionID, expiresAt, session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handler) Logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// best-effort delete
		_ = h.sessionStore.Delete(c.Request.Context(), cookie.Value)
	}

	session.ClearCookie(c.Writer, session.CookieOptions{
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	c.Status(http.StatusNoContent)
}
