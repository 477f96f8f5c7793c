package app

import (
	"context"
	"net/http"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/auth/credentials"
	"auth-gateway/internal/auth/handler"
	"auth-gateway/internal/auth/keyset"
	"auth-gateway/internal/auth/provider"
	"auth-gateway/internal/auth/provider/google"
	"auth-gateway/internal/auth/provider/keycloak"
	"auth-gateway/internal/auth/token"
	"auth-gateway/internal/auth/verifier"
	"auth-gateway/internal/config"
	"auth-gateway/internal/middleware"
	"auth-gateway/internal/session"
	"auth-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)

	var users store.Users
	var credentialService *credentials.Service
	if infra.DB != nil {
		users = store.NewPostgres(infra.DB)
		credentialService = credentials.NewService(infra.DB)
	} else {
		users = store.NewMemory()
	}

	keys := keyset.NewResolver(cfg.OAuthIssuer)
	bearerVerifier := verifier.New(keys)
	authenticator := auth.NewAuthenticator(bearerVerifier, users, cfg.OAuthClientID)

	tokenSupplier := token.NewSupplier(users, token.Config{
		Issuer:       cfg.OAuthIssuer,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
	}, cfg.EncryptionSecret)

	keycloakProvider, err := keycloak.New(
		ctx,
		cfg.OAuthIssuer,
		cfg.OAuthClientID,
		cfg.OAuthClientSecret,
		cfg.OAuthRedirectURL,
	)
	if err != nil {
		return nil, nil, err
	}

	providerList := []provider.OAuthProvider{keycloakProvider}
	if cfg.GoogleClientID != "" {
		googleProvider, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, nil, err
		}
		providerList = append(providerList, googleProvider)
	}
	registry := provider.NewRegistry(providerList...)

	authHandler := handler.NewHandler(
		registry,
		sessionStore,
		users,
		credentialService,
		cfg.EncryptionSecret,
	)

	authMiddleware := middleware.NewAuthMiddleware(sessionStore, users, authenticator)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     p.ID,
			"email":  p.Email,
			"name":   p.Name,
			"role":   p.Role,
			"method": p.Method,
		})
	})

	// Hands out a currently valid provider access token for the caller,
	// refreshing the stored one when needed.
	api.GET("/token", func(c *gin.Context) {
		p, ok := middleware.PrincipalFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		providerName := c.DefaultQuery("provider", token.DefaultProvider)
		accessToken, err := tokenSupplier.AccessToken(c.Request.Context(), p.ID, providerName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token supplier failed"})
			return
		}
		if accessToken == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no token available"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		if infra.DB != nil {
			return infra.DB.Close()
		}
		return nil
	}, nil
}
