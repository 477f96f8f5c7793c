package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/session"
	"auth-gateway/internal/store"
)

// unexported, collision-proof context key
type principalContextKeyType struct{}

var principalKey = principalContextKeyType{}

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

// AuthMiddleware admits requests carrying either a cookie session or a
// verifiable bearer token, funnelling both through the request
// authenticator.
type AuthMiddleware struct {
	Sessions      session.Store
	Users         store.Users
	Authenticator *auth.Authenticator
}

func NewAuthMiddleware(sessions session.Store, users store.Users, authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		Sessions:      sessions,
		Users:         users,
		Authenticator: authenticator,
	}
}

// sessionUser loads the user behind the request's session cookie, or nil
// when the request carries no live session.
func (a *AuthMiddleware) sessionUser(r *http.Request) *store.User {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sess, err := a.Sessions.Get(r.Context(), cookie.Value)
	if err != nil || sess == nil {
		return nil
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = a.Sessions.Delete(r.Context(), cookie.Value)
		return nil
	}

	user, err := a.Users.FindByID(r.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("session user lookup failed", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}
	if !user.Enabled {
		return nil
	}
	return user
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Authenticator.Authenticate(r.Context(), r, a.sessionUser(r))
		if err != nil {
			status := http.StatusUnauthorized
			var ae *auth.AuthError
			if errors.As(err, &ae) {
				status = ae.Status
			}
			http.Error(w, http.StatusText(status), status)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
