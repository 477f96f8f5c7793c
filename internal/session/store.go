package session

import (
	"context"
	"time"
)

// Session represents an authenticated user session. It stores identity
// pointers only; auth decisions stay with the middleware.
type Session struct {
	SessionID string    // unique session identifier
	UserID    string    // references users.id
	CreatedAt time.Time // when the session was issued
	ExpiresAt time.Time // absolute expiry time
}

// Store defines how sessions are stored and retrieved. Implementations
// must remain stateless and opaque; Get returns (nil, nil) for unknown ids.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
