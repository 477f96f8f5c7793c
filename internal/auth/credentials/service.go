package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auth-gateway/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
)

// Service manages local email/password credentials. It backs the cookie
// session path only; bearer identities never touch this table.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Register finds or creates the user for email and attaches a password
// credential. New users get the default role and start enabled.
func (s *Service) Register(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	var userID uuid.UUID

	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO users (email, role, enabled)
			VALUES ($1, $2, true)
			RETURNING id
		`, email, store.RoleUser).Scan(&userID)
	}
	if err != nil {
		return "", err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credentials WHERE user_id = $1
		)
	`, userID).Scan(&exists)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrAlreadyRegistered
	}

	hash, version, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
	`, userID, hash, version)
	if err != nil {
		return "", fmt.Errorf("credentials: insert: %w", err)
	}

	return userID.String(), nil
}

// Authenticate checks email/password and returns the user id. Lookup and
// verification failures are indistinguishable to the caller.
func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	var (
		userID       uuid.UUID
		passwordHash string
		enabled      bool
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, c.password_hash, u.enabled
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, email).Scan(&userID, &passwordHash, &enabled)
	if err != nil {
		// hide whether the user exists
		return "", ErrInvalidCredentials
	}
	if !enabled {
		return "", ErrInvalidCredentials
	}

	if err := VerifyPassword(passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return userID.String(), nil
}
