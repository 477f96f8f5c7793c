package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Postgres implements Users over database/sql. Linked accounts live in
// their own table and are loaded with every user read; Update replaces
// the full account set for the user (the ledger owns merge semantics).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindOneByEmail(ctx context.Context, email string) (*User, error) {
	return p.findOne(ctx, `
		SELECT id, email, name, role, enabled, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*User, error) {
	return p.findOne(ctx, `
		SELECT id, email, name, role, enabled, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (p *Postgres) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u  User
		id uuid.UUID
	)
	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&id, &u.Email, &u.Name, &u.Role, &u.Enabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ID = id.String()

	if err := p.loadAccounts(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) loadAccounts(ctx context.Context, u *User) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT provider, provider_account_id, type,
		       COALESCE(access_token, ''), COALESCE(refresh_token, ''),
		       COALESCE(id_token, ''), COALESCE(token_type, ''),
		       COALESCE(scope, ''), COALESCE(session_state, ''),
		       COALESCE(expires_at, 0)
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY provider, provider_account_id
	`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a LinkedAccount
		if err := rows.Scan(
			&a.Provider, &a.ProviderAccountID, &a.Type,
			&a.AccessToken, &a.RefreshToken, &a.IDToken,
			&a.TokenType, &a.Scope, &a.SessionState, &a.ExpiresAt,
		); err != nil {
			return err
		}
		u.Accounts = append(u.Accounts, a)
	}
	return rows.Err()
}

func (p *Postgres) Create(ctx context.Context, u *User) (*User, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, name, role, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, u.Email, u.Name, u.Role, u.Enabled).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	created := *u
	created.ID = id.String()

	if err := writeAccounts(ctx, tx, created.ID, created.Accounts); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (p *Postgres) Update(ctx context.Context, u *User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, role = $4, enabled = $5, updated_at = NOW()
		WHERE id = $1
	`, u.ID, u.Email, u.Name, u.Role, u.Enabled)
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM linked_accounts WHERE user_id = $1
	`, u.ID); err != nil {
		return err
	}
	if err := writeAccounts(ctx, tx, u.ID, u.Accounts); err != nil {
		return err
	}

	return tx.Commit()
}

func writeAccounts(ctx context.Context, tx *sql.Tx, userID string, accounts []LinkedAccount) error {
	for _, a := range accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO linked_accounts (
				user_id, provider, provider_account_id, type,
				access_token, refresh_token, id_token,
				token_type, scope, session_state, expires_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			userID, a.Provider, a.ProviderAccountID, a.Type,
			nullable(a.AccessToken), nullable(a.RefreshToken), nullable(a.IDToken),
			nullable(a.TokenType), nullable(a.Scope), nullable(a.SessionState),
			a.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("store: write linked account: %w", err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
