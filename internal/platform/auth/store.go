package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Account struct {
	AccountID    string
	PasswordHash string
	Role         Role
	DisplayName  string
	IsDisabled   bool
	CreatedAt    time.Time
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Disable(ctx context.Context, id string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT account_id, password_hash, role, display_name, is_disabled, created_at
FROM accounts
WHERE account_id = ?
LIMIT 1
`
	var a Account
	var role string
	var isDisabledInt int
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.AccountID,
		&a.PasswordHash,
		&role,
		&a.DisplayName,
		&isDisabledInt,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = Role(role)
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO accounts (account_id, password_hash, role, display_name, is_disabled, created_at)
VALUES (?, ?, ?, ?, 0, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, a.AccountID, a.PasswordHash, string(a.Role), a.DisplayName)
	return err
}

func (s *Store) Disable(ctx context.Context, id string) (int64, error) {
	const q = `UPDATE accounts SET is_disabled = 1 WHERE account_id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
