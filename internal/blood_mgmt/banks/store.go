package banks

import (
	"context"
	"database/sql"
	"errors"

	"lifeline-backend/internal/platform/apperr"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) Insert(ctx context.Context, b *BloodBank) error {
	const q = `
	INSERT INTO blood_banks (bank_ulid, name, city, address, phone, created_at)
	VALUES (?, ?, ?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, b.BankULID, b.Name, b.City, b.Address, b.Phone)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.BankID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*BloodBank, error) {
	const q = `
	SELECT bank_id, bank_ulid, name, city, address, phone, created_at
	FROM blood_banks WHERE bank_id = ?`
	var b BloodBank
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&b.BankID, &b.BankULID, &b.Name, &b.City, &b.Address, &b.Phone, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("blood bank not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Exists is the cheap existence check requests/transfers run before insert.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT 1 FROM blood_banks WHERE bank_id = ? LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, q, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, city string, limit, offset int) ([]BloodBank, error) {
	q := `
	SELECT bank_id, bank_ulid, name, city, address, phone, created_at
	FROM blood_banks WHERE 1=1`
	args := []any{}
	if city != "" {
		q += ` AND city = ?`
		args = append(args, city)
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q += ` ORDER BY bank_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodBank
	for rows.Next() {
		var b BloodBank
		if err := rows.Scan(&b.BankID, &b.BankULID, &b.Name, &b.City, &b.Address, &b.Phone, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
