package urgent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lifeline-backend/internal/platform/apperr"
	"lifeline-backend/internal/platform/db"
)

type NeedStore interface {
	Insert(ctx context.Context, n *UrgentNeed) error
	Get(ctx context.Context, id int64) (*UrgentNeed, error)
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*UrgentNeed, error)
	UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, donorID *string, at *time.Time) error
	List(ctx context.Context, f Filter) ([]UrgentNeed, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const needColumns = `need_id, need_ulid, bloodbank_id, blood_type, units_needed, message, status, posted_at, fulfilled_at, donor_id`

func scanNeed(row interface{ Scan(...any) error }) (UrgentNeed, error) {
	var n UrgentNeed
	var status string
	err := row.Scan(
		&n.NeedID, &n.NeedULID, &n.BloodBankID, &n.BloodType, &n.UnitsNeeded,
		&n.Message, &status, &n.PostedAt, &n.FulfilledAt, &n.DonorID,
	)
	n.Status = Status(status)
	return n, err
}

func (s *Store) Insert(ctx context.Context, n *UrgentNeed) error {
	const q = `
	INSERT INTO urgent_needs
	(need_ulid, bloodbank_id, blood_type, units_needed, message, status, posted_at)
	VALUES (?, ?, ?, ?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q,
		n.NeedULID, n.BloodBankID, n.BloodType, n.UnitsNeeded, n.Message, string(n.Status),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.NeedID = id
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*UrgentNeed, error) {
	const q = `SELECT ` + needColumns + ` FROM urgent_needs WHERE need_id = ?`
	n, err := scanNeed(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("urgent need not found")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*UrgentNeed, error) {
	const q = `SELECT ` + needColumns + ` FROM urgent_needs WHERE need_id = ? FOR UPDATE`
	n, err := scanNeed(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("urgent need not found")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, donorID *string, at *time.Time) error {
	sb := strings.Builder{}
	sb.WriteString(`UPDATE urgent_needs SET status = ?`)
	args := []any{string(st)}
	if donorID != nil {
		sb.WriteString(`, donor_id = ?`)
		args = append(args, *donorID)
	}
	if at != nil {
		sb.WriteString(`, fulfilled_at = ?`)
		args = append(args, *at)
	}
	sb.WriteString(` WHERE need_id = ?`)
	args = append(args, id)

	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update urgent_needs.status")
	}
	return nil
}

type Filter struct {
	BloodBankID *int64
	Status      *Status
	Limit       int
	Offset      int
}

func (s *Store) List(ctx context.Context, f Filter) ([]UrgentNeed, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + needColumns + ` FROM urgent_needs WHERE 1=1`)

	args := []any{}
	if f.BloodBankID != nil {
		sb.WriteString(` AND bloodbank_id = ?`)
		args = append(args, *f.BloodBankID)
	}
	if f.Status != nil {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY posted_at DESC LIMIT %d OFFSET %d`, f.Limit, f.Offset))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UrgentNeed
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
