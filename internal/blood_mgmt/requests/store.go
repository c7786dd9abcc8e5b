package requests

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

// RequestStore は状態遷移サービスが要求する永続化操作。
type RequestStore interface {
	Insert(ctx context.Context, r *BloodBankRequest) error
	Get(ctx context.Context, id int64) (*BloodBankRequest, error)
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*BloodBankRequest, error)
	UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, fulfilledAt *time.Time) error
	InsertReservedUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error
	ReservedUnitIDs(ctx context.Context, tx db.DBTX, id int64) ([]int64, error)
	DeleteReservedUnits(ctx context.Context, tx db.DBTX, id int64) error
	List(ctx context.Context, f Filter) ([]BloodBankRequest, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const requestColumns = `request_id, request_ulid, from_bloodbank_id, to_bloodbank_id, blood_type, units_requested, message, status, request_date, fulfilled_date`

func scanRequest(row interface{ Scan(...any) error }) (BloodBankRequest, error) {
	var r BloodBankRequest
	var status string
	err := row.Scan(
		&r.RequestID, &r.RequestULID, &r.FromBankID, &r.ToBankID, &r.BloodType,
		&r.UnitsRequested, &r.Message, &status, &r.RequestDate, &r.FulfilledDate,
	)
	r.Status = Status(status)
	return r, err
}

func (s *Store) Insert(ctx context.Context, r *BloodBankRequest) error {
	const q = `
	INSERT INTO blood_bank_requests
	(request_ulid, from_bloodbank_id, to_bloodbank_id, blood_type, units_requested, message, status, request_date)
	VALUES (?, ?, ?, ?, ?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q,
		r.RequestULID, r.FromBankID, r.ToBankID, r.BloodType, r.UnitsRequested, r.Message, string(r.Status),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.RequestID = id
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*BloodBankRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM blood_bank_requests WHERE request_id = ?`
	r, err := scanRequest(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("blood bank request not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetForUpdate locks the request row so concurrent status updates serialize.
func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*BloodBankRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM blood_bank_requests WHERE request_id = ? FOR UPDATE`
	r, err := scanRequest(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("blood bank request not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, fulfilledAt *time.Time) error {
	var res sql.Result
	var err error
	if fulfilledAt != nil {
		const q = `UPDATE blood_bank_requests SET status = ?, fulfilled_date = ? WHERE request_id = ?`
		res, err = tx.ExecContext(ctx, q, string(st), *fulfilledAt, id)
	} else {
		const q = `UPDATE blood_bank_requests SET status = ? WHERE request_id = ?`
		res, err = tx.ExecContext(ctx, q, string(st), id)
	}
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update blood_bank_requests.status")
	}
	return nil
}

func (s *Store) InsertReservedUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	sb := strings.Builder{}
	sb.WriteString(`INSERT INTO blood_request_units (request_id, unit_id) VALUES `)
	args := make([]any, 0, len(unitIDs)*2)
	for i, uid := range unitIDs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?)")
		args = append(args, id, uid)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *Store) ReservedUnitIDs(ctx context.Context, tx db.DBTX, id int64) ([]int64, error) {
	const q = `SELECT unit_id FROM blood_request_units WHERE request_id = ? ORDER BY unit_id`
	rows, err := tx.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReservedUnits(ctx context.Context, tx db.DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM blood_request_units WHERE request_id = ?`, id)
	return err
}

type Filter struct {
	FromBankID *int64
	ToBankID   *int64
	Status     *Status
	Limit      int
	Offset     int
}

func (s *Store) List(ctx context.Context, f Filter) ([]BloodBankRequest, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + requestColumns + ` FROM blood_bank_requests WHERE 1=1`)

	args := []any{}
	if f.FromBankID != nil {
		sb.WriteString(` AND from_bloodbank_id = ?`)
		args = append(args, *f.FromBankID)
	}
	if f.ToBankID != nil {
		sb.WriteString(` AND to_bloodbank_id = ?`)
		args = append(args, *f.ToBankID)
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
	sb.WriteString(fmt.Sprintf(` ORDER BY request_date DESC LIMIT %d OFFSET %d`, f.Limit, f.Offset))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodBankRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
