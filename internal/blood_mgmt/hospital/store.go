package hospital

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

type HospitalRequestStore interface {
	Insert(ctx context.Context, tx db.DBTX, r *HospitalBloodRequest) error
	Get(ctx context.Context, id int64) (*HospitalBloodRequest, error)
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*HospitalBloodRequest, error)
	MarkFulfilled(ctx context.Context, tx db.DBTX, id int64, at time.Time) error
	InsertConsumedUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error
	CancelSiblings(ctx context.Context, tx db.DBTX, groupULID string, excludeID int64) (int64, error)
	List(ctx context.Context, f Filter) ([]HospitalBloodRequest, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const hospitalRequestColumns = `request_id, request_ulid, hospital_id, bloodbank_id, blood_type, units_requested, message, status, broadcast_group_ulid, request_date, fulfilled_date`

func scanHospitalRequest(row interface{ Scan(...any) error }) (HospitalBloodRequest, error) {
	var r HospitalBloodRequest
	var status string
	err := row.Scan(
		&r.RequestID, &r.RequestULID, &r.HospitalID, &r.BloodBankID, &r.BloodType,
		&r.UnitsRequested, &r.Message, &status, &r.BroadcastGroupULID, &r.RequestDate, &r.FulfilledDate,
	)
	r.Status = Status(status)
	return r, err
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, r *HospitalBloodRequest) error {
	const q = `
	INSERT INTO hospital_blood_requests
	(request_ulid, hospital_id, bloodbank_id, blood_type, units_requested, message, status, broadcast_group_ulid, request_date)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(6))`
	res, err := tx.ExecContext(ctx, q,
		r.RequestULID, r.HospitalID, r.BloodBankID, r.BloodType, r.UnitsRequested,
		r.Message, string(r.Status), r.BroadcastGroupULID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.RequestID = id
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*HospitalBloodRequest, error) {
	const q = `SELECT ` + hospitalRequestColumns + ` FROM hospital_blood_requests WHERE request_id = ?`
	r, err := scanHospitalRequest(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("hospital blood request not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*HospitalBloodRequest, error) {
	const q = `SELECT ` + hospitalRequestColumns + ` FROM hospital_blood_requests WHERE request_id = ? FOR UPDATE`
	r, err := scanHospitalRequest(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("hospital blood request not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) MarkFulfilled(ctx context.Context, tx db.DBTX, id int64, at time.Time) error {
	const q = `UPDATE hospital_blood_requests SET status = ?, fulfilled_date = ? WHERE request_id = ?`
	res, err := tx.ExecContext(ctx, q, string(StatusFulfilled), at, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update hospital_blood_requests.status")
	}
	return nil
}

// InsertConsumedUnits keeps the audit link between a fulfilled request and
// the USED unit rows.
func (s *Store) InsertConsumedUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	sb := strings.Builder{}
	sb.WriteString(`INSERT INTO hospital_request_units (request_id, unit_id) VALUES `)
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

// CancelSiblings closes the remaining PENDING requests of a broadcast group.
func (s *Store) CancelSiblings(ctx context.Context, tx db.DBTX, groupULID string, excludeID int64) (int64, error) {
	const q = `
	UPDATE hospital_blood_requests
	SET status = ?
	WHERE broadcast_group_ulid = ? AND request_id <> ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(StatusCancelled), groupULID, excludeID, string(StatusPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type Filter struct {
	HospitalID  *string
	BloodBankID *int64
	Status      *Status
	Limit       int
	Offset      int
}

func (s *Store) List(ctx context.Context, f Filter) ([]HospitalBloodRequest, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + hospitalRequestColumns + ` FROM hospital_blood_requests WHERE 1=1`)

	args := []any{}
	if f.HospitalID != nil {
		sb.WriteString(` AND hospital_id = ?`)
		args = append(args, *f.HospitalID)
	}
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
	sb.WriteString(fmt.Sprintf(` ORDER BY request_date DESC LIMIT %d OFFSET %d`, f.Limit, f.Offset))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HospitalBloodRequest
	for rows.Next() {
		r, err := scanHospitalRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
