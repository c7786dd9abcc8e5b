package transfers

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

type TransferStore interface {
	Insert(ctx context.Context, tx db.DBTX, t *BloodBankTransfer) error
	Get(ctx context.Context, id int64) (*BloodBankTransfer, error)
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*BloodBankTransfer, error)
	UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, completedAt *time.Time) error
	InsertTransferUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error
	TransferUnitIDs(ctx context.Context, tx db.DBTX, id int64) ([]int64, error)
	DeleteTransferUnits(ctx context.Context, tx db.DBTX, id int64) error
	List(ctx context.Context, f Filter) ([]BloodBankTransfer, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const transferColumns = `transfer_id, transfer_ulid, from_bloodbank_id, to_bloodbank_id, blood_type, units_transferred, status, transfer_date, completed_date`

func scanTransfer(row interface{ Scan(...any) error }) (BloodBankTransfer, error) {
	var t BloodBankTransfer
	var status string
	err := row.Scan(
		&t.TransferID, &t.TransferULID, &t.FromBankID, &t.ToBankID, &t.BloodType,
		&t.UnitsTransferred, &status, &t.TransferDate, &t.CompletedDate,
	)
	t.Status = Status(status)
	return t, err
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, t *BloodBankTransfer) error {
	const q = `
	INSERT INTO blood_bank_transfers
	(transfer_ulid, from_bloodbank_id, to_bloodbank_id, blood_type, units_transferred, status, transfer_date)
	VALUES (?, ?, ?, ?, ?, ?, NOW(6))`
	res, err := tx.ExecContext(ctx, q,
		t.TransferULID, t.FromBankID, t.ToBankID, t.BloodType, t.UnitsTransferred, string(t.Status),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	t.TransferID = id
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*BloodBankTransfer, error) {
	const q = `SELECT ` + transferColumns + ` FROM blood_bank_transfers WHERE transfer_id = ?`
	t, err := scanTransfer(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("transfer not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*BloodBankTransfer, error) {
	const q = `SELECT ` + transferColumns + ` FROM blood_bank_transfers WHERE transfer_id = ? FOR UPDATE`
	t, err := scanTransfer(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("transfer not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateStatus(ctx context.Context, tx db.DBTX, id int64, st Status, completedAt *time.Time) error {
	var res sql.Result
	var err error
	if completedAt != nil {
		const q = `UPDATE blood_bank_transfers SET status = ?, completed_date = ? WHERE transfer_id = ?`
		res, err = tx.ExecContext(ctx, q, string(st), *completedAt, id)
	} else {
		const q = `UPDATE blood_bank_transfers SET status = ? WHERE transfer_id = ?`
		res, err = tx.ExecContext(ctx, q, string(st), id)
	}
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.ErrInternal("failed to update blood_bank_transfers.status")
	}
	return nil
}

func (s *Store) InsertTransferUnits(ctx context.Context, tx db.DBTX, id int64, unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	sb := strings.Builder{}
	sb.WriteString(`INSERT INTO blood_transfer_units (transfer_id, unit_id) VALUES `)
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

func (s *Store) TransferUnitIDs(ctx context.Context, tx db.DBTX, id int64) ([]int64, error) {
	const q = `SELECT unit_id FROM blood_transfer_units WHERE transfer_id = ? ORDER BY unit_id`
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

func (s *Store) DeleteTransferUnits(ctx context.Context, tx db.DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM blood_transfer_units WHERE transfer_id = ?`, id)
	return err
}

type Filter struct {
	FromBankID *int64
	ToBankID   *int64
	Status     *Status
	Limit      int
	Offset     int
}

func (s *Store) List(ctx context.Context, f Filter) ([]BloodBankTransfer, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + transferColumns + ` FROM blood_bank_transfers WHERE 1=1`)

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
	sb.WriteString(fmt.Sprintf(` ORDER BY transfer_date DESC LIMIT %d OFFSET %d`, f.Limit, f.Offset))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodBankTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
