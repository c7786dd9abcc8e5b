package units

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lifeline-backend/internal/platform/apperr"
	"lifeline-backend/internal/platform/db"
)

// LedgerStore は予約・移送エンジンが台帳に要求する操作。
// 実装は Store（MySQL）。テストではインメモリのフェイクを差し込む。
type LedgerStore interface {
	FindAvailableForUpdate(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, limit int) ([]BloodUnit, error)
	MarkStatus(ctx context.Context, tx db.DBTX, unitIDs []int64, from, to Status) (int64, error)
	LockReserved(ctx context.Context, tx db.DBTX, unitIDs []int64, bankID int64) ([]BloodUnit, error)
	Relocate(ctx context.Context, tx db.DBTX, src []BloodUnit, toBankID int64, ulids []string) ([]BloodUnit, error)
	InsertTx(ctx context.Context, tx db.DBTX, u *BloodUnit) error
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const unitColumns = `unit_id, unit_ulid, bloodbank_id, blood_type, units, collected_date, expiry_date, status, donor_id, created_at`

func scanUnit(row interface{ Scan(...any) error }) (BloodUnit, error) {
	var u BloodUnit
	var status string
	err := row.Scan(
		&u.UnitID, &u.UnitULID, &u.BloodBankID, &u.BloodType, &u.Units,
		&u.CollectedDate, &u.ExpiryDate, &status, &u.DonorID, &u.CreatedAt,
	)
	u.Status = Status(status)
	return u, err
}

// FindAvailableForUpdate returns up to limit AVAILABLE units at the bank,
// oldest expiry first, with the rows locked for the duration of the tx.
// Fewer rows than limit is not an error; the caller interprets the shortage.
func (s *Store) FindAvailableForUpdate(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, limit int) ([]BloodUnit, error) {
	const q = `
	SELECT ` + unitColumns + `
	FROM blood_units
	WHERE bloodbank_id = ? AND blood_type = ? AND status = ?
	ORDER BY expiry_date ASC, collected_date ASC, unit_id ASC
	LIMIT ?
	FOR UPDATE`

	rows, err := tx.QueryContext(ctx, q, bankID, bloodType, string(StatusAvailable), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// MarkStatus flips status on the given units, guarded by the expected prior
// status. Returns the number of rows actually flipped.
func (s *Store) MarkStatus(ctx context.Context, tx db.DBTX, unitIDs []int64, from, to Status) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`UPDATE blood_units SET status = ? WHERE status = ? AND unit_id IN (%s)`, placeholders(len(unitIDs)))
	args := []any{string(to), string(from)}
	for _, id := range unitIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockReserved fetches and locks the given units, keeping only those that are
// RESERVED and owned by the bank. The caller compares counts.
func (s *Store) LockReserved(ctx context.Context, tx db.DBTX, unitIDs []int64, bankID int64) ([]BloodUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
	SELECT `+unitColumns+`
	FROM blood_units
	WHERE unit_id IN (%s) AND bloodbank_id = ? AND status = ?
	FOR UPDATE`, placeholders(len(unitIDs)))

	args := make([]any, 0, len(unitIDs)+2)
	for _, id := range unitIDs {
		args = append(args, id)
	}
	args = append(args, bankID, string(StatusReserved))

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Relocate moves units between banks: the source rows are deleted and fresh
// AVAILABLE rows are inserted at the destination with the same blood type and
// dates. Logical move, not a copy; unit mass is conserved.
func (s *Store) Relocate(ctx context.Context, tx db.DBTX, src []BloodUnit, toBankID int64, ulids []string) ([]BloodUnit, error) {
	if len(src) == 0 {
		return nil, nil
	}
	if len(ulids) != len(src) {
		return nil, apperr.ErrInternal("ulid count does not match unit count")
	}

	delQ := fmt.Sprintf(`DELETE FROM blood_units WHERE unit_id IN (%s)`, placeholders(len(src)))
	args := make([]any, 0, len(src))
	for _, u := range src {
		args = append(args, u.UnitID)
	}
	res, err := tx.ExecContext(ctx, delQ, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff != int64(len(src)) {
		return nil, apperr.ErrInternal("relocation deleted an unexpected number of rows")
	}

	const insQ = `
	INSERT INTO blood_units
	(unit_ulid, bloodbank_id, blood_type, units, collected_date, expiry_date, status, donor_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(6))`

	out := make([]BloodUnit, 0, len(src))
	for i, u := range src {
		moved := u
		moved.UnitULID = ulids[i]
		moved.BloodBankID = toBankID
		moved.Status = StatusAvailable
		r, err := tx.ExecContext(ctx, insQ,
			moved.UnitULID, moved.BloodBankID, moved.BloodType, moved.Units,
			moved.CollectedDate, moved.ExpiryDate, string(moved.Status), moved.DonorID,
		)
		if err != nil {
			return nil, err
		}
		id, _ := r.LastInsertId()
		moved.UnitID = id
		out = append(out, moved)
	}
	return out, nil
}

// InsertTx adds a new unit row (donation intake or transfer arrival).
func (s *Store) InsertTx(ctx context.Context, tx db.DBTX, u *BloodUnit) error {
	const q = `
	INSERT INTO blood_units
	(unit_ulid, bloodbank_id, blood_type, units, collected_date, expiry_date, status, donor_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(6))`
	res, err := tx.ExecContext(ctx, q,
		u.UnitULID, u.BloodBankID, u.BloodType, u.Units,
		u.CollectedDate, u.ExpiryDate, string(u.Status), u.DonorID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.UnitID = id
	return nil
}

// ---- Read side (no locks) ----

type InventoryRow struct {
	BloodType string `json:"blood_type"`
	Available int    `json:"available"`
}

// AggregateAvailable returns available totals per blood type for one bank.
func (s *Store) AggregateAvailable(ctx context.Context, bankID int64) ([]InventoryRow, error) {
	const q = `
	SELECT blood_type, COALESCE(SUM(units),0)
	FROM blood_units
	WHERE bloodbank_id = ? AND status = ?
	GROUP BY blood_type
	ORDER BY blood_type`

	rows, err := s.db.QueryContext(ctx, q, bankID, string(StatusAvailable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryRow
	for rows.Next() {
		var r InventoryRow
		if err := rows.Scan(&r.BloodType, &r.Available); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type UnitFilter struct {
	BloodBankID *int64
	BloodType   *string
	Status      *Status
	Limit       int
	Offset      int
}

func (s *Store) List(ctx context.Context, f UnitFilter) ([]BloodUnit, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + unitColumns + ` FROM blood_units WHERE 1=1`)

	args := []any{}
	if f.BloodBankID != nil {
		sb.WriteString(` AND bloodbank_id = ?`)
		args = append(args, *f.BloodBankID)
	}
	if f.BloodType != nil {
		sb.WriteString(` AND blood_type = ?`)
		args = append(args, *f.BloodType)
	}
	if f.Status != nil {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(*f.Status))
	}
	sb.WriteString(` ORDER BY expiry_date ASC, collected_date ASC, unit_id ASC`)
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
