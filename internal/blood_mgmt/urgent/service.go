package urgent

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"lifeline-backend/internal/blood_mgmt/units"
	"lifeline-backend/internal/platform/apperr"
	"lifeline-backend/internal/platform/db"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// UnitWriter は直接献血の台帳書き込み（units.Store が実装）。
type UnitWriter interface {
	InsertTx(ctx context.Context, tx db.DBTX, u *units.BloodUnit) error
}

type BankDirectory interface {
	Exists(ctx context.Context, bankID int64) (bool, error)
}

type txRunner func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error

type Service struct {
	store  NeedStore
	ledger UnitWriter
	banks  BankDirectory
	runTx  txRunner
	clock  Clock
	id     IDGen
}

func NewService(conn *sql.DB, ledger UnitWriter, banks BankDirectory) *Service {
	return &Service{
		store:  NewStore(conn),
		ledger: ledger,
		banks:  banks,
		runTx: func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
			return db.Write(ctx, conn, fn)
		},
		clock: realClock{},
		id:    ulidGen{},
	}
}

func (s *Service) Create(ctx context.Context, req CreateNeedRequest) (*NeedResponse, error) {
	if req.BloodBankID <= 0 {
		return nil, apperr.ErrInvalid("bloodbank_id is required")
	}
	if req.UnitsNeeded <= 0 {
		return nil, apperr.ErrInvalid("units_needed must be > 0")
	}
	if !units.ValidBloodType(req.BloodType) {
		return nil, apperr.ErrInvalid("unknown blood type: " + req.BloodType)
	}
	ok, err := s.banks.Exists(ctx, req.BloodBankID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound(fmt.Sprintf("blood bank %d not found", req.BloodBankID))
	}

	n := &UrgentNeed{
		NeedULID:    s.id.NewULID(s.clock.Now()),
		BloodBankID: req.BloodBankID,
		BloodType:   req.BloodType,
		UnitsNeeded: req.UnitsNeeded,
		Status:      StatusOpen,
	}
	if req.Message != nil && *req.Message != "" {
		n.Message = sql.NullString{String: *req.Message, Valid: true}
	}

	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}
	resp := buildNeedResponse(n)
	return &resp, nil
}

// Fulfill records a donor's direct donation against an open need: new
// AVAILABLE ledger rows are created at the posting bank and the need is
// marked FULFILLED. Unit creation, not allocation — the reservation engine
// is not involved.
func (s *Service) Fulfill(ctx context.Context, needID int64, req FulfillNeedRequest) (*FulfillNeedResponse, error) {
	if req.DonorID == "" {
		return nil, apperr.ErrInvalid("donor_id is required")
	}
	donated := req.Units
	if donated <= 0 {
		donated = 1
	}
	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		return nil, apperr.ErrInvalid("invalid expiry_date, expected YYYY-MM-DD")
	}

	now := s.clock.Now()
	collected := now.Truncate(24 * time.Hour)
	if !expiry.After(collected) {
		return nil, apperr.ErrInvalid("expiry_date must be in the future")
	}

	var out FulfillNeedResponse
	err = s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		n, err := s.store.GetForUpdate(ctx, tx, needID)
		if err != nil {
			return err
		}
		if n.Status != StatusOpen {
			return apperr.ErrConflict(fmt.Sprintf("urgent need is already %s", n.Status))
		}

		createdIDs := make([]int64, 0, donated)
		for i := 0; i < donated; i++ {
			u := &units.BloodUnit{
				UnitULID:      s.id.NewULID(now),
				BloodBankID:   n.BloodBankID,
				BloodType:     n.BloodType,
				Units:         1,
				CollectedDate: collected,
				ExpiryDate:    expiry,
				Status:        units.StatusAvailable,
				DonorID:       sql.NullString{String: req.DonorID, Valid: true},
			}
			if err := s.ledger.InsertTx(ctx, tx, u); err != nil {
				return err
			}
			createdIDs = append(createdIDs, u.UnitID)
		}

		if err := s.store.UpdateStatus(ctx, tx, n.NeedID, StatusFulfilled, &req.DonorID, &now); err != nil {
			return err
		}

		n.Status = StatusFulfilled
		n.DonorID = sql.NullString{String: req.DonorID, Valid: true}
		n.FulfilledAt = sql.NullTime{Time: now, Valid: true}
		out = FulfillNeedResponse{
			Need:           buildNeedResponse(n),
			CreatedUnitIDs: createdIDs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Close withdraws an open need without a donation.
func (s *Service) Close(ctx context.Context, needID int64) (*NeedResponse, error) {
	var out NeedResponse
	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		n, err := s.store.GetForUpdate(ctx, tx, needID)
		if err != nil {
			return err
		}
		if n.Status != StatusOpen {
			return apperr.ErrConflict(fmt.Sprintf("urgent need is already %s", n.Status))
		}
		if err := s.store.UpdateStatus(ctx, tx, n.NeedID, StatusClosed, nil, nil); err != nil {
			return err
		}
		n.Status = StatusClosed
		out = buildNeedResponse(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]NeedResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]NeedResponse, 0, len(list))
	for i := range list {
		out = append(out, buildNeedResponse(&list[i]))
	}
	return out, nil
}
