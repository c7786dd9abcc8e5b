package hospital

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

// Consumer は病院履行が台帳に要求する消費操作（units.Allocator が実装）。
type Consumer interface {
	Consume(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, unitsNeeded int, requestRef string) (*units.Consumption, error)
}

type BankDirectory interface {
	Exists(ctx context.Context, bankID int64) (bool, error)
}

type txRunner func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error

type Service struct {
	store HospitalRequestStore
	alloc Consumer
	banks BankDirectory
	runTx txRunner
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB, alloc Consumer, banks BankDirectory) *Service {
	return &Service{
		store: NewStore(conn),
		alloc: alloc,
		banks: banks,
		runTx: func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
			return db.Write(ctx, conn, fn)
		},
		clock: realClock{},
		id:    ulidGen{},
	}
}

// Create registers a hospital request against one bank, or broadcasts the
// same need to several banks. Broadcast rows share a broadcast_group_ulid;
// fulfilling any one of them cancels the rest.
func (s *Service) Create(ctx context.Context, req CreateHospitalRequest) ([]HospitalRequestResponse, error) {
	if req.HospitalID == "" {
		return nil, apperr.ErrInvalid("hospital_id is required")
	}
	if req.UnitsRequested <= 0 {
		return nil, apperr.ErrInvalid("units_requested must be > 0")
	}
	if !units.ValidBloodType(req.BloodType) {
		return nil, apperr.ErrInvalid("unknown blood type: " + req.BloodType)
	}
	if len(req.BloodBankIDs) == 0 {
		return nil, apperr.ErrInvalid("bloodbank_ids must not be empty")
	}
	seen := map[int64]struct{}{}
	for _, bankID := range req.BloodBankIDs {
		if _, dup := seen[bankID]; dup {
			return nil, apperr.ErrInvalid(fmt.Sprintf("duplicate bloodbank id %d", bankID))
		}
		seen[bankID] = struct{}{}
		ok, err := s.banks.Exists(ctx, bankID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrNotFound(fmt.Sprintf("blood bank %d not found", bankID))
		}
	}

	now := s.clock.Now()
	var group sql.NullString
	if len(req.BloodBankIDs) > 1 {
		group = sql.NullString{String: s.id.NewULID(now), Valid: true}
	}

	var out []HospitalRequestResponse
	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		for _, bankID := range req.BloodBankIDs {
			r := &HospitalBloodRequest{
				RequestULID:        s.id.NewULID(now),
				HospitalID:         req.HospitalID,
				BloodBankID:        bankID,
				BloodType:          req.BloodType,
				UnitsRequested:     req.UnitsRequested,
				Status:             StatusPending,
				BroadcastGroupULID: group,
			}
			if req.Message != nil && *req.Message != "" {
				r.Message = sql.NullString{String: *req.Message, Valid: true}
			}
			if err := s.store.Insert(ctx, tx, r); err != nil {
				return err
			}
			out = append(out, buildHospitalRequestResponse(r, nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fulfill consumes the requested units at the target bank, marks the request
// FULFILLED and cancels any PENDING siblings in the same broadcast group.
// One transaction end to end: a shortage leaves everything untouched.
func (s *Service) Fulfill(ctx context.Context, requestID int64) (*FulfillResponse, error) {
	var out FulfillResponse
	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return apperr.ErrConflict(fmt.Sprintf("request is already %s", r.Status))
		}

		cons, err := s.alloc.Consume(ctx, tx, r.BloodBankID, r.BloodType, r.UnitsRequested, r.RequestULID)
		if err != nil {
			return err
		}
		consumedIDs := units.UnitIDs(cons.Units)
		if err := s.store.InsertConsumedUnits(ctx, tx, r.RequestID, consumedIDs); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.store.MarkFulfilled(ctx, tx, r.RequestID, now); err != nil {
			return err
		}

		var cancelled int64
		if r.BroadcastGroupULID.Valid {
			cancelled, err = s.store.CancelSiblings(ctx, tx, r.BroadcastGroupULID.String, r.RequestID)
			if err != nil {
				return err
			}
		}

		r.Status = StatusFulfilled
		r.FulfilledDate = sql.NullTime{Time: now, Valid: true}
		out = FulfillResponse{
			Request:           buildHospitalRequestResponse(r, consumedIDs),
			ConsumedUnitIDs:   consumedIDs,
			CancelledSiblings: cancelled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*HospitalRequestResponse, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildHospitalRequestResponse(r, nil)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]HospitalRequestResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]HospitalRequestResponse, 0, len(list))
	for i := range list {
		out = append(out, buildHospitalRequestResponse(&list[i], nil))
	}
	return out, nil
}
