package requests

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

// Allocator は台帳側の予約エンジン（units.Allocator が実装）。
type Allocator interface {
	Reserve(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, unitsNeeded int) ([]units.BloodUnit, error)
	Release(ctx context.Context, tx db.DBTX, unitIDs []int64) (int64, error)
	Transfer(ctx context.Context, tx db.DBTX, unitIDs []int64, fromBankID, toBankID int64) ([]units.BloodUnit, error)
}

// BankDirectory は血液銀行の存在確認。
type BankDirectory interface {
	Exists(ctx context.Context, bankID int64) (bool, error)
}

type txRunner func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error

type Service struct {
	store RequestStore
	alloc Allocator
	banks BankDirectory
	runTx txRunner
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB, alloc Allocator, banks BankDirectory) *Service {
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

// リクエスト作成（PENDINGで登録、予約はまだ行わない）
func (s *Service) Create(ctx context.Context, req CreateRequest) (*RequestResponse, error) {
	if req.FromBankID <= 0 || req.ToBankID <= 0 {
		return nil, apperr.ErrInvalid("from_bloodbank_id and to_bloodbank_id are required")
	}
	if req.FromBankID == req.ToBankID {
		return nil, apperr.ErrInvalid("a bank cannot request blood from itself")
	}
	if req.UnitsRequested <= 0 {
		return nil, apperr.ErrInvalid("units_requested must be > 0")
	}
	if !units.ValidBloodType(req.BloodType) {
		return nil, apperr.ErrInvalid("unknown blood type: " + req.BloodType)
	}

	for _, bankID := range []int64{req.FromBankID, req.ToBankID} {
		ok, err := s.banks.Exists(ctx, bankID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrNotFound(fmt.Sprintf("blood bank %d not found", bankID))
		}
	}

	r := &BloodBankRequest{
		RequestULID:    s.id.NewULID(s.clock.Now()),
		FromBankID:     req.FromBankID,
		ToBankID:       req.ToBankID,
		BloodType:      req.BloodType,
		UnitsRequested: req.UnitsRequested,
		Status:         StatusPending,
	}
	if req.Message != nil && *req.Message != "" {
		r.Message = sql.NullString{String: *req.Message, Valid: true}
	}

	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	resp := buildRequestResponse(r, nil)
	return &resp, nil
}

// UpdateStatus drives the request state machine. The whole transition runs in
// one transaction: on any sub-step failure nothing is persisted and the
// request keeps its previous state.
func (s *Service) UpdateStatus(ctx context.Context, requestID int64, newStatus string) (*RequestResponse, error) {
	target, ok := ParseStatus(newStatus)
	if !ok {
		return nil, apperr.ErrInvalid("unknown status: " + newStatus)
	}

	var out RequestResponse
	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		switch {
		case r.Status == StatusPending && target == StatusApproved:
			// 供給側（to_bloodbank_id）で予約して保持ユニットを記録
			reserved, err := s.alloc.Reserve(ctx, tx, r.ToBankID, r.BloodType, r.UnitsRequested)
			if err != nil {
				return err
			}
			if err := s.store.InsertReservedUnits(ctx, tx, r.RequestID, units.UnitIDs(reserved)); err != nil {
				return err
			}
			if err := s.store.UpdateStatus(ctx, tx, r.RequestID, StatusApproved, nil); err != nil {
				return err
			}
			r.Status = StatusApproved
			out = buildRequestResponse(r, units.UnitIDs(reserved))
			return nil

		case r.Status == StatusPending && target == StatusRejected:
			if err := s.store.UpdateStatus(ctx, tx, r.RequestID, StatusRejected, nil); err != nil {
				return err
			}
			r.Status = StatusRejected
			out = buildRequestResponse(r, nil)
			return nil

		case r.Status == StatusApproved && target == StatusRejected:
			ids, err := s.store.ReservedUnitIDs(ctx, tx, r.RequestID)
			if err != nil {
				return err
			}
			if _, err := s.alloc.Release(ctx, tx, ids); err != nil {
				return err
			}
			if err := s.store.DeleteReservedUnits(ctx, tx, r.RequestID); err != nil {
				return err
			}
			if err := s.store.UpdateStatus(ctx, tx, r.RequestID, StatusRejected, nil); err != nil {
				return err
			}
			r.Status = StatusRejected
			out = buildRequestResponse(r, nil)
			return nil

		case r.Status == StatusApproved && target == StatusFulfilled:
			ids, err := s.store.ReservedUnitIDs(ctx, tx, r.RequestID)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return apperr.ErrNoReservation("request has no reserved units")
			}
			// 供給側から要求側へ物理移送
			if _, err := s.alloc.Transfer(ctx, tx, ids, r.ToBankID, r.FromBankID); err != nil {
				return err
			}
			if err := s.store.DeleteReservedUnits(ctx, tx, r.RequestID); err != nil {
				return err
			}
			now := s.clock.Now()
			if err := s.store.UpdateStatus(ctx, tx, r.RequestID, StatusFulfilled, &now); err != nil {
				return err
			}
			r.Status = StatusFulfilled
			r.FulfilledDate = sql.NullTime{Time: now, Valid: true}
			out = buildRequestResponse(r, nil)
			return nil

		case r.Status == StatusPending && target == StatusFulfilled:
			// 承認を飛ばした履行は認めない
			return apperr.ErrNoReservation("request must be approved before fulfillment")

		default:
			return apperr.ErrConflict(fmt.Sprintf("cannot transition request from %s to %s", r.Status, target))
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*RequestResponse, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if r.Status == StatusApproved {
		err = s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			ids, err = s.store.ReservedUnitIDs(ctx, tx, r.RequestID)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	resp := buildRequestResponse(r, ids)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]RequestResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]RequestResponse, 0, len(list))
	for i := range list {
		out = append(out, buildRequestResponse(&list[i], nil))
	}
	return out, nil
}
