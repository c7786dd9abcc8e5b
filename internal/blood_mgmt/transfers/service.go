package transfers

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

type Allocator interface {
	Reserve(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, unitsNeeded int) ([]units.BloodUnit, error)
	Release(ctx context.Context, tx db.DBTX, unitIDs []int64) (int64, error)
	Transfer(ctx context.Context, tx db.DBTX, unitIDs []int64, fromBankID, toBankID int64) ([]units.BloodUnit, error)
}

type BankDirectory interface {
	Exists(ctx context.Context, bankID int64) (bool, error)
}

type txRunner func(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error

type Service struct {
	store TransferStore
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

// Create registers a PENDING transfer. Stock is probed with a disposable
// reserve+release in the same transaction, so a transfer that could never be
// fulfilled is rejected up front without holding anything.
func (s *Service) Create(ctx context.Context, req CreateTransferRequest) (*TransferResponse, error) {
	if req.FromBankID <= 0 || req.ToBankID <= 0 {
		return nil, apperr.ErrInvalid("from_bloodbank_id and to_bloodbank_id are required")
	}
	if req.FromBankID == req.ToBankID {
		return nil, apperr.ErrInvalid("a bank cannot transfer blood to itself")
	}
	if req.UnitsTransferred <= 0 {
		return nil, apperr.ErrInvalid("units_transferred must be > 0")
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

	t := &BloodBankTransfer{
		TransferULID:     s.id.NewULID(s.clock.Now()),
		FromBankID:       req.FromBankID,
		ToBankID:         req.ToBankID,
		BloodType:        req.BloodType,
		UnitsTransferred: req.UnitsTransferred,
		Status:           StatusPending,
	}

	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		probe, err := s.alloc.Reserve(ctx, tx, req.FromBankID, req.BloodType, req.UnitsTransferred)
		if err != nil {
			return err
		}
		if _, err := s.alloc.Release(ctx, tx, units.UnitIDs(probe)); err != nil {
			return err
		}
		return s.store.Insert(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	resp := buildTransferResponse(t)
	return &resp, nil
}

// UpdateStatus drives the transfer state machine. Terminal states are
// immutable; a failed sub-step leaves the transfer in its previous state.
func (s *Service) UpdateStatus(ctx context.Context, transferID int64, newStatus string) (*TransferResponse, error) {
	target, ok := ParseStatus(newStatus)
	if !ok {
		return nil, apperr.ErrInvalid("unknown status: " + newStatus)
	}

	var out TransferResponse
	err := s.runTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		t, err := s.store.GetForUpdate(ctx, tx, transferID)
		if err != nil {
			return err
		}

		if t.Status.Terminal() {
			return apperr.ErrTerminalState(fmt.Sprintf("transfer is already %s", t.Status))
		}

		switch {
		case t.Status == StatusPending && target == StatusInTransit:
			// 供給側で予約。在庫が足りなければTxごと失敗し、PENDINGのまま。
			reserved, err := s.alloc.Reserve(ctx, tx, t.FromBankID, t.BloodType, t.UnitsTransferred)
			if err != nil {
				return err
			}
			if err := s.store.InsertTransferUnits(ctx, tx, t.TransferID, units.UnitIDs(reserved)); err != nil {
				return err
			}
			if err := s.store.UpdateStatus(ctx, tx, t.TransferID, StatusInTransit, nil); err != nil {
				return err
			}
			t.Status = StatusInTransit
			out = buildTransferResponse(t)
			return nil

		case t.Status == StatusInTransit && target == StatusCompleted:
			ids, err := s.store.TransferUnitIDs(ctx, tx, t.TransferID)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return apperr.ErrInvalidReservation("transfer has no reserved units")
			}
			if _, err := s.alloc.Transfer(ctx, tx, ids, t.FromBankID, t.ToBankID); err != nil {
				return err
			}
			if err := s.store.DeleteTransferUnits(ctx, tx, t.TransferID); err != nil {
				return err
			}
			now := s.clock.Now()
			if err := s.store.UpdateStatus(ctx, tx, t.TransferID, StatusCompleted, &now); err != nil {
				return err
			}
			t.Status = StatusCompleted
			t.CompletedDate = sql.NullTime{Time: now, Valid: true}
			out = buildTransferResponse(t)
			return nil

		case t.Status == StatusInTransit && target == StatusCancelled:
			ids, err := s.store.TransferUnitIDs(ctx, tx, t.TransferID)
			if err != nil {
				return err
			}
			if _, err := s.alloc.Release(ctx, tx, ids); err != nil {
				return err
			}
			if err := s.store.DeleteTransferUnits(ctx, tx, t.TransferID); err != nil {
				return err
			}
			if err := s.store.UpdateStatus(ctx, tx, t.TransferID, StatusCancelled, nil); err != nil {
				return err
			}
			t.Status = StatusCancelled
			out = buildTransferResponse(t)
			return nil

		case t.Status == StatusPending && target == StatusCancelled:
			// 予約前なので純粋なステータス更新
			if err := s.store.UpdateStatus(ctx, tx, t.TransferID, StatusCancelled, nil); err != nil {
				return err
			}
			t.Status = StatusCancelled
			out = buildTransferResponse(t)
			return nil

		default:
			return apperr.ErrConflict(fmt.Sprintf("cannot transition transfer from %s to %s", t.Status, target))
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*TransferResponse, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildTransferResponse(t)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]TransferResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]TransferResponse, 0, len(list))
	for i := range list {
		out = append(out, buildTransferResponse(&list[i]))
	}
	return out, nil
}
