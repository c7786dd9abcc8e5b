package units

import (
	"context"
	"database/sql"
	"time"

	"lifeline-backend/internal/platform/apperr"
	"lifeline-backend/internal/platform/db"
)

type Service struct {
	db    *sql.DB
	store *Store
	alloc *Allocator
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB) *Service {
	store := NewStore(conn)
	return &Service{
		db:    conn,
		store: store,
		alloc: NewAllocator(store),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// Allocator exposes the reservation engine to the state machine services.
func (s *Service) Allocator() *Allocator { return s.alloc }

// Store exposes the ledger store (urgent-need fulfillment inserts rows directly).
func (s *Service) Store() *Store { return s.store }

// RecordDonation registers freshly collected stock: one AVAILABLE ledger row
// per donated unit.
func (s *Service) RecordDonation(ctx context.Context, req RecordDonationRequest) ([]UnitResponse, error) {
	if req.Units <= 0 {
		return nil, apperr.ErrInvalid("units must be > 0")
	}
	if req.BloodBankID <= 0 {
		return nil, apperr.ErrInvalid("bloodbank_id is required")
	}
	if !ValidBloodType(req.BloodType) {
		return nil, apperr.ErrInvalid("unknown blood type: " + req.BloodType)
	}

	collected, err := time.Parse("2006-01-02", req.CollectedDate)
	if err != nil {
		return nil, apperr.ErrInvalid("invalid collected_date, expected YYYY-MM-DD")
	}
	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		return nil, apperr.ErrInvalid("invalid expiry_date, expected YYYY-MM-DD")
	}
	if !expiry.After(collected) {
		return nil, apperr.ErrInvalid("expiry_date must be after collected_date")
	}

	now := s.clock.Now()
	created := make([]UnitResponse, 0, req.Units)

	err = db.Write(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		for i := 0; i < req.Units; i++ {
			u := &BloodUnit{
				UnitULID:      s.id.NewULID(now),
				BloodBankID:   req.BloodBankID,
				BloodType:     req.BloodType,
				Units:         1,
				CollectedDate: collected,
				ExpiryDate:    expiry,
				Status:        StatusAvailable,
			}
			if req.DonorID != nil && *req.DonorID != "" {
				u.DonorID = sql.NullString{String: *req.DonorID, Valid: true}
			}
			if err := s.store.InsertTx(ctx, tx, u); err != nil {
				return err
			}
			created = append(created, buildUnitResponse(*u))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Inventory returns the available totals per blood type for one bank.
func (s *Service) Inventory(ctx context.Context, bankID int64) (*InventoryResponse, error) {
	if bankID <= 0 {
		return nil, apperr.ErrInvalid("bank_id must be > 0")
	}
	rows, err := s.store.AggregateAvailable(ctx, bankID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []InventoryRow{}
	}
	return &InventoryResponse{BloodBankID: bankID, Inventory: rows}, nil
}

func (s *Service) ListUnits(ctx context.Context, f UnitFilter) ([]UnitResponse, error) {
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]UnitResponse, 0, len(list))
	for _, u := range list {
		out = append(out, buildUnitResponse(u))
	}
	return out, nil
}
