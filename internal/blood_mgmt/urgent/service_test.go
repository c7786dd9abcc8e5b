package urgent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lifeline-backend/internal/blood_mgmt/units"
	"lifeline-backend/internal/platform/apperr"
	"lifeline-backend/internal/platform/db"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewULID(time.Time) string {
	g.n++
	return fmt.Sprintf("ULID%026d", g.n)[:26]
}

func passTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return fn(ctx, nil)
}

type bankSet map[int64]bool

func (b bankSet) Exists(_ context.Context, id int64) (bool, error) { return b[id], nil }

type fakeUnitWriter struct {
	inserted []units.BloodUnit
	nextID   int64
}

func (w *fakeUnitWriter) InsertTx(_ context.Context, _ db.DBTX, u *units.BloodUnit) error {
	w.nextID++
	u.UnitID = w.nextID
	w.inserted = append(w.inserted, *u)
	return nil
}

type fakeNeedStore struct {
	needs  map[int64]*UrgentNeed
	nextID int64
}

func newFakeNeedStore() *fakeNeedStore {
	return &fakeNeedStore{needs: map[int64]*UrgentNeed{}}
}

func (s *fakeNeedStore) seed(n UrgentNeed) int64 {
	s.nextID++
	n.NeedID = s.nextID
	s.needs[n.NeedID] = &n
	return n.NeedID
}

func (s *fakeNeedStore) Insert(_ context.Context, n *UrgentNeed) error {
	s.nextID++
	n.NeedID = s.nextID
	cp := *n
	s.needs[cp.NeedID] = &cp
	return nil
}

func (s *fakeNeedStore) Get(_ context.Context, id int64) (*UrgentNeed, error) {
	n, ok := s.needs[id]
	if !ok {
		return nil, apperr.ErrNotFound("urgent need not found")
	}
	cp := *n
	return &cp, nil
}

func (s *fakeNeedStore) GetForUpdate(ctx context.Context, _ db.DBTX, id int64) (*UrgentNeed, error) {
	return s.Get(ctx, id)
}

func (s *fakeNeedStore) UpdateStatus(_ context.Context, _ db.DBTX, id int64, st Status, donorID *string, at *time.Time) error {
	n := s.needs[id]
	n.Status = st
	if donorID != nil {
		n.DonorID.String = *donorID
		n.DonorID.Valid = true
	}
	if at != nil {
		n.FulfilledAt.Time = *at
		n.FulfilledAt.Valid = true
	}
	return nil
}

func (s *fakeNeedStore) List(_ context.Context, _ Filter) ([]UrgentNeed, error) {
	var out []UrgentNeed
	for _, n := range s.needs {
		out = append(out, *n)
	}
	return out, nil
}

func newTestService(st *fakeNeedStore, w *fakeUnitWriter, banks bankSet) *Service {
	return &Service{
		store:  st,
		ledger: w,
		banks:  banks,
		runTx:  passTx,
		clock:  fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		id:     &seqIDGen{},
	}
}

func TestCreateNeedValidatesBank(t *testing.T) {
	svc := newTestService(newFakeNeedStore(), &fakeUnitWriter{}, bankSet{1: true})

	_, err := svc.Create(context.Background(), CreateNeedRequest{
		BloodBankID: 9, BloodType: "O+", UnitsNeeded: 2,
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeNotFound {
		t.Fatalf("Expected NOT_FOUND, got %v", err)
	}
}

func TestCreateNeedStartsOpen(t *testing.T) {
	svc := newTestService(newFakeNeedStore(), &fakeUnitWriter{}, bankSet{1: true})

	resp, err := svc.Create(context.Background(), CreateNeedRequest{
		BloodBankID: 1, BloodType: "O-", UnitsNeeded: 2,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if resp.Status != string(StatusOpen) {
		t.Errorf("Expected OPEN, got %s", resp.Status)
	}
}

func TestFulfillCreatesAvailableUnits(t *testing.T) {
	st := newFakeNeedStore()
	w := &fakeUnitWriter{}
	svc := newTestService(st, w, bankSet{})

	id := st.seed(UrgentNeed{
		NeedULID: "01NEEDULID00000000000000001", BloodBankID: 1,
		BloodType: "O-", UnitsNeeded: 2, Status: StatusOpen,
	})

	resp, err := svc.Fulfill(context.Background(), id, FulfillNeedRequest{
		DonorID: "DNR-7", Units: 2, ExpiryDate: "2025-07-15",
	})
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if resp.Need.Status != string(StatusFulfilled) {
		t.Errorf("Expected FULFILLED, got %s", resp.Need.Status)
	}
	if resp.Need.DonorID == nil || *resp.Need.DonorID != "DNR-7" {
		t.Errorf("Expected donor DNR-7 on the need, got %v", resp.Need.DonorID)
	}
	if len(resp.CreatedUnitIDs) != 2 {
		t.Fatalf("Expected 2 created units, got %d", len(resp.CreatedUnitIDs))
	}
	if len(w.inserted) != 2 {
		t.Fatalf("Expected 2 ledger inserts, got %d", len(w.inserted))
	}
	for _, u := range w.inserted {
		if u.Status != units.StatusAvailable {
			t.Errorf("Donated unit must enter the ledger AVAILABLE, got %s", u.Status)
		}
		if u.BloodBankID != 1 || u.BloodType != "O-" {
			t.Errorf("Unit landed at wrong bank/type: bank=%d type=%s", u.BloodBankID, u.BloodType)
		}
		if !u.DonorID.Valid || u.DonorID.String != "DNR-7" {
			t.Errorf("Expected donor attribution on unit, got %v", u.DonorID)
		}
	}
}

func TestFulfillDefaultsToOneUnit(t *testing.T) {
	st := newFakeNeedStore()
	w := &fakeUnitWriter{}
	svc := newTestService(st, w, bankSet{})

	id := st.seed(UrgentNeed{
		NeedULID: "01NEEDULID00000000000000002", BloodBankID: 1,
		BloodType: "A+", UnitsNeeded: 3, Status: StatusOpen,
	})

	resp, err := svc.Fulfill(context.Background(), id, FulfillNeedRequest{
		DonorID: "DNR-8", ExpiryDate: "2025-07-15",
	})
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if len(resp.CreatedUnitIDs) != 1 {
		t.Errorf("Expected 1 created unit by default, got %d", len(resp.CreatedUnitIDs))
	}
}

func TestFulfillRejectsPastExpiry(t *testing.T) {
	st := newFakeNeedStore()
	svc := newTestService(st, &fakeUnitWriter{}, bankSet{})

	id := st.seed(UrgentNeed{
		NeedULID: "01NEEDULID00000000000000003", BloodBankID: 1,
		BloodType: "A+", UnitsNeeded: 1, Status: StatusOpen,
	})

	_, err := svc.Fulfill(context.Background(), id, FulfillNeedRequest{
		DonorID: "DNR-9", ExpiryDate: "2025-05-01",
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInvalidArgument {
		t.Fatalf("Expected INVALID_ARGUMENT, got %v", err)
	}
	if st.needs[id].Status != StatusOpen {
		t.Errorf("Need must stay OPEN, got %s", st.needs[id].Status)
	}
}

func TestFulfillClosedNeedConflicts(t *testing.T) {
	st := newFakeNeedStore()
	w := &fakeUnitWriter{}
	svc := newTestService(st, w, bankSet{})

	id := st.seed(UrgentNeed{
		NeedULID: "01NEEDULID00000000000000004", BloodBankID: 1,
		BloodType: "A+", UnitsNeeded: 1, Status: StatusClosed,
	})

	_, err := svc.Fulfill(context.Background(), id, FulfillNeedRequest{
		DonorID: "DNR-9", ExpiryDate: "2025-07-15",
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeConflict {
		t.Fatalf("Expected CONFLICT, got %v", err)
	}
	if len(w.inserted) != 0 {
		t.Errorf("Closed need must not create units, got %d", len(w.inserted))
	}
}

func TestCloseOpenNeed(t *testing.T) {
	st := newFakeNeedStore()
	svc := newTestService(st, &fakeUnitWriter{}, bankSet{})

	id := st.seed(UrgentNeed{
		NeedULID: "01NEEDULID00000000000000005", BloodBankID: 1,
		BloodType: "B+", UnitsNeeded: 1, Status: StatusOpen,
	})

	resp, err := svc.Close(context.Background(), id)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if resp.Status != string(StatusClosed) {
		t.Errorf("Expected CLOSED, got %s", resp.Status)
	}

	// 終端からの再クローズは拒否
	_, err = svc.Close(context.Background(), id)
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeConflict {
		t.Fatalf("Expected CONFLICT on second close, got %v", err)
	}
}
