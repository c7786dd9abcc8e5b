package transfers

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

type relocateCall struct {
	unitIDs  []int64
	fromBank int64
	toBank   int64
}

type fakeAllocator struct {
	stock     map[int64]int
	nextUnit  int64
	released  [][]int64
	relocates []relocateCall
}

func newFakeAllocator(stock map[int64]int) *fakeAllocator {
	if stock == nil {
		stock = map[int64]int{}
	}
	return &fakeAllocator{stock: stock, nextUnit: 100}
}

func (a *fakeAllocator) Reserve(_ context.Context, _ db.DBTX, bankID int64, bloodType string, n int) ([]units.BloodUnit, error) {
	if a.stock[bankID] < n {
		return nil, apperr.ErrInsufficientStock(n, a.stock[bankID])
	}
	a.stock[bankID] -= n
	out := make([]units.BloodUnit, 0, n)
	for i := 0; i < n; i++ {
		a.nextUnit++
		out = append(out, units.BloodUnit{
			UnitID:      a.nextUnit,
			BloodBankID: bankID,
			BloodType:   bloodType,
			Status:      units.StatusReserved,
		})
	}
	return out, nil
}

func (a *fakeAllocator) Release(_ context.Context, _ db.DBTX, unitIDs []int64) (int64, error) {
	a.released = append(a.released, unitIDs)
	return int64(len(unitIDs)), nil
}

func (a *fakeAllocator) Transfer(_ context.Context, _ db.DBTX, unitIDs []int64, fromBankID, toBankID int64) ([]units.BloodUnit, error) {
	a.relocates = append(a.relocates, relocateCall{unitIDs: unitIDs, fromBank: fromBankID, toBank: toBankID})
	return make([]units.BloodUnit, len(unitIDs)), nil
}

type fakeTransferStore struct {
	transfers map[int64]*BloodBankTransfer
	held      map[int64][]int64
	nextID    int64
}

func newFakeTransferStore() *fakeTransferStore {
	return &fakeTransferStore{transfers: map[int64]*BloodBankTransfer{}, held: map[int64][]int64{}}
}

func (s *fakeTransferStore) seed(t BloodBankTransfer) int64 {
	s.nextID++
	t.TransferID = s.nextID
	s.transfers[t.TransferID] = &t
	return t.TransferID
}

func (s *fakeTransferStore) Insert(_ context.Context, _ db.DBTX, t *BloodBankTransfer) error {
	s.nextID++
	t.TransferID = s.nextID
	cp := *t
	s.transfers[cp.TransferID] = &cp
	return nil
}

func (s *fakeTransferStore) Get(_ context.Context, id int64) (*BloodBankTransfer, error) {
	t, ok := s.transfers[id]
	if !ok {
		return nil, apperr.ErrNotFound("transfer not found")
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTransferStore) GetForUpdate(ctx context.Context, _ db.DBTX, id int64) (*BloodBankTransfer, error) {
	return s.Get(ctx, id)
}

func (s *fakeTransferStore) UpdateStatus(_ context.Context, _ db.DBTX, id int64, st Status, completedAt *time.Time) error {
	t := s.transfers[id]
	t.Status = st
	if completedAt != nil {
		t.CompletedDate.Time = *completedAt
		t.CompletedDate.Valid = true
	}
	return nil
}

func (s *fakeTransferStore) InsertTransferUnits(_ context.Context, _ db.DBTX, id int64, unitIDs []int64) error {
	s.held[id] = append(s.held[id], unitIDs...)
	return nil
}

func (s *fakeTransferStore) TransferUnitIDs(_ context.Context, _ db.DBTX, id int64) ([]int64, error) {
	return s.held[id], nil
}

func (s *fakeTransferStore) DeleteTransferUnits(_ context.Context, _ db.DBTX, id int64) error {
	delete(s.held, id)
	return nil
}

func (s *fakeTransferStore) List(_ context.Context, _ Filter) ([]BloodBankTransfer, error) {
	var out []BloodBankTransfer
	for _, t := range s.transfers {
		out = append(out, *t)
	}
	return out, nil
}

func newTestService(st *fakeTransferStore, al *fakeAllocator, banks bankSet) *Service {
	return &Service{
		store: st,
		alloc: al,
		banks: banks,
		runTx: passTx,
		clock: fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		id:    &seqIDGen{},
	}
}

func TestCreateProbesStock(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(map[int64]int{1: 3})
	svc := newTestService(st, al, bankSet{1: true, 2: true})

	resp, err := svc.Create(context.Background(), CreateTransferRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if resp.Status != string(StatusPending) {
		t.Errorf("Expected PENDING, got %s", resp.Status)
	}
	// 作成時の予約は即時解放される使い捨てプローブ
	if len(al.released) != 1 || len(al.released[0]) != 2 {
		t.Errorf("Expected the probe reservation to be released, got %v", al.released)
	}
}

func TestCreateShortageRejected(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(map[int64]int{1: 1})
	svc := newTestService(st, al, bankSet{1: true, 2: true})

	_, err := svc.Create(context.Background(), CreateTransferRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2,
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInsufficientStock {
		t.Fatalf("Expected INSUFFICIENT_STOCK, got %v", err)
	}
	if len(st.transfers) != 0 {
		t.Errorf("No transfer may be created on shortage, got %d", len(st.transfers))
	}
}

func TestCreateRejectsSameBank(t *testing.T) {
	svc := newTestService(newFakeTransferStore(), newFakeAllocator(nil), bankSet{1: true})

	_, err := svc.Create(context.Background(), CreateTransferRequest{
		FromBankID: 1, ToBankID: 1, BloodType: "O+", UnitsTransferred: 1,
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInvalidArgument {
		t.Fatalf("Expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		st := newFakeTransferStore()
		svc := newTestService(st, newFakeAllocator(nil), bankSet{})

		id := st.seed(BloodBankTransfer{
			FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 1, Status: terminal,
		})

		_, err := svc.UpdateStatus(context.Background(), id, "IN_TRANSIT")
		var api *apperr.APIError
		if !errors.As(err, &api) || api.Code != apperr.CodeTerminalState {
			t.Errorf("%s: expected TERMINAL_STATE, got %v", terminal, err)
		}
		if st.transfers[id].Status != terminal {
			t.Errorf("%s: status mutated to %s", terminal, st.transfers[id].Status)
		}
	}
}

func TestDispatchReservesAtSource(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(map[int64]int{1: 5})
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 3, Status: StatusPending,
	})

	resp, err := svc.UpdateStatus(context.Background(), id, "IN_TRANSIT")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Status != string(StatusInTransit) {
		t.Errorf("Expected IN_TRANSIT, got %s", resp.Status)
	}
	if len(st.held[id]) != 3 {
		t.Errorf("Expected 3 held units recorded, got %d", len(st.held[id]))
	}
	if al.stock[1] != 2 {
		t.Errorf("Expected source stock 2, got %d", al.stock[1])
	}
}

func TestDispatchShortageStaysPending(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(map[int64]int{1: 1})
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 3, Status: StatusPending,
	})

	_, err := svc.UpdateStatus(context.Background(), id, "IN_TRANSIT")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInsufficientStock {
		t.Fatalf("Expected INSUFFICIENT_STOCK, got %v", err)
	}
	if st.transfers[id].Status != StatusPending {
		t.Errorf("Transfer must stay PENDING, got %s", st.transfers[id].Status)
	}
}

func TestCompleteRelocatesUnits(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(nil)
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2, Status: StatusInTransit,
	})
	st.held[id] = []int64{101, 102}

	resp, err := svc.UpdateStatus(context.Background(), id, "COMPLETED")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Status != string(StatusCompleted) {
		t.Errorf("Expected COMPLETED, got %s", resp.Status)
	}
	if resp.CompletedDate == nil {
		t.Error("Expected completed date to be set")
	}
	if len(al.relocates) != 1 {
		t.Fatalf("Expected 1 relocation, got %d", len(al.relocates))
	}
	rc := al.relocates[0]
	if rc.fromBank != 1 || rc.toBank != 2 {
		t.Errorf("Expected relocation 1 -> 2, got %d -> %d", rc.fromBank, rc.toBank)
	}
	if len(st.held[id]) != 0 {
		t.Errorf("Held units must be cleared after completion, got %v", st.held[id])
	}
}

func TestCompleteWithoutReservationRejected(t *testing.T) {
	st := newFakeTransferStore()
	svc := newTestService(st, newFakeAllocator(nil), bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2, Status: StatusInTransit,
	})

	_, err := svc.UpdateStatus(context.Background(), id, "COMPLETED")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInvalidReservation {
		t.Fatalf("Expected INVALID_RESERVATION, got %v", err)
	}
}

func TestCancelInTransitReleasesUnits(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(nil)
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2, Status: StatusInTransit,
	})
	st.held[id] = []int64{101, 102}

	resp, err := svc.UpdateStatus(context.Background(), id, "CANCELLED")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if resp.Status != string(StatusCancelled) {
		t.Errorf("Expected CANCELLED, got %s", resp.Status)
	}
	if len(al.released) != 1 || len(al.released[0]) != 2 {
		t.Errorf("Expected the reserved set to be released, got %v", al.released)
	}
}

func TestCancelPendingIsPureStatusUpdate(t *testing.T) {
	st := newFakeTransferStore()
	al := newFakeAllocator(nil)
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankTransfer{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsTransferred: 2, Status: StatusPending,
	})

	resp, err := svc.UpdateStatus(context.Background(), id, "CANCELLED")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if resp.Status != string(StatusCancelled) {
		t.Errorf("Expected CANCELLED, got %s", resp.Status)
	}
	if len(al.released) != 0 {
		t.Errorf("Nothing was reserved, nothing to release, got %v", al.released)
	}
}
