package requests

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

type transferCall struct {
	unitIDs  []int64
	fromBank int64
	toBank   int64
}

// fakeAllocator tracks stock as a simple count per bank and hands out
// sequential unit ids on reserve.
type fakeAllocator struct {
	stock     map[int64]int
	nextUnit  int64
	released  [][]int64
	transfers []transferCall
}

func newFakeAllocator(stock map[int64]int) *fakeAllocator {
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
	a.transfers = append(a.transfers, transferCall{unitIDs: unitIDs, fromBank: fromBankID, toBank: toBankID})
	return make([]units.BloodUnit, len(unitIDs)), nil
}

type fakeRequestStore struct {
	reqs   map[int64]*BloodBankRequest
	held   map[int64][]int64
	nextID int64
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{reqs: map[int64]*BloodBankRequest{}, held: map[int64][]int64{}, nextID: 0}
}

func (s *fakeRequestStore) seed(r BloodBankRequest) int64 {
	s.nextID++
	r.RequestID = s.nextID
	s.reqs[r.RequestID] = &r
	return r.RequestID
}

func (s *fakeRequestStore) Insert(_ context.Context, r *BloodBankRequest) error {
	s.nextID++
	r.RequestID = s.nextID
	cp := *r
	s.reqs[cp.RequestID] = &cp
	return nil
}

func (s *fakeRequestStore) Get(_ context.Context, id int64) (*BloodBankRequest, error) {
	r, ok := s.reqs[id]
	if !ok {
		return nil, apperr.ErrNotFound("request not found")
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRequestStore) GetForUpdate(ctx context.Context, _ db.DBTX, id int64) (*BloodBankRequest, error) {
	return s.Get(ctx, id)
}

func (s *fakeRequestStore) UpdateStatus(_ context.Context, _ db.DBTX, id int64, st Status, fulfilledAt *time.Time) error {
	r := s.reqs[id]
	r.Status = st
	if fulfilledAt != nil {
		r.FulfilledDate.Time = *fulfilledAt
		r.FulfilledDate.Valid = true
	}
	return nil
}

func (s *fakeRequestStore) InsertReservedUnits(_ context.Context, _ db.DBTX, id int64, unitIDs []int64) error {
	s.held[id] = append(s.held[id], unitIDs...)
	return nil
}

func (s *fakeRequestStore) ReservedUnitIDs(_ context.Context, _ db.DBTX, id int64) ([]int64, error) {
	return s.held[id], nil
}

func (s *fakeRequestStore) DeleteReservedUnits(_ context.Context, _ db.DBTX, id int64) error {
	delete(s.held, id)
	return nil
}

func (s *fakeRequestStore) List(_ context.Context, _ Filter) ([]BloodBankRequest, error) {
	var out []BloodBankRequest
	for _, r := range s.reqs {
		out = append(out, *r)
	}
	return out, nil
}

func newTestService(st *fakeRequestStore, al *fakeAllocator, banks bankSet) *Service {
	return &Service{
		store: st,
		alloc: al,
		banks: banks,
		runTx: passTx,
		clock: fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		id:    &seqIDGen{},
	}
}

func TestCreateRejectsSelfRequest(t *testing.T) {
	svc := newTestService(newFakeRequestStore(), newFakeAllocator(nil), bankSet{1: true})

	_, err := svc.Create(context.Background(), CreateRequest{
		FromBankID: 1, ToBankID: 1, BloodType: "O+", UnitsRequested: 2,
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInvalidArgument {
		t.Fatalf("Expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestCreateUnknownBank(t *testing.T) {
	svc := newTestService(newFakeRequestStore(), newFakeAllocator(nil), bankSet{1: true})

	_, err := svc.Create(context.Background(), CreateRequest{
		FromBankID: 1, ToBankID: 9, BloodType: "O+", UnitsRequested: 2,
	})
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeNotFound {
		t.Fatalf("Expected NOT_FOUND, got %v", err)
	}
}

func TestCreateStartsPending(t *testing.T) {
	st := newFakeRequestStore()
	svc := newTestService(st, newFakeAllocator(nil), bankSet{1: true, 2: true})

	resp, err := svc.Create(context.Background(), CreateRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 2,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if resp.Status != string(StatusPending) {
		t.Errorf("Expected PENDING, got %s", resp.Status)
	}
	if len(resp.ReservedUnits) != 0 {
		t.Errorf("Create must not reserve units, got %v", resp.ReservedUnits)
	}
}

func TestApproveReservesAtSupplier(t *testing.T) {
	st := newFakeRequestStore()
	al := newFakeAllocator(map[int64]int{2: 5})
	svc := newTestService(st, al, bankSet{1: true, 2: true})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 3, Status: StatusPending,
	})

	resp, err := svc.UpdateStatus(context.Background(), id, "APPROVED")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if resp.Status != string(StatusApproved) {
		t.Errorf("Expected APPROVED, got %s", resp.Status)
	}
	if len(resp.ReservedUnits) != 3 {
		t.Errorf("Expected 3 reserved units in response, got %d", len(resp.ReservedUnits))
	}
	if len(st.held[id]) != 3 {
		t.Errorf("Expected 3 held units recorded, got %d", len(st.held[id]))
	}
	if al.stock[2] != 2 {
		t.Errorf("Expected supplier stock 2, got %d", al.stock[2])
	}
}

func TestApproveShortageKeepsPending(t *testing.T) {
	st := newFakeRequestStore()
	al := newFakeAllocator(map[int64]int{2: 1})
	svc := newTestService(st, al, bankSet{1: true, 2: true})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 3, Status: StatusPending,
	})

	_, err := svc.UpdateStatus(context.Background(), id, "APPROVED")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInsufficientStock {
		t.Fatalf("Expected INSUFFICIENT_STOCK, got %v", err)
	}
	if api.Available != 1 {
		t.Errorf("Expected available=1, got %d", api.Available)
	}
	if st.reqs[id].Status != StatusPending {
		t.Errorf("Request must stay PENDING, got %s", st.reqs[id].Status)
	}
	if len(st.held[id]) != 0 {
		t.Errorf("No units may be held after a failed approve, got %v", st.held[id])
	}
}

func TestRejectPending(t *testing.T) {
	st := newFakeRequestStore()
	svc := newTestService(st, newFakeAllocator(nil), bankSet{})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 3, Status: StatusPending,
	})

	resp, err := svc.UpdateStatus(context.Background(), id, "REJECTED")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if resp.Status != string(StatusRejected) {
		t.Errorf("Expected REJECTED, got %s", resp.Status)
	}
}

func TestRejectApprovedReleasesUnits(t *testing.T) {
	st := newFakeRequestStore()
	al := newFakeAllocator(map[int64]int{2: 0})
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 2, Status: StatusApproved,
	})
	st.held[id] = []int64{101, 102}

	resp, err := svc.UpdateStatus(context.Background(), id, "REJECTED")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if resp.Status != string(StatusRejected) {
		t.Errorf("Expected REJECTED, got %s", resp.Status)
	}
	if len(al.released) != 1 || len(al.released[0]) != 2 {
		t.Errorf("Expected one release of 2 units, got %v", al.released)
	}
	if len(st.held[id]) != 0 {
		t.Errorf("Held units must be cleared, got %v", st.held[id])
	}
}

func TestFulfillWithoutApprovalRejected(t *testing.T) {
	st := newFakeRequestStore()
	svc := newTestService(st, newFakeAllocator(nil), bankSet{})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 2, Status: StatusPending,
	})

	_, err := svc.UpdateStatus(context.Background(), id, "FULFILLED")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeNoReservation {
		t.Fatalf("Expected NO_RESERVATION, got %v", err)
	}
	if st.reqs[id].Status != StatusPending {
		t.Errorf("Request must stay PENDING, got %s", st.reqs[id].Status)
	}
}

func TestFulfillTransfersToRequester(t *testing.T) {
	st := newFakeRequestStore()
	al := newFakeAllocator(nil)
	svc := newTestService(st, al, bankSet{})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 2, Status: StatusApproved,
	})
	st.held[id] = []int64{101, 102}

	resp, err := svc.UpdateStatus(context.Background(), id, "FULFILLED")
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if resp.Status != string(StatusFulfilled) {
		t.Errorf("Expected FULFILLED, got %s", resp.Status)
	}
	if resp.FulfilledDate == nil {
		t.Error("Expected fulfilled date to be set")
	}
	if len(al.transfers) != 1 {
		t.Fatalf("Expected 1 transfer, got %d", len(al.transfers))
	}
	// 供給側(to)から要求側(from)へ動く
	tc := al.transfers[0]
	if tc.fromBank != 2 || tc.toBank != 1 {
		t.Errorf("Expected transfer 2 -> 1, got %d -> %d", tc.fromBank, tc.toBank)
	}
	if len(st.held[id]) != 0 {
		t.Errorf("Held units must be cleared after fulfillment, got %v", st.held[id])
	}
}

func TestInvalidTransitionConflicts(t *testing.T) {
	st := newFakeRequestStore()
	svc := newTestService(st, newFakeAllocator(nil), bankSet{})

	id := st.seed(BloodBankRequest{
		FromBankID: 1, ToBankID: 2, BloodType: "O+", UnitsRequested: 2, Status: StatusFulfilled,
	})

	_, err := svc.UpdateStatus(context.Background(), id, "APPROVED")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeConflict {
		t.Fatalf("Expected CONFLICT, got %v", err)
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeRequestStore(), newFakeAllocator(nil), bankSet{})

	_, err := svc.UpdateStatus(context.Background(), 1, "SHIPPED")
	var api *apperr.APIError
	if !errors.As(err, &api) || api.Code != apperr.CodeInvalidArgument {
		t.Fatalf("Expected INVALID_ARGUMENT, got %v", err)
	}
}
