package units

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

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

// Allocator is the reservation/consumption engine over the unit ledger.
// Every method runs inside a caller-supplied transaction, so a state machine
// can flip its own status and the unit statuses atomically. Selection and
// marking happen under row locks (FindAvailableForUpdate), closing the
// select-then-mark race between concurrent reservations.
type Allocator struct {
	store LedgerStore
	clock Clock
	id    IDGen
}

func NewAllocator(store LedgerStore) *Allocator {
	return &Allocator{store: store, clock: realClock{}, id: ulidGen{}}
}

// Reserve holds exactly unitsNeeded AVAILABLE units of the given type at the
// bank, oldest expiry first. All-or-nothing: on shortage nothing is mutated
// and the error reports how many units were actually available.
func (a *Allocator) Reserve(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, unitsNeeded int) ([]BloodUnit, error) {
	if unitsNeeded <= 0 {
		return nil, apperr.ErrInvalid("units must be > 0")
	}
	if !ValidBloodType(bloodType) {
		return nil, apperr.ErrInvalid("unknown blood type: " + bloodType)
	}

	candidates, err := a.store.FindAvailableForUpdate(ctx, tx, bankID, bloodType, unitsNeeded)
	if err != nil {
		return nil, err
	}
	if len(candidates) < unitsNeeded {
		return nil, apperr.ErrInsufficientStock(unitsNeeded, len(candidates))
	}

	ids := UnitIDs(candidates)
	aff, err := a.store.MarkStatus(ctx, tx, ids, StatusAvailable, StatusReserved)
	if err != nil {
		return nil, err
	}
	if aff != int64(unitsNeeded) {
		// 行ロック下では起きないはず。起きたらTxごと失敗させる。
		return nil, apperr.ErrInternal(fmt.Sprintf("reserved %d of %d locked units", aff, unitsNeeded))
	}

	for i := range candidates {
		candidates[i].Status = StatusReserved
	}
	return candidates, nil
}

// Release returns RESERVED units to AVAILABLE. Units already AVAILABLE or
// USED are silently skipped, so a partially processed set can be released
// again without error. Returns the number of units actually released.
func (a *Allocator) Release(ctx context.Context, tx db.DBTX, unitIDs []int64) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	return a.store.MarkStatus(ctx, tx, unitIDs, StatusReserved, StatusAvailable)
}

// Transfer relocates a reserved unit set from one bank to another. Every id
// must still be RESERVED and owned by fromBank; any mismatch aborts with no
// partial relocation. The source rows cease to exist and fresh AVAILABLE rows
// appear at the destination with new identities.
func (a *Allocator) Transfer(ctx context.Context, tx db.DBTX, unitIDs []int64, fromBankID, toBankID int64) ([]BloodUnit, error) {
	if len(unitIDs) == 0 {
		return nil, apperr.ErrInvalidReservation("empty unit set")
	}
	if fromBankID == toBankID {
		return nil, apperr.ErrInvalid("source and destination bank are the same")
	}

	locked, err := a.store.LockReserved(ctx, tx, unitIDs, fromBankID)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(unitIDs) {
		return nil, apperr.ErrInvalidReservation(
			fmt.Sprintf("expected %d reserved units at bank %d, found %d", len(unitIDs), fromBankID, len(locked)))
	}

	now := a.clock.Now()
	ulids := make([]string, len(locked))
	for i := range ulids {
		ulids[i] = a.id.NewULID(now)
	}
	return a.store.Relocate(ctx, tx, locked, toBankID, ulids)
}

// Consumption is the audit record of a consume call.
type Consumption struct {
	RequestRef string
	Units      []BloodUnit
}

// Consume reserves unitsNeeded units and immediately marks them USED.
// On shortage the reservation error propagates and nothing is mutated.
func (a *Allocator) Consume(ctx context.Context, tx db.DBTX, bankID int64, bloodType string, unitsNeeded int, requestRef string) (*Consumption, error) {
	reserved, err := a.Reserve(ctx, tx, bankID, bloodType, unitsNeeded)
	if err != nil {
		return nil, err
	}

	ids := UnitIDs(reserved)
	aff, err := a.store.MarkStatus(ctx, tx, ids, StatusReserved, StatusUsed)
	if err != nil {
		return nil, err
	}
	if aff != int64(len(ids)) {
		return nil, apperr.ErrInternal(fmt.Sprintf("consumed %d of %d reserved units", aff, len(ids)))
	}

	for i := range reserved {
		reserved[i].Status = StatusUsed
	}
	return &Consumption{RequestRef: requestRef, Units: reserved}, nil
}
