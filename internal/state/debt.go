package state

import (
	"math/big"

	"github.com/google/uuid"

	fpmath "github.com/raptor0929/torito/internal/math"
)

// DebtStatus is the lifecycle state of a debt position.
type DebtStatus string

const (
	DebtPending    DebtStatus = "PENDING"
	DebtProcessed  DebtStatus = "PROCESSED"
	DebtCanceled   DebtStatus = "CANCELED"
	DebtRepaid     DebtStatus = "REPAID"
	DebtLiquidated DebtStatus = "LIQUIDATED"
)

var debtTransitions = map[DebtStatus][]DebtStatus{
	DebtPending:    {DebtProcessed, DebtCanceled},
	DebtProcessed:  {DebtRepaid, DebtLiquidated},
	DebtCanceled:   {},
	DebtRepaid:     {},
	DebtLiquidated: {},
}

// CanTransitionTo reports whether the status machine permits moving to next.
func (s DebtStatus) CanTransitionTo(next DebtStatus) bool {
	for _, allowed := range debtTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s DebtStatus) Terminal() bool {
	return len(debtTransitions[s]) == 0
}

// DebtPosition records one borrow in a synthetic currency. Principal is
// stored scaled by the borrow index at origination so interest accrues
// implicitly as the index grows; repayments accumulate in TotalRepaid at
// face value.
type DebtPosition struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Currency     string
	CollateralID uuid.UUID
	Principal    *big.Int
	ScaledDebt   *big.Int
	TotalRepaid  *big.Int
	InterestPaid *big.Int
	Status       DebtStatus
	CreatedAt    int64
	UpdatedAt    int64
}

// Transition moves the position to next, enforcing the status machine.
func (d *DebtPosition) Transition(next DebtStatus, now int64) error {
	if !d.Status.CanTransitionTo(next) {
		return stateErrorf("debt %s: cannot transition %s -> %s", d.ID, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}

// Owed returns the outstanding balance at the given borrow index:
// scaledDebt * index - totalRepaid. A negative result means repayments
// exceeded the debt, which the repay path must prevent.
func (d *DebtPosition) Owed(index *big.Int) (*big.Int, error) {
	gross := fpmath.AmountFromScaled(d.ScaledDebt, index)
	owed := gross.Sub(gross, d.TotalRepaid)
	if owed.Sign() < 0 {
		return nil, arithmeticErrorf("debt %s: repaid %s exceeds accrued debt %s",
			d.ID, d.TotalRepaid, fpmath.AmountFromScaled(d.ScaledDebt, index))
	}
	return owed, nil
}

// InterestOutstanding returns unpaid accrued interest at the given borrow
// index: max(0, gross - principal - interestPaid).
func (d *DebtPosition) InterestOutstanding(index *big.Int) *big.Int {
	gross := fpmath.AmountFromScaled(d.ScaledDebt, index)
	out := gross.Sub(gross, d.Principal)
	out.Sub(out, d.InterestPaid)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

type debtKey struct {
	UserID   uuid.UUID
	Currency string
}

// DebtBook holds all debt positions, indexed by position id, by user, and by
// (user, currency) for the live position. A user carries at most one live
// (pending or processed) debt per currency; repeat borrows increment it.
type DebtBook struct {
	positions map[uuid.UUID]*DebtPosition
	byUser    map[uuid.UUID][]uuid.UUID
	byKey     map[debtKey]uuid.UUID
}

func NewDebtBook() *DebtBook {
	return &DebtBook{
		positions: make(map[uuid.UUID]*DebtPosition),
		byUser:    make(map[uuid.UUID][]uuid.UUID),
		byKey:     make(map[debtKey]uuid.UUID),
	}
}

// Open creates a new pending position with the principal scaled at the
// currency's current borrow index.
func (db *DebtBook) Open(id, userID uuid.UUID, currency string, collateralID uuid.UUID, amount, index *big.Int, now int64) (*DebtPosition, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, stateErrorf("borrow amount must be positive")
	}
	if _, exists := db.positions[id]; exists {
		return nil, stateErrorf("debt position %s already exists", id)
	}
	if live, ok := db.Live(userID, currency); ok {
		return nil, stateErrorf("user %s already holds live %s debt %s", userID, currency, live.ID)
	}
	d := &DebtPosition{
		ID:           id,
		UserID:       userID,
		Currency:     currency,
		CollateralID: collateralID,
		Principal:    new(big.Int).Set(amount),
		ScaledDebt:   fpmath.ScaledFromAmount(amount, index),
		TotalRepaid:  big.NewInt(0),
		InterestPaid: big.NewInt(0),
		Status:       DebtPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db.positions[id] = d
	db.byUser[userID] = append(db.byUser[userID], id)
	db.byKey[debtKey{userID, currency}] = id
	return d, nil
}

// Live returns the user's pending or processed debt in a currency, if any.
func (db *DebtBook) Live(userID uuid.UUID, currency string) (*DebtPosition, bool) {
	id, ok := db.byKey[debtKey{userID, currency}]
	if !ok {
		return nil, false
	}
	d := db.positions[id]
	if d == nil || d.Status.Terminal() {
		return nil, false
	}
	return d, true
}

// LiveByCollateral returns the live debt locked against a collateral
// position, if any.
func (db *DebtBook) LiveByCollateral(collateralID uuid.UUID) (*DebtPosition, bool) {
	for _, d := range db.positions {
		if d.CollateralID == collateralID && !d.Status.Terminal() {
			return d, true
		}
	}
	return nil, false
}

// Get returns a position by id.
func (db *DebtBook) Get(id uuid.UUID) (*DebtPosition, error) {
	d, ok := db.positions[id]
	if !ok {
		return nil, stateErrorf("debt position %s not found", id)
	}
	return d, nil
}

// ByUser returns all positions for a user in insertion order.
func (db *DebtBook) ByUser(userID uuid.UUID) []*DebtPosition {
	ids := db.byUser[userID]
	out := make([]*DebtPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, db.positions[id])
	}
	return out
}

// Restore installs a position during snapshot recovery.
func (db *DebtBook) Restore(d *DebtPosition) {
	if _, exists := db.positions[d.ID]; !exists {
		db.byUser[d.UserID] = append(db.byUser[d.UserID], d.ID)
	}
	db.positions[d.ID] = d
	if !d.Status.Terminal() {
		db.byKey[debtKey{d.UserID, d.Currency}] = d.ID
	}
}

// Snapshot returns all positions for snapshot serialization.
func (db *DebtBook) Snapshot() []*DebtPosition {
	out := make([]*DebtPosition, 0, len(db.positions))
	for _, d := range db.positions {
		out = append(out, d)
	}
	return out
}
