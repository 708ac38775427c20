package state

import (
	"math/big"

	"github.com/google/uuid"
)

// CollateralStatus is the lifecycle state of a collateral position.
type CollateralStatus string

const (
	CollateralActive       CollateralStatus = "ACTIVE"
	CollateralLockedInLoan CollateralStatus = "LOCKED_IN_LOAN"
	CollateralWithdrawn    CollateralStatus = "WITHDRAWN"
)

// LockedInLoan → Withdrawn is the liquidation seizure path; user-initiated
// withdrawals additionally require Active status at the operation level.
var collateralTransitions = map[CollateralStatus][]CollateralStatus{
	CollateralActive:       {CollateralLockedInLoan, CollateralWithdrawn},
	CollateralLockedInLoan: {CollateralActive, CollateralWithdrawn},
	CollateralWithdrawn:    {},
}

// CanTransitionTo reports whether the status machine permits moving to next.
func (s CollateralStatus) CanTransitionTo(next CollateralStatus) bool {
	for _, allowed := range collateralTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CollateralPosition is one user's deposit of a supported collateral token.
// Amount is the ledger book value at the token's 18-decimal scale; the
// authoritative balance is VenueShares, valued through the venue's exchange
// rate. At most one live (non-withdrawn) position exists per (user, token):
// repeat deposits top up the live position instead of opening a second one.
type CollateralPosition struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Token  string
	Amount *big.Int

	// VenueShares is the yield venue share balance backing this position,
	// set when the deposit is parked at the venue.
	VenueShares *big.Int

	Status    CollateralStatus
	UpdatedAt int64
}

// Transition moves the position to next, enforcing the status machine.
func (p *CollateralPosition) Transition(next CollateralStatus, now int64) error {
	if !p.Status.CanTransitionTo(next) {
		return stateErrorf("collateral %s: cannot transition %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

type collateralKey struct {
	UserID uuid.UUID
	Token  string
}

// CollateralBook holds all collateral positions, indexed by position id, by
// user, and by (user, token) for the live position.
type CollateralBook struct {
	positions map[uuid.UUID]*CollateralPosition
	byUser    map[uuid.UUID][]uuid.UUID
	byKey     map[collateralKey]uuid.UUID
}

func NewCollateralBook() *CollateralBook {
	return &CollateralBook{
		positions: make(map[uuid.UUID]*CollateralPosition),
		byUser:    make(map[uuid.UUID][]uuid.UUID),
		byKey:     make(map[collateralKey]uuid.UUID),
	}
}

// Open creates a new active position. The position id must be fresh and the
// user must not already have a live position in the token; callers top up
// the live position found via Live instead.
func (cb *CollateralBook) Open(id, userID uuid.UUID, token string, amount *big.Int, now int64) (*CollateralPosition, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, stateErrorf("collateral amount must be positive")
	}
	if _, exists := cb.positions[id]; exists {
		return nil, stateErrorf("collateral position %s already exists", id)
	}
	if live, ok := cb.Live(userID, token); ok {
		return nil, stateErrorf("user %s already holds live %s collateral position %s", userID, token, live.ID)
	}
	p := &CollateralPosition{
		ID:        id,
		UserID:    userID,
		Token:     token,
		Amount:    new(big.Int).Set(amount),
		Status:    CollateralActive,
		UpdatedAt: now,
	}
	cb.positions[id] = p
	cb.byUser[userID] = append(cb.byUser[userID], id)
	cb.byKey[collateralKey{userID, token}] = id
	return p, nil
}

// Live returns the user's non-withdrawn position in a token, if any.
func (cb *CollateralBook) Live(userID uuid.UUID, token string) (*CollateralPosition, bool) {
	id, ok := cb.byKey[collateralKey{userID, token}]
	if !ok {
		return nil, false
	}
	p := cb.positions[id]
	if p == nil || p.Status == CollateralWithdrawn {
		return nil, false
	}
	return p, true
}

// Get returns a position by id.
func (cb *CollateralBook) Get(id uuid.UUID) (*CollateralPosition, error) {
	p, ok := cb.positions[id]
	if !ok {
		return nil, stateErrorf("collateral position %s not found", id)
	}
	return p, nil
}

// ByUser returns all positions for a user in insertion order.
func (cb *CollateralBook) ByUser(userID uuid.UUID) []*CollateralPosition {
	ids := cb.byUser[userID]
	out := make([]*CollateralPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, cb.positions[id])
	}
	return out
}

// Restore installs a position during snapshot recovery.
func (cb *CollateralBook) Restore(p *CollateralPosition) {
	if _, exists := cb.positions[p.ID]; !exists {
		cb.byUser[p.UserID] = append(cb.byUser[p.UserID], p.ID)
	}
	cb.positions[p.ID] = p
	if p.Status != CollateralWithdrawn {
		cb.byKey[collateralKey{p.UserID, p.Token}] = p.ID
	}
}

// Snapshot returns all positions for snapshot serialization.
func (cb *CollateralBook) Snapshot() []*CollateralPosition {
	out := make([]*CollateralPosition, 0, len(cb.positions))
	for _, p := range cb.positions {
		out = append(out, p)
	}
	return out
}
