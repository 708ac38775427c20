package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]*big.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*big.Int),
	}
}

func (bt *BalanceTracker) balance(key AccountKey) *big.Int {
	b, ok := bt.balances[key]
	if !ok {
		b = new(big.Int)
		bt.balances[key] = b
	}
	return b
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balance(j.DebitAccount).Add(bt.balance(j.DebitAccount), j.Amount)
	bt.balance(j.CreditAccount).Sub(bt.balance(j.CreditAccount), j.Amount)
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) *big.Int {
	if b, ok := bt.balances[key]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// GetUserCollateralBalance returns unlocked collateral for a user/asset
func (bt *BalanceTracker) GetUserCollateralBalance(userID uuid.UUID, assetID AssetID) *big.Int {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral, assetID))
}

// GetUserLockedBalance returns loan-locked collateral for a user/asset
func (bt *BalanceTracker) GetUserLockedBalance(userID uuid.UUID, assetID AssetID) *big.Int {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeLockedCollateral, assetID))
}

// GetUserTotalBalance returns total balance (collateral + locked)
func (bt *BalanceTracker) GetUserTotalBalance(userID uuid.UUID, assetID AssetID) *big.Int {
	total := bt.GetUserCollateralBalance(userID, assetID)
	return total.Add(total, bt.GetUserLockedBalance(userID, assetID))
}

// === Invariant Checks ===

// ValidateSufficientCollateral checks if user has enough unlocked collateral
func (bt *BalanceTracker) ValidateSufficientCollateral(userID uuid.UUID, assetID AssetID, required *big.Int) error {
	available := bt.GetUserCollateralBalance(userID, assetID)
	if available.Cmp(required) < 0 {
		return fmt.Errorf("insufficient collateral: have=%s, need=%s", available, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance.Sign() < 0 {
		return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]*big.Int {
	totals := make(map[AssetID]*big.Int)

	for key, balance := range bt.balances {
		t, ok := totals[key.AssetID]
		if !ok {
			t = new(big.Int)
			totals[key.AssetID] = t
		}
		t.Add(t, balance)
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]*big.Int {
	snapshot := make(map[AccountKey]*big.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = new(big.Int).Set(v)
	}
	return snapshot
}

// Restore installs a balance during snapshot recovery
func (bt *BalanceTracker) Restore(key AccountKey, balance *big.Int) {
	bt.balances[key] = new(big.Int).Set(balance)
}
