package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserCollateralNonNegative checks both collateral accounts >= 0
func (v *InvariantValidator) ValidateUserCollateralNonNegative(userID uuid.UUID, assetID AssetID) error {
	if err := v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeCollateral, assetID)); err != nil {
		return err
	}
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeLockedCollateral, assetID))
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total.Sign() != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %s", assetName, total)
		}
	}

	return nil
}
