package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/raptor0929/torito/internal/event"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence realigns the generator after snapshot recovery
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateSupply creates journals for a collateral deposit. Top-ups of a
// position that is locked behind a loan land in the locked account so the
// locked balance keeps matching the position's book value.
// Moves funds: external:deposits → user:collateral (or user:locked_collateral)
func (jg *JournalGenerator) GenerateSupply(
	evt *event.SupplyRequested,
	assetID AssetID,
	locked bool,
) (*Batch, error) {
	batchID := uuid.New()

	subType := SubTypeCollateral
	if locked {
		subType = SubTypeLockedCollateral
	}

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.PositionID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.PositionID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(evt.UserID, subType, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeSupply,
		Timestamp:     evt.Timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawal creates journals for paying venue proceeds out to the
// user. yieldAdjustment is the difference between the position's venue value
// and its ledger book value: a positive adjustment books venue yield into
// the user's account before the payout, a negative one writes the book value
// down after a venue loss. The payout then draws on the adjusted balance.
// Pre-check: adjusted balance must cover the payout.
// Moves funds: user:collateral (or user:locked_collateral) → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(
	userID uuid.UUID,
	requestID uuid.UUID,
	amount *big.Int,
	yieldAdjustment *big.Int,
	assetID AssetID,
	locked bool,
	timestamp int64,
) (*Batch, error) {
	subType := SubTypeCollateral
	if locked {
		subType = SubTypeLockedCollateral
	}
	userAccount := NewUserAccountKey(userID, subType, assetID)

	adjusted := jg.balanceTracker.GetBalance(userAccount)
	if yieldAdjustment != nil {
		adjusted.Add(adjusted, yieldAdjustment)
	}
	if adjusted.Cmp(amount) < 0 {
		return nil, fmt.Errorf("withdrawal pre-check failed: have=%s, need=%s", adjusted, amount)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  requestID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	if j, ok := jg.venueYieldJournal(batchID, requestID.String(), userAccount, yieldAdjustment, assetID, timestamp); ok {
		batch.Journals = append(batch.Journals, j)
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      requestID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: userAccount,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeWithdrawal,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// venueYieldJournal books the venue yield (or loss) of a position against
// the external deposits boundary. A zero or nil adjustment produces nothing.
func (jg *JournalGenerator) venueYieldJournal(
	batchID uuid.UUID,
	eventRef string,
	userAccount AccountKey,
	adjustment *big.Int,
	assetID AssetID,
	timestamp int64,
) (Journal, bool) {
	if adjustment == nil || adjustment.Sign() == 0 {
		return Journal{}, false
	}

	external := NewExternalAccountKey(SubTypeExternalDeposits, assetID)
	debit, credit := userAccount, external
	amount := new(big.Int).Set(adjustment)
	if amount.Sign() < 0 {
		debit, credit = external, userAccount
		amount.Neg(amount)
	}

	return Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      fmt.Sprintf("%s:yield", eventRef),
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeVenueYield,
		Timestamp:     timestamp,
	}, true
}

// GenerateCollateralLock locks a user's collateral behind a pending borrow.
// Pre-check: user must have that much unlocked collateral.
// Moves funds: user:collateral → user:locked_collateral
func (jg *JournalGenerator) GenerateCollateralLock(
	evt *event.BorrowRequested,
	collateralAmount *big.Int,
	collateralAssetID AssetID,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCollateral(evt.UserID, collateralAssetID, collateralAmount); err != nil {
		return nil, fmt.Errorf("borrow pre-check failed: %w", err)
	}

	batchID := uuid.New()
	eventRef := evt.DebtID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	lock := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(evt.UserID, SubTypeLockedCollateral, collateralAssetID),
		CreditAccount: NewUserAccountKey(evt.UserID, SubTypeCollateral, collateralAssetID),
		AssetID:       collateralAssetID,
		Amount:        collateralAmount,
		JournalType:   JournalTypeCollateralLock,
		Timestamp:     evt.Timestamp,
	}
	batch.Journals = append(batch.Journals, lock)

	jg.sequence++
	return batch, nil
}

// GenerateDisbursement posts the minted currency leaving the boundary once
// a pending borrow is confirmed.
// Moves funds: system:liquidity → external:disbursements
func (jg *JournalGenerator) GenerateDisbursement(
	debtID uuid.UUID,
	amount *big.Int,
	currencyAssetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()
	eventRef := fmt.Sprintf("%s:disburse", debtID)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	disburse := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalDisbursements, currencyAssetID),
		CreditAccount: NewSystemAccountKey(SubTypeSystemLiquidity, currencyAssetID),
		AssetID:       currencyAssetID,
		Amount:        amount,
		JournalType:   JournalTypeDisbursement,
		Timestamp:     timestamp,
	}
	batch.Journals = append(batch.Journals, disburse)

	jg.sequence++
	return batch, nil
}

// GenerateBorrowCancel unlocks the collateral of a canceled pending borrow.
// Nothing was disbursed yet, so only the lock leg reverses.
func (jg *JournalGenerator) GenerateBorrowCancel(
	userID uuid.UUID,
	debtID uuid.UUID,
	collateralAmount *big.Int,
	collateralAssetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()
	eventRef := fmt.Sprintf("%s:cancel", debtID)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	unlock := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(userID, SubTypeCollateral, collateralAssetID),
		CreditAccount: NewUserAccountKey(userID, SubTypeLockedCollateral, collateralAssetID),
		AssetID:       collateralAssetID,
		Amount:        collateralAmount,
		JournalType:   JournalTypeCollateralRelease,
		Timestamp:     timestamp,
	}
	batch.Journals = append(batch.Journals, unlock)

	jg.sequence++
	return batch, nil
}

// GenerateRepay creates journals for a repayment. The principal portion
// flows back into liquidity; the interest portion is carved out to the
// interest account so revenue stays visible.
// Moves funds: system:liquidity ← external:repayments, then
// system:interest ← system:liquidity for the interest slice.
func (jg *JournalGenerator) GenerateRepay(
	requestID uuid.UUID,
	debtID uuid.UUID,
	amount *big.Int,
	interestPortion *big.Int,
	currencyAssetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if interestPortion != nil && interestPortion.Cmp(amount) > 0 {
		return nil, fmt.Errorf("repay interest %s exceeds amount %s", interestPortion, amount)
	}

	batchID := uuid.New()
	eventRef := requestID.String()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	repay := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewSystemAccountKey(SubTypeSystemLiquidity, currencyAssetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalRepayments, currencyAssetID),
		AssetID:       currencyAssetID,
		Amount:        amount,
		JournalType:   JournalTypeRepayment,
		Timestamp:     timestamp,
	}
	batch.Journals = append(batch.Journals, repay)

	if interestPortion != nil && interestPortion.Sign() > 0 {
		interest := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      fmt.Sprintf("%s:interest", debtID),
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey(SubTypeSystemInterest, currencyAssetID),
			CreditAccount: NewSystemAccountKey(SubTypeSystemLiquidity, currencyAssetID),
			AssetID:       currencyAssetID,
			Amount:        interestPortion,
			JournalType:   JournalTypeInterest,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, interest)
	}

	jg.sequence++
	return batch, nil
}

// GenerateCollateralRelease unlocks collateral after full repayment.
func (jg *JournalGenerator) GenerateCollateralRelease(
	userID uuid.UUID,
	debtID uuid.UUID,
	collateralAmount *big.Int,
	collateralAssetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()
	eventRef := fmt.Sprintf("%s:release", debtID)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(userID, SubTypeCollateral, collateralAssetID),
		CreditAccount: NewUserAccountKey(userID, SubTypeLockedCollateral, collateralAssetID),
		AssetID:       collateralAssetID,
		Amount:        collateralAmount,
		JournalType:   JournalTypeCollateralRelease,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateLiquidation seizes the locked collateral of an undercollateralized
// debt into the system liquidity account at its venue value. Accrued venue
// yield (or loss) is booked into the locked account first so the seizure
// drains it exactly.
// Moves funds: user:locked_collateral → system:liquidity
func (jg *JournalGenerator) GenerateLiquidation(
	userID uuid.UUID,
	debtID uuid.UUID,
	requestID uuid.UUID,
	collateralAmount *big.Int,
	yieldAdjustment *big.Int,
	collateralAssetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()
	eventRef := fmt.Sprintf("liquidate:%s:%s", debtID, requestID)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	lockedAccount := NewUserAccountKey(userID, SubTypeLockedCollateral, collateralAssetID)
	if j, ok := jg.venueYieldJournal(batchID, eventRef, lockedAccount, yieldAdjustment, collateralAssetID, timestamp); ok {
		batch.Journals = append(batch.Journals, j)
	}

	if collateralAmount != nil && collateralAmount.Sign() > 0 {
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewSystemAccountKey(SubTypeSystemLiquidity, collateralAssetID),
			CreditAccount: lockedAccount,
			AssetID:       collateralAssetID,
			Amount:        collateralAmount,
			JournalType:   JournalTypeLiquidationSeizure,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	jg.sequence++
	return batch, nil
}
