package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents user collateral state for API queries.
// Amounts are decimal strings in 18-decimal token base units.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`

	// Ledger balances (from journal entries)
	CollateralBalance string `json:"collateral_balance"` // free collateral
	LockedBalance     string `json:"locked_balance"`     // locked in active loans
	TotalBalance      string `json:"total_balance"`      // collateral + locked

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied event sequence
}

// LoanStatusResponse contains derived loan health metrics for a single debt.
type LoanStatusResponse struct {
	DebtID   uuid.UUID `json:"debt_id"`
	UserID   uuid.UUID `json:"user_id"`
	Currency string    `json:"currency"`
	Status   string    `json:"status"`

	// Principal and repayment totals, decimal strings
	Principal   string `json:"principal"`
	TotalRepaid string `json:"total_repaid"`

	AsOfSequence int64 `json:"as_of_sequence"`
}
