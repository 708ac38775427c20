package projection

// LoanHistoryEntry records one ledger movement against a debt position:
// disbursement, repayment, interest, or liquidation seizure.
type LoanHistoryEntry struct {
	DebtID    string
	Currency  string
	Kind      string
	Amount    string // decimal string, 18-decimal base units
	JournalID string
	Sequence  int64
	Timestamp int64
}

// LoanHistoryProjection maintains queryable loan activity in memory for the
// read API. The durable copy lives in projections.loan_history.
type LoanHistoryProjection struct {
	entries []LoanHistoryEntry
}

func NewLoanHistoryProjection() *LoanHistoryProjection {
	return &LoanHistoryProjection{
		entries: make([]LoanHistoryEntry, 0),
	}
}

// AddEntry records a loan movement
func (p *LoanHistoryProjection) AddEntry(entry LoanHistoryEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByDebt returns the movements of one debt position, newest first
func (p *LoanHistoryProjection) QueryByDebt(debtID string, limit int) []LoanHistoryEntry {
	result := make([]LoanHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].DebtID == debtID {
			result = append(result, p.entries[i])
		}
	}

	return result
}
