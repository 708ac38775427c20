package query

// LoanHistoryResponse represents a loan ledger movement for API queries.
// Amounts are decimal strings in 18-decimal base units.
type LoanHistoryResponse struct {
	EventRef     string `json:"event_ref"`
	DebtID       string `json:"debt_id"`
	Kind         string `json:"kind"`
	Currency     string `json:"currency"`
	Amount       string `json:"amount"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        string `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// EventResponse represents an event envelope row for API queries.
type EventResponse struct {
	Sequence       int64   `json:"sequence"`
	EventType      string  `json:"event_type"`
	IdempotencyKey string  `json:"idempotency_key"`
	Currency       *string `json:"currency,omitempty"`
	Timestamp      string  `json:"timestamp"`
	SourceSequence int64   `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance string `json:"imbalance"`
}
