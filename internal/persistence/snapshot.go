package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, currency configs, price observations, venue
// rates, collateral and debt positions, idempotency keys, sequence counters,
// and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
// All big.Int values are serialized as decimal strings.
type SnapshotData struct {
	Sequence        int64                    `json:"sequence"`
	StateHash       []byte                   `json:"state_hash"`
	Balances        map[string]string        `json:"balances"` // AccountPath -> balance
	Currencies      map[string]CurrencySnap  `json:"currencies"`
	SupportedTokens map[string]bool          `json:"supported_tokens"`
	Prices          map[string]PriceSnap     `json:"prices"`      // feed -> observation
	VenueRates      map[string]string        `json:"venue_rates"` // token -> exchange rate (ray)
	Collateral      []CollateralPositionSnap `json:"collateral"`
	Debts           []DebtPositionSnap       `json:"debts"`
	Paused          bool                     `json:"paused"`
	SequenceState   map[string]int64         `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string                 `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time                `json:"created_at"`
}

// CurrencySnap is a serializable currency configuration.
type CurrencySnap struct {
	Currency                string `json:"currency"`
	PriceFeed               string `json:"price_feed"`
	CollateralRatioBps      int64  `json:"collateral_ratio_bps"`
	LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
	BaseRateBps             int64  `json:"base_rate_bps"`
	MinRateBps              int64  `json:"min_rate_bps"`
	MaxRateBps              int64  `json:"max_rate_bps"`
	SensitivityBps          int64  `json:"sensitivity_bps"`
	BorrowIndex             string `json:"borrow_index"` // ray
	LastAccrual             int64  `json:"last_accrual"`
	PriceSnapshot           string `json:"price_snapshot"` // wad
}

// PriceSnap is a serializable oracle observation.
type PriceSnap struct {
	Price     string `json:"price"` // wad
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// CollateralPositionSnap is a serializable collateral position.
type CollateralPositionSnap struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	VenueShares string `json:"venue_shares"`
	Status      string `json:"status"`
	UpdatedAt   int64  `json:"updated_at"`
}

// DebtPositionSnap is a serializable debt position.
type DebtPositionSnap struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Currency     string `json:"currency"`
	CollateralID string `json:"collateral_id"`
	Principal    string `json:"principal"`
	ScaledDebt   string `json:"scaled_debt"`
	TotalRepaid  string `json:"total_repaid"`
	InterestPaid string `json:"interest_paid"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically (e.g., every 100k events) and verified by replaying events
// from the snapshot sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the latest snapshot then replay events from sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, currency, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Currency,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
