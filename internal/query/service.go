package query

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence for freshness semantics: readers can
// tell how far behind the core the projection is.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's collateral balances for a specific token.
// Balances come straight from the balance projection; free and locked
// are tracked as separate ledger accounts.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	token string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	collateralPath := fmt.Sprintf("user:%s:collateral:%s", userID, token)
	collateral, err := qs.getProjectedBalance(ctx, collateralPath)
	if err != nil {
		return nil, err
	}

	lockedPath := fmt.Sprintf("user:%s:locked_collateral:%s", userID, token)
	locked, err := qs.getProjectedBalance(ctx, lockedPath)
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Add(collateral, locked)

	return &BalanceResponse{
		UserID:            userID,
		Token:             token,
		CollateralBalance: collateral.String(),
		LockedBalance:     locked.String(),
		TotalBalance:      total.String(),
		AsOfSequence:      asOfSeq,
	}, nil
}

// GetLoanHistory returns the ledger movements of a debt position:
// disbursement, repayments, interest, and liquidation seizures. Supports
// cursor-based pagination via afterSequence.
func (qs *QueryService) GetLoanHistory(
	ctx context.Context,
	debtID uuid.UUID,
	currency *string,
	limit int,
	afterSequence *int64,
) ([]LoanHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT event_ref, debt_id, kind, currency, amount::TEXT, sequence, timestamp
		FROM projections.loan_history
		WHERE debt_id = $1
	`
	args := []interface{}{debtID.String()}
	argIdx := 2

	if currency != nil {
		query += fmt.Sprintf(" AND currency = $%d", argIdx)
		args = append(args, *currency)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LoanHistoryResponse
	for rows.Next() {
		var h LoanHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.EventRef, &h.DebtID, &h.Kind, &h.Currency, &h.Amount, &h.Sequence, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries for a user with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEvents returns recent events from the durable log, newest first.
func (qs *QueryService) GetEvents(
	ctx context.Context,
	limit int,
	afterSequence *int64,
) ([]EventResponse, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, currency, timestamp, source_sequence
		FROM event_log.events
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Currency,
			&e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// invariant against the durable log and projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Check global balance (should sum to zero across all accounts per asset)
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance)::TEXT as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total string
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// getProjectedBalance reads one account balance from the projection.
// Balances are NUMERIC(78,0) and can exceed int64, so they travel as
// decimal strings.
func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (*big.Int, error) {
	var raw string
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance::TEXT FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&raw)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance for %s: %q", accountPath, raw)
	}
	return v, nil
}
