package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Currency       *string
	DebtID         string // empty for events that touch no debt position
	JournalEntries []JournalEntry
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
// Amount is a decimal string; 18-decimal base units exceed int64 range.
type JournalEntry struct {
	JournalID     string
	EventRef      string
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        string
	JournalType   int32
}

// Journal types that produce loan history rows. Values match
// ledger.JournalType; duplicated here to keep the projection decoupled from
// the core packages.
const (
	journalTypeDisbursement       = 4
	journalTypeRepayment          = 5
	journalTypeInterest           = 6
	journalTypeLiquidationSeizure = 7
)

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	history   *LoanHistoryProjection
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		history:   NewLoanHistoryProjection(),
	}
}

// History exposes the in-memory loan history cache for serving reads
// without a database round trip.
func (pw *ProjectionWorker) History() *LoanHistoryProjection {
	return pw.history
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Update balance projections from journal entries
	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if err := pw.updateLoanHistory(ctx, tx, output, j); err != nil {
			return fmt.Errorf("loan history projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection mirrors the core's sign convention: debits
// increase an account, credits decrease it.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -($3::NUMERIC), $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3::NUMERIC, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) updateLoanHistory(ctx context.Context, tx *sql.Tx, output ProjectionOutput, j JournalEntry) error {
	var kind string
	switch j.JournalType {
	case journalTypeDisbursement:
		kind = "disbursement"
	case journalTypeRepayment:
		kind = "repayment"
	case journalTypeInterest:
		kind = "interest"
	case journalTypeLiquidationSeizure:
		kind = "liquidation"
	default:
		return nil
	}

	currency := ""
	if output.Currency != nil {
		currency = *output.Currency
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.loan_history
			(journal_id, event_ref, debt_id, kind, currency, amount, sequence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID, j.EventRef, output.DebtID, kind, currency, j.Amount, output.Sequence, output.Timestamp); err != nil {
		return err
	}

	pw.history.AddEntry(LoanHistoryEntry{
		DebtID:    output.DebtID,
		Currency:  currency,
		Kind:      kind,
		Amount:    j.Amount,
		JournalID: j.JournalID,
		Sequence:  output.Sequence,
		Timestamp: output.Timestamp,
	})
	return nil
}

// RebuildProjections rebuilds all projection tables from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.loan_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild from journal entries: debits add, credits subtract
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.loan_history
			(journal_id, event_ref, debt_id, kind, currency, amount, sequence, timestamp)
		SELECT
			j.journal_id,
			j.event_ref,
			COALESCE(e.payload->>'debt_id', '') AS debt_id,
			CASE j.journal_type
				WHEN 4 THEN 'disbursement'
				WHEN 5 THEN 'repayment'
				WHEN 6 THEN 'interest'
				WHEN 7 THEN 'liquidation'
			END AS kind,
			COALESCE(e.currency, '') AS currency,
			j.amount,
			j.sequence,
			j.timestamp
		FROM event_log.journal j
		LEFT JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.journal_type IN (4, 5, 6, 7)
		ON CONFLICT (journal_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("rebuild loan history: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
