package event

import (
	"fmt"

	"github.com/google/uuid"
)

// LiquidateRequested asks the core to close an undercollateralized debt
// position. The core re-checks the health factor against current prices and
// rejects the request when the position is still above the threshold.
type LiquidateRequested struct {
	RequestID  uuid.UUID
	DebtID     uuid.UUID
	Liquidator uuid.UUID
	Sequence   int64
	Timestamp  int64
}

func (l *LiquidateRequested) IdempotencyKey() string {
	return fmt.Sprintf("liquidate:%s:%s", l.DebtID, l.RequestID)
}

func (l *LiquidateRequested) EventType() EventType {
	return EventTypeLiquidateRequested
}

func (l *LiquidateRequested) Currency() *string {
	return nil
}

func (l *LiquidateRequested) SourceSequence() int64 {
	return l.Sequence
}
