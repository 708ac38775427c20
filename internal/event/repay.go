package event

import (
	"math/big"

	"github.com/google/uuid"
)

// RepayRequested pays down a processed debt position. Amount is in the debt
// currency's 18-decimal units and must not exceed the outstanding balance.
type RepayRequested struct {
	RequestID uuid.UUID
	DebtID    uuid.UUID
	Amount    *big.Int
	Sequence  int64
	Timestamp int64
}

func (r *RepayRequested) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *RepayRequested) EventType() EventType {
	return EventTypeRepayRequested
}

func (r *RepayRequested) Currency() *string {
	return nil
}

func (r *RepayRequested) SourceSequence() int64 {
	return r.Sequence
}
