package event

import (
	"math/big"

	"github.com/google/uuid"
)

// SupplyRequested deposits collateral into the protocol. Amount carries the
// token's 18-decimal scale.
type SupplyRequested struct {
	PositionID uuid.UUID
	UserID     uuid.UUID
	Token      string
	Amount     *big.Int
	Sequence   int64
	Timestamp  int64 // epoch seconds, versioned input
}

func (s *SupplyRequested) IdempotencyKey() string {
	return s.PositionID.String()
}

func (s *SupplyRequested) EventType() EventType {
	return EventTypeSupplyRequested
}

func (s *SupplyRequested) Currency() *string {
	return nil // Global event
}

func (s *SupplyRequested) SourceSequence() int64 {
	return s.Sequence
}

// WithdrawRequested releases part or all of a collateral position back to
// the user. Amount is in token units at the 18-decimal scale; a locked
// position can be drawn down only while the backing debt stays healthy.
type WithdrawRequested struct {
	RequestID  uuid.UUID
	PositionID uuid.UUID
	UserID     uuid.UUID
	Amount     *big.Int
	Sequence   int64
	Timestamp  int64
}

func (w *WithdrawRequested) IdempotencyKey() string {
	return w.RequestID.String()
}

func (w *WithdrawRequested) EventType() EventType {
	return EventTypeWithdrawRequested
}

func (w *WithdrawRequested) Currency() *string {
	return nil
}

func (w *WithdrawRequested) SourceSequence() int64 {
	return w.Sequence
}
