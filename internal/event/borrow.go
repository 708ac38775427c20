package event

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// BorrowRequested opens a pending debt position against locked collateral.
// Amount is in the synthetic currency's 18-decimal units.
type BorrowRequested struct {
	DebtID       uuid.UUID
	UserID       uuid.UUID
	CurrencyID   string
	CollateralID uuid.UUID
	Amount       *big.Int
	Sequence     int64
	Timestamp    int64
}

func (b *BorrowRequested) IdempotencyKey() string {
	return b.DebtID.String()
}

func (b *BorrowRequested) EventType() EventType {
	return EventTypeBorrowRequested
}

func (b *BorrowRequested) Currency() *string {
	s := b.CurrencyID
	return &s
}

func (b *BorrowRequested) SourceSequence() int64 {
	return b.Sequence
}

// BorrowProcessed confirms disbursement of a pending borrow.
type BorrowProcessed struct {
	DebtID    uuid.UUID
	Sequence  int64
	Timestamp int64
}

func (b *BorrowProcessed) IdempotencyKey() string {
	return fmt.Sprintf("borrow_processed:%s", b.DebtID)
}

func (b *BorrowProcessed) EventType() EventType {
	return EventTypeBorrowProcessed
}

func (b *BorrowProcessed) Currency() *string {
	return nil
}

func (b *BorrowProcessed) SourceSequence() int64 {
	return b.Sequence
}

// BorrowCanceled aborts a pending borrow and unlocks its collateral.
type BorrowCanceled struct {
	DebtID    uuid.UUID
	Reason    string
	Sequence  int64
	Timestamp int64
}

func (b *BorrowCanceled) IdempotencyKey() string {
	return fmt.Sprintf("borrow_canceled:%s", b.DebtID)
}

func (b *BorrowCanceled) EventType() EventType {
	return EventTypeBorrowCanceled
}

func (b *BorrowCanceled) Currency() *string {
	return nil
}

func (b *BorrowCanceled) SourceSequence() int64 {
	return b.Sequence
}
