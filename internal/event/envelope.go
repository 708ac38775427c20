package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeSupplyRequested
	EventTypeWithdrawRequested
	EventTypeBorrowRequested
	EventTypeBorrowProcessed
	EventTypeBorrowCanceled
	EventTypeRepayRequested
	EventTypeLiquidateRequested
	EventTypePriceUpdated
	EventTypeVenueRateUpdated
	EventTypeCurrencyAdded
	EventTypeRiskParamsUpdated
	EventTypeOracleUpdated
	EventTypeTokenSupportSet
	EventTypePauseSet
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Currency context (nullable for global events)
	Currency *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Currency returns the currency context (nil for global events)
	Currency() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeSupplyRequested:
		return "SupplyRequested"
	case EventTypeWithdrawRequested:
		return "WithdrawRequested"
	case EventTypeBorrowRequested:
		return "BorrowRequested"
	case EventTypeBorrowProcessed:
		return "BorrowProcessed"
	case EventTypeBorrowCanceled:
		return "BorrowCanceled"
	case EventTypeRepayRequested:
		return "RepayRequested"
	case EventTypeLiquidateRequested:
		return "LiquidateRequested"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeVenueRateUpdated:
		return "VenueRateUpdated"
	case EventTypeCurrencyAdded:
		return "CurrencyAdded"
	case EventTypeRiskParamsUpdated:
		return "RiskParamsUpdated"
	case EventTypeOracleUpdated:
		return "OracleUpdated"
	case EventTypeTokenSupportSet:
		return "TokenSupportSet"
	case EventTypePauseSet:
		return "PauseSet"
	default:
		return "Unknown"
	}
}
