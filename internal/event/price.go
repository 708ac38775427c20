package event

import (
	"fmt"
	"math/big"
)

// PriceUpdated carries an oracle observation: 18-decimal currency units per
// 1 USD for one price feed.
type PriceUpdated struct {
	Feed      string
	Price     *big.Int
	Sequence  int64
	Timestamp int64
}

func (p *PriceUpdated) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", p.Feed, p.Sequence)
}

func (p *PriceUpdated) EventType() EventType {
	return EventTypePriceUpdated
}

func (p *PriceUpdated) Currency() *string {
	return nil
}

func (p *PriceUpdated) SourceSequence() int64 {
	return p.Sequence
}

// VenueRateUpdated carries the ray-scale shares-to-token exchange rate for a
// collateral token parked at the yield venue.
type VenueRateUpdated struct {
	Token     string
	Rate      *big.Int
	Sequence  int64
	Timestamp int64
}

func (v *VenueRateUpdated) IdempotencyKey() string {
	return fmt.Sprintf("venue_rate:%s:%d", v.Token, v.Sequence)
}

func (v *VenueRateUpdated) EventType() EventType {
	return EventTypeVenueRateUpdated
}

func (v *VenueRateUpdated) Currency() *string {
	return nil
}

func (v *VenueRateUpdated) SourceSequence() int64 {
	return v.Sequence
}
