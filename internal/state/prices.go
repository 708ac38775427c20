package state

import "math/big"

// PricePoint is the most recent oracle observation for a price feed.
// Price is 18-decimal currency units per 1 USD.
type PricePoint struct {
	Price     *big.Int
	Sequence  uint64
	Timestamp int64
}

// PriceBook tracks the latest price per feed reference. Updates arriving with
// a sequence at or below the stored one are stale and ignored.
type PriceBook struct {
	prices map[string]*PricePoint
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]*PricePoint)}
}

// Update records a new observation. Returns false when the update is stale
// or the price is not positive; stale updates are not an error.
func (pb *PriceBook) Update(feed string, price *big.Int, sequence uint64, timestamp int64) bool {
	if price == nil || price.Sign() <= 0 {
		return false
	}
	if cur, ok := pb.prices[feed]; ok && sequence <= cur.Sequence {
		return false
	}
	pb.prices[feed] = &PricePoint{
		Price:     new(big.Int).Set(price),
		Sequence:  sequence,
		Timestamp: timestamp,
	}
	return true
}

// Latest returns the current price for a feed, or an oracle error when no
// observation exists yet.
func (pb *PriceBook) Latest(feed string) (*PricePoint, error) {
	p, ok := pb.prices[feed]
	if !ok {
		return nil, oracleErrorf("no price observed for feed %s", feed)
	}
	return p, nil
}

// Restore installs an observation during snapshot recovery.
func (pb *PriceBook) Restore(feed string, p *PricePoint) {
	pb.prices[feed] = p
}

// Snapshot returns all observations for snapshot serialization.
func (pb *PriceBook) Snapshot() map[string]*PricePoint {
	out := make(map[string]*PricePoint, len(pb.prices))
	for feed, p := range pb.prices {
		out[feed] = p
	}
	return out
}
