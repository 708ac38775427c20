package state

import (
	"math/big"

	fpmath "github.com/raptor0929/torito/internal/math"
)

// YieldVenue is where idle collateral is parked between deposit and
// withdrawal. Implementations must be deterministic: all inputs come from
// event payloads, never from wall clocks or external calls.
type YieldVenue interface {
	// Deposit converts a token amount to venue shares.
	Deposit(token string, amount *big.Int) (*big.Int, error)
	// Withdraw converts venue shares back to a token amount.
	Withdraw(token string, shares *big.Int) (*big.Int, error)
	// ExchangeRate returns the ray-scale shares-to-token rate.
	ExchangeRate(token string) (*big.Int, error)
}

// IndexVenue is a share-index venue: the token/share exchange rate is a ray
// index that only moves when SetExchangeRate is applied from a venue rate
// event. A fresh token starts at the identity rate.
type IndexVenue struct {
	rates map[string]*big.Int
}

func NewIndexVenue() *IndexVenue {
	return &IndexVenue{rates: make(map[string]*big.Int)}
}

func (v *IndexVenue) rate(token string) *big.Int {
	if r, ok := v.rates[token]; ok {
		return r
	}
	return fpmath.Ray
}

// SetExchangeRate installs a new ray-scale rate for a token.
func (v *IndexVenue) SetExchangeRate(token string, rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return stateErrorf("venue rate for %s must be positive", token)
	}
	v.rates[token] = new(big.Int).Set(rate)
	return nil
}

func (v *IndexVenue) Deposit(token string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, stateErrorf("venue deposit must be positive")
	}
	return fpmath.RayDiv(amount, v.rate(token)), nil
}

func (v *IndexVenue) Withdraw(token string, shares *big.Int) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, stateErrorf("venue withdrawal must be positive")
	}
	return fpmath.RayMul(shares, v.rate(token)), nil
}

func (v *IndexVenue) ExchangeRate(token string) (*big.Int, error) {
	return new(big.Int).Set(v.rate(token)), nil
}

// Restore installs a rate during snapshot recovery.
func (v *IndexVenue) Restore(token string, rate *big.Int) {
	v.rates[token] = rate
}

// Snapshot returns all non-identity rates for snapshot serialization.
func (v *IndexVenue) Snapshot() map[string]*big.Int {
	out := make(map[string]*big.Int, len(v.rates))
	for t, r := range v.rates {
		out[t] = r
	}
	return out
}
