package state

import (
	"math/big"

	fpmath "github.com/raptor0929/torito/internal/math"
)

// Accrue advances a currency's borrow index from its last accrual timestamp
// to now, compounding at the rate sampled from the current price:
//
//	index *= 1 + rate * elapsed / secondsPerYear
//
// The price snapshot then moves to currentPrice so the next accrual measures
// deviation from this point. Zero or negative elapsed time is a full no-op:
// neither the index nor the snapshot moves. Timestamps come from event
// envelopes, never from the wall clock.
func Accrue(cfg *CurrencyConfig, currentPrice *big.Int, now int64) error {
	if currentPrice == nil || currentPrice.Sign() <= 0 {
		return oracleErrorf("no price for currency %s", cfg.Currency)
	}

	elapsed := now - cfg.LastAccrual
	if elapsed > 0 {
		rate := BorrowRate(cfg, currentPrice)
		factor := fpmath.RateFactor(rate, elapsed)
		cfg.BorrowIndex = fpmath.RayMul(cfg.BorrowIndex, factor)
		cfg.LastAccrual = now
		cfg.PriceSnapshot = new(big.Int).Set(currentPrice)
	}
	return nil
}
