package state

import (
	"math/big"

	fpmath "github.com/raptor0929/torito/internal/math"
)

// BorrowRate computes the annual borrow rate for a currency as a fraction:
//
//	rate = clamp(base + sensitivity*(priceRatio - 1), min, max)
//
// priceRatio is currentPrice / snapshotPrice as a rational. A depreciating
// currency (ratio > 1, more units per USD) pushes the rate up; an
// appreciating one pulls it down. When no prior price snapshot exists the
// ratio term is ignored and the base rate applies.
func BorrowRate(cfg *CurrencyConfig, currentPrice *big.Int) *big.Rat {
	bps := new(big.Rat).SetInt(fpmath.BasisPoints)
	rate := new(big.Rat).Quo(big.NewRat(cfg.BaseRateBps, 1), bps)

	if cfg.PriceSnapshot != nil && cfg.PriceSnapshot.Sign() > 0 && currentPrice != nil && currentPrice.Sign() > 0 {
		ratio := new(big.Rat).SetFrac(currentPrice, cfg.PriceSnapshot)
		deviation := new(big.Rat).Sub(ratio, big.NewRat(1, 1))
		sensitivity := new(big.Rat).Quo(big.NewRat(cfg.SensitivityBps, 1), bps)
		rate.Add(rate, deviation.Mul(deviation, sensitivity))
	}

	minRate := new(big.Rat).Quo(big.NewRat(cfg.MinRateBps, 1), bps)
	maxRate := new(big.Rat).Quo(big.NewRat(cfg.MaxRateBps, 1), bps)
	if rate.Cmp(minRate) < 0 {
		return minRate
	}
	if rate.Cmp(maxRate) > 0 {
		return maxRate
	}
	return rate
}
