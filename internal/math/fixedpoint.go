package math

import (
	"errors"
	"math/big"
)

// DecimalConfig defines a fixed-point domain
type DecimalConfig struct {
	DecimalPrecision int      // Number of decimal places
	Scale            *big.Int // 10^DecimalPrecision
}

var (
	// Standard configs. Currency amounts and prices are 18-decimal,
	// USD valuations are 6-decimal, the compounding borrow index is 27-decimal.
	AmountConfig = DecimalConfig{DecimalPrecision: 18, Scale: Wad}
	PriceConfig  = DecimalConfig{DecimalPrecision: 18, Scale: Wad}
	USDConfig    = DecimalConfig{DecimalPrecision: 6, Scale: USDUnit}
	IndexConfig  = DecimalConfig{DecimalPrecision: 27, Scale: Ray}
)

var (
	Wad      = mustBigInt("1000000000000000000")          // 1e18
	Ray      = mustBigInt("1000000000000000000000000000") // 1e27
	USDUnit  = big.NewInt(1_000_000)                      // 1e6
	wadToUSD = big.NewInt(1_000_000_000_000)              // 1e12 = 1e18/1e6

	halfRay = new(big.Int).Rsh(Ray, 1)

	// BasisPoints is the scale for ratios and annual rates (10_000 = 100%).
	BasisPoints = big.NewInt(10_000)

	// SecondsPerYear is the accrual denominator for annual rates.
	SecondsPerYear = big.NewInt(31_536_000)
)

// ErrOverflow is returned when a fixed-point result leaves its domain.
var ErrOverflow = errors.New("fixed-point overflow")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// RayMul multiplies two ray-scale values with half-up rounding.
func RayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, Ray)
	return product
}

// RayDiv divides two ray-scale values with half-up rounding.
// A zero divisor yields zero; callers validate indices before dividing.
func RayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, Ray)
	numerator.Add(numerator, halfUp(b))
	numerator.Quo(numerator, b)
	return numerator
}

// RatToRay converts a rational to ray scale with half-up rounding.
func RatToRay(r *big.Rat) *big.Int {
	if r == nil {
		return new(big.Int).Set(Ray)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(Ray))
	num := scaled.Num()
	den := scaled.Denom()
	if den.Sign() == 0 {
		return new(big.Int).Set(Ray)
	}
	return new(big.Int).Quo(new(big.Int).Add(num, halfUp(den)), den)
}

// RateFactor computes the linear compounding factor 1 + rate*elapsed/secondsPerYear
// at ray scale. rate is an annual rate as a rational; elapsed is in seconds.
func RateFactor(rate *big.Rat, elapsed int64) *big.Int {
	if rate == nil || rate.Sign() == 0 || elapsed <= 0 {
		return new(big.Int).Set(Ray)
	}
	perSecond := new(big.Rat).Set(rate)
	perSecond.Quo(perSecond, new(big.Rat).SetInt(SecondsPerYear))
	perSecond.Mul(perSecond, new(big.Rat).SetInt64(elapsed))
	factor := new(big.Rat).Add(big.NewRat(1, 1), perSecond)
	return RatToRay(factor)
}

// ScaledFromAmount converts an amount to index units: amount * ray / index.
// A positive amount never rounds to zero scaled units.
func ScaledFromAmount(amount, index *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, Ray)
	scaled.Add(scaled, halfUp(index))
	scaled.Quo(scaled, index)
	if scaled.Sign() == 0 {
		return big.NewInt(1)
	}
	return scaled
}

// AmountFromScaled converts index units back to an amount: scaled * index / ray.
func AmountFromScaled(scaled, index *big.Int) *big.Int {
	if scaled == nil || scaled.Sign() == 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(scaled, index)
	amount.Add(amount, halfRay)
	amount.Quo(amount, Ray)
	return amount
}

// MulBps applies a basis-point ratio to a value: value * bps / 10_000.
func MulBps(value *big.Int, bps int64) *big.Int {
	if value == nil || value.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(value, big.NewInt(bps))
	out.Quo(out, BasisPoints)
	return out
}

// halfUp returns floor(x/2), the bias added before truncating division to
// round halves away from zero. Adding more would shift exact quotients.
func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Rsh(x, 1)
}
