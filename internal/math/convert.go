package math

import (
	"errors"
	"math/big"
)

// ErrPriceUnavailable is returned when a conversion is attempted against a
// zero price. A zero quote means "unavailable", never a real price.
var ErrPriceUnavailable = errors.New("price unavailable")

// ToUSD converts an 18-decimal currency amount to 6-decimal USD using an
// 18-decimal "currency units per 1 USD" price:
//
//	usd = amount * 1e18 / price / 1e12
func ToUSD(amount, price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrPriceUnavailable
	}
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	usd := new(big.Int).Mul(amount, Wad)
	usd.Quo(usd, price)
	usd.Quo(usd, wadToUSD)
	return usd, nil
}

// FromUSD converts a 6-decimal USD amount back to an 18-decimal currency
// amount: amount = usd * price / 1e6.
func FromUSD(usd, price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrPriceUnavailable
	}
	if usd == nil || usd.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Mul(usd, price)
	amount.Quo(amount, USDUnit)
	return amount, nil
}
