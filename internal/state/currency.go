package state

import (
	"math/big"

	fpmath "github.com/raptor0929/torito/internal/math"
)

// CurrencyConfig holds the risk and rate configuration for one synthetic
// currency plus its compounding borrow index. Ratios and rates are in basis
// points (10_000 = 100%); the borrow index is ray scale (1e27); prices are
// 18-decimal "currency units per 1 USD".
type CurrencyConfig struct {
	Currency                string
	PriceFeed               string
	CollateralRatioBps      int64
	LiquidationThresholdBps int64

	// Interest model parameters (annual rates in basis points).
	BaseRateBps    int64
	MinRateBps     int64
	MaxRateBps     int64
	SensitivityBps int64

	// Accrual state. BorrowIndex starts at RAY; PriceSnapshot is the price
	// sampled at the last accrual and is the baseline for the next rate sample.
	BorrowIndex   *big.Int
	LastAccrual   int64 // unix seconds, from event timestamps
	PriceSnapshot *big.Int
}

// ValidateCurrencyConfig checks the ratio bounds:
// collateral ratio >= 100% and 100% <= liquidation threshold <= collateral ratio.
func ValidateCurrencyConfig(cfg *CurrencyConfig) error {
	if cfg.Currency == "" {
		return configErrorf("currency id must not be empty")
	}
	if cfg.CollateralRatioBps < 10_000 {
		return configErrorf("collateral ratio must be >= 100%%, got %d bps", cfg.CollateralRatioBps)
	}
	if cfg.LiquidationThresholdBps < 10_000 {
		return configErrorf("liquidation threshold must be >= 100%%, got %d bps", cfg.LiquidationThresholdBps)
	}
	if cfg.LiquidationThresholdBps > cfg.CollateralRatioBps {
		return configErrorf("liquidation threshold (%d) must be <= collateral ratio (%d)",
			cfg.LiquidationThresholdBps, cfg.CollateralRatioBps)
	}
	if cfg.MinRateBps < 0 {
		return configErrorf("min rate must be >= 0, got %d bps", cfg.MinRateBps)
	}
	if cfg.MaxRateBps < cfg.MinRateBps {
		return configErrorf("max rate (%d) must be >= min rate (%d)", cfg.MaxRateBps, cfg.MinRateBps)
	}
	return nil
}

// CurrencyRegistry owns all CurrencyConfig records and the collateral token
// allow-list. Only accessed from the single-threaded core.
type CurrencyRegistry struct {
	configs         map[string]*CurrencyConfig
	supportedTokens map[string]bool
}

func NewCurrencyRegistry() *CurrencyRegistry {
	return &CurrencyRegistry{
		configs:         make(map[string]*CurrencyConfig),
		supportedTokens: make(map[string]bool),
	}
}

// AddCurrency registers a currency. Re-adding an id overwrites the prior
// configuration entirely (last write wins, no merge); the borrow index and
// accrual clock restart at their identity values.
func (cr *CurrencyRegistry) AddCurrency(cfg *CurrencyConfig, now int64) error {
	if err := ValidateCurrencyConfig(cfg); err != nil {
		return err
	}
	cfg.BorrowIndex = new(big.Int).Set(fpmath.Ray)
	cfg.LastAccrual = now
	if cfg.PriceSnapshot == nil {
		cfg.PriceSnapshot = big.NewInt(0)
	}
	cr.configs[cfg.Currency] = cfg
	return nil
}

// UpdateRiskParams mutates ratio and rate parameters in place. The borrow
// index and accrual timestamp are untouched.
func (cr *CurrencyRegistry) UpdateRiskParams(
	currency string,
	collateralRatioBps, liquidationThresholdBps int64,
	baseRateBps, minRateBps, maxRateBps, sensitivityBps int64,
) error {
	cfg, err := cr.Get(currency)
	if err != nil {
		return err
	}
	next := *cfg
	next.CollateralRatioBps = collateralRatioBps
	next.LiquidationThresholdBps = liquidationThresholdBps
	next.BaseRateBps = baseRateBps
	next.MinRateBps = minRateBps
	next.MaxRateBps = maxRateBps
	next.SensitivityBps = sensitivityBps
	if err := ValidateCurrencyConfig(&next); err != nil {
		return err
	}
	cfg.CollateralRatioBps = collateralRatioBps
	cfg.LiquidationThresholdBps = liquidationThresholdBps
	cfg.BaseRateBps = baseRateBps
	cfg.MinRateBps = minRateBps
	cfg.MaxRateBps = maxRateBps
	cfg.SensitivityBps = sensitivityBps
	return nil
}

// UpdateOracle points an existing currency at a new price feed reference.
func (cr *CurrencyRegistry) UpdateOracle(currency, priceFeed string) error {
	cfg, err := cr.Get(currency)
	if err != nil {
		return err
	}
	if priceFeed == "" {
		return configErrorf("price feed ref must not be empty")
	}
	cfg.PriceFeed = priceFeed
	return nil
}

// Get returns the configuration for a currency id.
func (cr *CurrencyRegistry) Get(currency string) (*CurrencyConfig, error) {
	cfg, ok := cr.configs[currency]
	if !ok {
		return nil, configErrorf("currency %s not supported", currency)
	}
	return cfg, nil
}

// SetSupportedToken adds or removes a collateral token from the allow-list.
func (cr *CurrencyRegistry) SetSupportedToken(token string, supported bool) {
	if supported {
		cr.supportedTokens[token] = true
	} else {
		delete(cr.supportedTokens, token)
	}
}

// IsSupportedToken reports whether a token may be used as collateral.
func (cr *CurrencyRegistry) IsSupportedToken(token string) bool {
	return cr.supportedTokens[token]
}

// Currencies returns all configured currency ids (unsorted).
func (cr *CurrencyRegistry) Currencies() []string {
	out := make([]string, 0, len(cr.configs))
	for id := range cr.configs {
		out = append(out, id)
	}
	return out
}

// Restore installs a config during snapshot recovery, bypassing validation
// (the snapshot was validated when first applied).
func (cr *CurrencyRegistry) Restore(cfg *CurrencyConfig) {
	cr.configs[cfg.Currency] = cfg
}

// Snapshot returns all configs for snapshot serialization.
func (cr *CurrencyRegistry) Snapshot() map[string]*CurrencyConfig {
	out := make(map[string]*CurrencyConfig, len(cr.configs))
	for id, cfg := range cr.configs {
		out[id] = cfg
	}
	return out
}

// SupportedTokens returns the current allow-list for snapshot serialization.
func (cr *CurrencyRegistry) SupportedTokens() map[string]bool {
	out := make(map[string]bool, len(cr.supportedTokens))
	for t, v := range cr.supportedTokens {
		out[t] = v
	}
	return out
}
