package state_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	fpmath "github.com/raptor0929/torito/internal/math"
	"github.com/raptor0929/torito/internal/state"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.Wad)
}

const yearSeconds int64 = 31_536_000

func testConfig() *state.CurrencyConfig {
	return &state.CurrencyConfig{
		Currency:                "BOB",
		PriceFeed:               "oracle:BOB",
		CollateralRatioBps:      20_000,
		LiquidationThresholdBps: 15_000,
		BaseRateBps:             500,
		MinRateBps:              100,
		MaxRateBps:              5_000,
		SensitivityBps:          10_000,
	}
}

func TestAddCurrency_InitializesIndex(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 1000); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	cfg, err := reg.Get("BOB")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.BorrowIndex.Cmp(fpmath.Ray) != 0 {
		t.Errorf("initial index = %s, want ray", cfg.BorrowIndex)
	}
	if cfg.LastAccrual != 1000 {
		t.Errorf("last accrual = %d, want 1000", cfg.LastAccrual)
	}
}

func TestAddCurrency_LastWriteWins(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 1000); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	second := testConfig()
	second.CollateralRatioBps = 30_000
	if err := reg.AddCurrency(second, 2000); err != nil {
		t.Fatalf("AddCurrency second: %v", err)
	}
	cfg, _ := reg.Get("BOB")
	if cfg.CollateralRatioBps != 30_000 {
		t.Errorf("collateral ratio = %d, want 30000", cfg.CollateralRatioBps)
	}
	if cfg.LastAccrual != 2000 {
		t.Errorf("last accrual = %d, want 2000 after overwrite", cfg.LastAccrual)
	}
}

func TestAddCurrency_RejectsBadRatios(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*state.CurrencyConfig)
	}{
		{"collateral ratio below 100%", func(c *state.CurrencyConfig) { c.CollateralRatioBps = 9_999 }},
		{"threshold below 100%", func(c *state.CurrencyConfig) { c.LiquidationThresholdBps = 9_000 }},
		{"threshold above collateral ratio", func(c *state.CurrencyConfig) { c.LiquidationThresholdBps = 25_000 }},
		{"max rate below min rate", func(c *state.CurrencyConfig) { c.MaxRateBps = 50 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := state.NewCurrencyRegistry()
			cfg := testConfig()
			tc.mutate(cfg)
			err := reg.AddCurrency(cfg, 0)
			if !errors.Is(err, state.ErrConfiguration) {
				t.Errorf("got %v, want configuration error", err)
			}
		})
	}
}

func TestUpdateRiskParams_PreservesIndex(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 1000); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	cfg, _ := reg.Get("BOB")
	cfg.BorrowIndex = new(big.Int).Add(fpmath.Ray, big.NewInt(42))

	if err := reg.UpdateRiskParams("BOB", 25_000, 16_000, 600, 100, 6_000, 8_000); err != nil {
		t.Fatalf("UpdateRiskParams: %v", err)
	}
	cfg, _ = reg.Get("BOB")
	if cfg.CollateralRatioBps != 25_000 {
		t.Errorf("collateral ratio = %d, want 25000", cfg.CollateralRatioBps)
	}
	want := new(big.Int).Add(fpmath.Ray, big.NewInt(42))
	if cfg.BorrowIndex.Cmp(want) != 0 {
		t.Errorf("index changed on risk param update: %s", cfg.BorrowIndex)
	}
}

func TestUpdateRiskParams_InvalidLeavesConfigUntouched(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 1000); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	err := reg.UpdateRiskParams("BOB", 20_000, 25_000, 500, 100, 5_000, 10_000)
	if !errors.Is(err, state.ErrConfiguration) {
		t.Fatalf("got %v, want configuration error", err)
	}
	cfg, _ := reg.Get("BOB")
	if cfg.LiquidationThresholdBps != 15_000 {
		t.Errorf("threshold = %d, want original 15000", cfg.LiquidationThresholdBps)
	}
}

func TestGet_UnknownCurrency(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if _, err := reg.Get("XYZ"); !errors.Is(err, state.ErrConfiguration) {
		t.Errorf("got %v, want configuration error", err)
	}
}

func TestSupportedTokens(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	reg.SetSupportedToken("USDT", true)
	if !reg.IsSupportedToken("USDT") {
		t.Error("USDT should be supported")
	}
	reg.SetSupportedToken("USDT", false)
	if reg.IsSupportedToken("USDT") {
		t.Error("USDT should no longer be supported")
	}
}

func TestBorrowRate_BaseWhenNoSnapshot(t *testing.T) {
	cfg := testConfig()
	rate := state.BorrowRate(cfg, wad(12))
	want := big.NewRat(500, 10_000)
	if rate.Cmp(want) != 0 {
		t.Errorf("rate = %s, want %s", rate, want)
	}
}

func TestBorrowRate_DepreciationRaisesRate(t *testing.T) {
	cfg := testConfig()
	cfg.PriceSnapshot = wad(10)
	// 10% more units per USD, sensitivity 100% -> base 5% + 10% = 15%.
	rate := state.BorrowRate(cfg, wad(11))
	want := big.NewRat(15, 100)
	if rate.Cmp(want) != 0 {
		t.Errorf("rate = %s, want %s", rate, want)
	}
}

func TestBorrowRate_ClampsToBounds(t *testing.T) {
	cfg := testConfig()
	cfg.PriceSnapshot = wad(10)

	high := state.BorrowRate(cfg, wad(20)) // deviation +100% blows past max
	if want := big.NewRat(5_000, 10_000); high.Cmp(want) != 0 {
		t.Errorf("high rate = %s, want clamped %s", high, want)
	}

	low := state.BorrowRate(cfg, wad(5)) // deviation -50% under the floor
	if want := big.NewRat(100, 10_000); low.Cmp(want) != 0 {
		t.Errorf("low rate = %s, want clamped %s", low, want)
	}
}

func TestAccrue_ZeroElapsedIsNoOp(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 1000); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	cfg, _ := reg.Get("BOB")
	cfg.PriceSnapshot = wad(10)
	if err := state.Accrue(cfg, wad(12), 1000); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if cfg.BorrowIndex.Cmp(fpmath.Ray) != 0 {
		t.Errorf("index = %s, want unchanged ray", cfg.BorrowIndex)
	}
	if cfg.PriceSnapshot.Cmp(wad(10)) != 0 {
		t.Errorf("snapshot = %s, want untouched 10e18", cfg.PriceSnapshot)
	}
}

func TestAccrue_FullYearAtBaseRate(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 0); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	cfg, _ := reg.Get("BOB")
	if err := state.Accrue(cfg, wad(12), yearSeconds); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	// No snapshot at first accrual, so base rate 5% applies: index = 1.05 ray.
	want, _ := new(big.Int).SetString("1050000000000000000000000000", 10)
	if cfg.BorrowIndex.Cmp(want) != 0 {
		t.Errorf("index = %s, want %s", cfg.BorrowIndex, want)
	}
	if cfg.LastAccrual != yearSeconds {
		t.Errorf("last accrual = %d", cfg.LastAccrual)
	}
}

func TestAccrue_NoPrice(t *testing.T) {
	reg := state.NewCurrencyRegistry()
	if err := reg.AddCurrency(testConfig(), 0); err != nil {
		t.Fatalf("AddCurrency: %v", err)
	}
	cfg, _ := reg.Get("BOB")
	if err := state.Accrue(cfg, nil, 100); !errors.Is(err, state.ErrOracle) {
		t.Errorf("got %v, want oracle error", err)
	}
}

func TestPriceBook_StaleSequenceIgnored(t *testing.T) {
	pb := state.NewPriceBook()
	if !pb.Update("oracle:BOB", wad(12), 5, 100) {
		t.Fatal("first update rejected")
	}
	if pb.Update("oracle:BOB", wad(13), 5, 200) {
		t.Error("equal sequence should be ignored")
	}
	if pb.Update("oracle:BOB", wad(13), 4, 200) {
		t.Error("lower sequence should be ignored")
	}
	p, err := pb.Latest("oracle:BOB")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if p.Price.Cmp(wad(12)) != 0 {
		t.Errorf("price = %s, want 12e18", p.Price)
	}
}

func TestPriceBook_Unobserved(t *testing.T) {
	pb := state.NewPriceBook()
	if _, err := pb.Latest("oracle:ARS"); !errors.Is(err, state.ErrOracle) {
		t.Errorf("got %v, want oracle error", err)
	}
}

func TestCollateralTransitions(t *testing.T) {
	cb := state.NewCollateralBook()
	id := uuid.New()
	p, err := cb.Open(id, uuid.New(), "USDT", wad(100), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Status != state.CollateralActive {
		t.Fatalf("status = %s, want ACTIVE", p.Status)
	}
	if err := p.Transition(state.CollateralLockedInLoan, 20); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := p.Transition(state.CollateralActive, 30); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := p.Transition(state.CollateralWithdrawn, 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := p.Transition(state.CollateralActive, 50); !errors.Is(err, state.ErrState) {
		t.Errorf("revive withdrawn: got %v, want state error", err)
	}
}

func TestCollateralBook_OneLivePositionPerUserToken(t *testing.T) {
	cb := state.NewCollateralBook()
	userID := uuid.New()
	first, err := cb.Open(uuid.New(), userID, "USDT", wad(100), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := cb.Open(uuid.New(), userID, "USDT", wad(50), 20); !errors.Is(err, state.ErrState) {
		t.Errorf("second live position for (user, token): got %v, want state error", err)
	}

	live, ok := cb.Live(userID, "USDT")
	if !ok || live.ID != first.ID {
		t.Fatalf("Live(user, USDT) = %v, %v; want first position", live, ok)
	}

	// A different token opens its own position.
	if _, err := cb.Open(uuid.New(), userID, "USDC", wad(100), 30); err != nil {
		t.Fatalf("Open distinct token: %v", err)
	}

	// Once withdrawn, the slot frees up.
	if err := first.Transition(state.CollateralWithdrawn, 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, ok := cb.Live(userID, "USDT"); ok {
		t.Error("withdrawn position still reported live")
	}
	if _, err := cb.Open(uuid.New(), userID, "USDT", wad(100), 50); err != nil {
		t.Fatalf("reopen after withdrawal: %v", err)
	}
}

func TestDebtBook_OneLiveDebtPerUserCurrency(t *testing.T) {
	db := state.NewDebtBook()
	userID := uuid.New()
	collateralID := uuid.New()
	first, err := db.Open(uuid.New(), userID, "BOB", collateralID, wad(100), fpmath.Ray, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := db.Open(uuid.New(), userID, "BOB", collateralID, wad(50), fpmath.Ray, 20); !errors.Is(err, state.ErrState) {
		t.Errorf("second live debt for (user, currency): got %v, want state error", err)
	}

	live, ok := db.Live(userID, "BOB")
	if !ok || live.ID != first.ID {
		t.Fatalf("Live(user, BOB) = %v, %v; want first debt", live, ok)
	}
	byCol, ok := db.LiveByCollateral(collateralID)
	if !ok || byCol.ID != first.ID {
		t.Fatalf("LiveByCollateral = %v, %v; want first debt", byCol, ok)
	}

	// A repaid debt frees the slot.
	if err := first.Transition(state.DebtProcessed, 30); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := first.Transition(state.DebtRepaid, 40); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if _, ok := db.Live(userID, "BOB"); ok {
		t.Error("repaid debt still reported live")
	}
	if _, err := db.Open(uuid.New(), userID, "BOB", collateralID, wad(100), fpmath.Ray, 50); err != nil {
		t.Fatalf("reopen after repayment: %v", err)
	}
}

func TestDebtTransitions(t *testing.T) {
	db := state.NewDebtBook()
	d, err := db.Open(uuid.New(), uuid.New(), "BOB", uuid.New(), wad(1000), fpmath.Ray, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Transition(state.DebtRepaid, 20); !errors.Is(err, state.ErrState) {
		t.Errorf("pending -> repaid: got %v, want state error", err)
	}
	if err := d.Transition(state.DebtProcessed, 20); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := d.Transition(state.DebtCanceled, 30); !errors.Is(err, state.ErrState) {
		t.Errorf("processed -> canceled: got %v, want state error", err)
	}
	if err := d.Transition(state.DebtRepaid, 30); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !d.Status.Terminal() {
		t.Error("repaid should be terminal")
	}
}

func TestDebtOwed_GrowsWithIndex(t *testing.T) {
	db := state.NewDebtBook()
	d, err := db.Open(uuid.New(), uuid.New(), "BOB", uuid.New(), wad(1000), fpmath.Ray, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Index grows 5%: owed becomes 1050.
	index, _ := new(big.Int).SetString("1050000000000000000000000000", 10)
	owed, err := d.Owed(index)
	if err != nil {
		t.Fatalf("Owed: %v", err)
	}
	if owed.Cmp(wad(1050)) != 0 {
		t.Errorf("owed = %s, want 1050e18", owed)
	}

	d.TotalRepaid = wad(300)
	owed, err = d.Owed(index)
	if err != nil {
		t.Fatalf("Owed after repay: %v", err)
	}
	if owed.Cmp(wad(750)) != 0 {
		t.Errorf("owed = %s, want 750e18", owed)
	}
}

func TestIndexVenue_RoundTrip(t *testing.T) {
	v := state.NewIndexVenue()
	shares, err := v.Deposit("USDT", wad(100))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if shares.Cmp(wad(100)) != 0 {
		t.Errorf("shares at identity rate = %s, want 100e18", shares)
	}

	// Rate 1.1: shares are worth 10% more on the way out.
	rate, _ := new(big.Int).SetString("1100000000000000000000000000", 10)
	if err := v.SetExchangeRate("USDT", rate); err != nil {
		t.Fatalf("SetExchangeRate: %v", err)
	}
	out, err := v.Withdraw("USDT", shares)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if out.Cmp(wad(110)) != 0 {
		t.Errorf("withdrawal = %s, want 110e18", out)
	}
}
