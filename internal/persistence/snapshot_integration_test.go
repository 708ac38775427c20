package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raptor0929/torito/internal/persistence"
	"github.com/raptor0929/torito/internal/testutil"
)

func setupDB(t *testing.T) (context.Context, *sql.DB, *persistence.SnapshotManager, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	migrator := persistence.NewMigrator(db, "../../migrations")
	require.NoError(t, migrator.Up(ctx))

	return ctx, db, persistence.NewSnapshotManager(db), func() {
		cancel()
		cleanup()
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx, _, mgr, teardown := setupDB(t)
	defer teardown()

	snap := &persistence.SnapshotData{
		Sequence:  42,
		StateHash: []byte{0x01, 0x02, 0x03},
		Balances: map[string]string{
			"system:liquidity:USDT": "1000000000000000000000",
			"user:3f2504e0-4f89-41d3-9a0c-0305e82c3301:collateral:USDC": "500000000000000000",
		},
		Currencies: map[string]persistence.CurrencySnap{
			"USDT": {
				Currency:                "USDT",
				PriceFeed:               "feed:usdt",
				CollateralRatioBps:      15000,
				LiquidationThresholdBps: 12000,
				BaseRateBps:             500,
				MinRateBps:              100,
				MaxRateBps:              2000,
				SensitivityBps:          10000,
				BorrowIndex:             "1000000000000000000000000000",
				LastAccrual:             1700000000,
				PriceSnapshot:           "1000000000000000000",
			},
		},
		SupportedTokens: map[string]bool{"USDC": true},
		Prices: map[string]persistence.PriceSnap{
			"feed:usdt": {Price: "1000000000000000000", Sequence: 7, Timestamp: 1700000000},
		},
		VenueRates:      map[string]string{"USDC": "1000000000000000000000000000"},
		Paused:          false,
		SequenceState:   map[string]int64{"feed:usdt": 8},
		IdempotencyKeys: []string{"k1", "k2"},
		CreatedAt:       time.Now(),
	}

	require.NoError(t, mgr.SaveSnapshot(ctx, snap))
	require.NoError(t, mgr.MarkVerified(ctx, snap.Sequence))

	loaded, err := mgr.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, snap.Sequence, loaded.Sequence)
	require.Equal(t, snap.StateHash, loaded.StateHash)
	require.Equal(t, snap.Balances, loaded.Balances)
	require.Equal(t, snap.Currencies, loaded.Currencies)
	require.Equal(t, snap.SupportedTokens, loaded.SupportedTokens)
	require.Equal(t, snap.Prices, loaded.Prices)
	require.Equal(t, snap.VenueRates, loaded.VenueRates)
	require.Equal(t, snap.SequenceState, loaded.SequenceState)
	require.Equal(t, snap.IdempotencyKeys, loaded.IdempotencyKeys)
}

func TestLoadLatestSnapshotIgnoresUnverified(t *testing.T) {
	ctx, _, mgr, teardown := setupDB(t)
	defer teardown()

	first := &persistence.SnapshotData{
		Sequence:  10,
		StateHash: []byte{0xaa},
		Balances:  map[string]string{},
		CreatedAt: time.Now(),
	}
	require.NoError(t, mgr.SaveSnapshot(ctx, first))
	require.NoError(t, mgr.MarkVerified(ctx, first.Sequence))

	second := &persistence.SnapshotData{
		Sequence:  20,
		StateHash: []byte{0xbb},
		Balances:  map[string]string{},
		CreatedAt: time.Now(),
	}
	require.NoError(t, mgr.SaveSnapshot(ctx, second))
	// second stays unverified

	loaded, err := mgr.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, int64(10), loaded.Sequence)
}

func TestLoadEventsFromReplaysInOrder(t *testing.T) {
	ctx, db, mgr, teardown := setupDB(t)
	defer teardown()

	writer := persistence.NewEventLogWriter(db, 10, time.Second)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	events := []persistence.EventRow{
		{Sequence: 0, EventType: "PriceUpdated", IdempotencyKey: "a", Payload: []byte(`{}`), StateHash: []byte{1}, PrevHash: []byte{0}, Timestamp: time.Now()},
		{Sequence: 1, EventType: "SupplyRequested", IdempotencyKey: "b", Payload: []byte(`{}`), StateHash: []byte{2}, PrevHash: []byte{1}, Timestamp: time.Now()},
		{Sequence: 2, EventType: "BorrowRequested", IdempotencyKey: "c", Payload: []byte(`{}`), StateHash: []byte{3}, PrevHash: []byte{2}, Timestamp: time.Now()},
	}
	require.NoError(t, writer.WriteEventBatch(ctx, events, tx))
	require.NoError(t, tx.Commit())

	loaded, err := mgr.LoadEventsFrom(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, int64(1), loaded[0].Sequence)
	require.Equal(t, int64(2), loaded[1].Sequence)
	require.Equal(t, "BorrowRequested", loaded[1].EventType)

	latest, err := mgr.GetLatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), latest)
}
