package ingestion_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/raptor0929/torito/internal/event"
	"github.com/raptor0929/torito/internal/ingestion"
)

// Replay parses stored payloads with ParseRawEvent, so MarshalEvent must
// produce exactly the wire form the parser accepts.

func reparse(t *testing.T, evt event.Event, eventType string) event.Event {
	t.Helper()
	data, err := ingestion.MarshalEvent(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := ingestion.RawEvent{Subject: "test", Data: data, Timestamp: time.Now()}
	parsed, err := ingestion.ParseRawEvent(raw, eventType)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	return parsed
}

func TestMarshalBorrowRequested_RoundTrip(t *testing.T) {
	orig := &event.BorrowRequested{
		DebtID:       uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		UserID:       uuid.MustParse("660e8400-e29b-41d4-a716-446655440001"),
		CurrencyID:   "USDT",
		CollateralID: uuid.MustParse("770e8400-e29b-41d4-a716-446655440002"),
		Amount:       big.NewInt(5_000_000),
		Sequence:     12,
		Timestamp:    1_700_000_000,
	}

	parsed, ok := reparse(t, orig, "BorrowRequested").(*event.BorrowRequested)
	if !ok {
		t.Fatal("wrong type after round trip")
	}

	if parsed.DebtID != orig.DebtID {
		t.Errorf("debt id: got %s, want %s", parsed.DebtID, orig.DebtID)
	}
	if parsed.CollateralID != orig.CollateralID {
		t.Errorf("collateral id: got %s, want %s", parsed.CollateralID, orig.CollateralID)
	}
	if parsed.CurrencyID != "USDT" {
		t.Errorf("currency: got %s, want USDT", parsed.CurrencyID)
	}
	if parsed.Amount.Cmp(orig.Amount) != 0 {
		t.Errorf("amount: got %s, want %s", parsed.Amount, orig.Amount)
	}
	if parsed.Sequence != orig.Sequence || parsed.Timestamp != orig.Timestamp {
		t.Errorf("seq/ts: got %d/%d, want %d/%d",
			parsed.Sequence, parsed.Timestamp, orig.Sequence, orig.Timestamp)
	}
}

func TestMarshalWithdrawRequested_RoundTrip(t *testing.T) {
	orig := &event.WithdrawRequested{
		RequestID:  uuid.MustParse("990e8400-e29b-41d4-a716-446655440004"),
		PositionID: uuid.MustParse("aa0e8400-e29b-41d4-a716-446655440005"),
		UserID:     uuid.MustParse("660e8400-e29b-41d4-a716-446655440001"),
		Amount:     big.NewInt(750_000),
		Sequence:   14,
		Timestamp:  1_700_000_300,
	}

	parsed, ok := reparse(t, orig, "WithdrawRequested").(*event.WithdrawRequested)
	if !ok {
		t.Fatal("wrong type after round trip")
	}

	if parsed.RequestID != orig.RequestID || parsed.PositionID != orig.PositionID {
		t.Errorf("ids: got %s/%s, want %s/%s",
			parsed.RequestID, parsed.PositionID, orig.RequestID, orig.PositionID)
	}
	if parsed.Amount.Cmp(orig.Amount) != 0 {
		t.Errorf("amount: got %s, want %s", parsed.Amount, orig.Amount)
	}
}

func TestMarshalPriceUpdated_RoundTrip(t *testing.T) {
	price, _ := new(big.Int).SetString("6960000000000000000", 10)
	orig := &event.PriceUpdated{
		Feed:      "feed:bob-usd",
		Price:     price,
		Sequence:  99,
		Timestamp: 1_700_000_100,
	}

	parsed, ok := reparse(t, orig, "PriceUpdated").(*event.PriceUpdated)
	if !ok {
		t.Fatal("wrong type after round trip")
	}

	if parsed.Feed != orig.Feed {
		t.Errorf("feed: got %s, want %s", parsed.Feed, orig.Feed)
	}
	if parsed.Price.Cmp(orig.Price) != 0 {
		t.Errorf("price: got %s, want %s", parsed.Price, orig.Price)
	}
	if parsed.Sequence != orig.Sequence {
		t.Errorf("sequence: got %d, want %d", parsed.Sequence, orig.Sequence)
	}
}

func TestMarshalRepayRequested_RoundTrip(t *testing.T) {
	orig := &event.RepayRequested{
		RequestID: uuid.MustParse("880e8400-e29b-41d4-a716-446655440003"),
		DebtID:    uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Amount:    big.NewInt(1_250_000),
		Sequence:  13,
		Timestamp: 1_700_000_200,
	}

	parsed, ok := reparse(t, orig, "RepayRequested").(*event.RepayRequested)
	if !ok {
		t.Fatal("wrong type after round trip")
	}

	if parsed.RequestID != orig.RequestID || parsed.DebtID != orig.DebtID {
		t.Errorf("ids: got %s/%s, want %s/%s",
			parsed.RequestID, parsed.DebtID, orig.RequestID, orig.DebtID)
	}
	if parsed.Amount.Cmp(orig.Amount) != 0 {
		t.Errorf("amount: got %s, want %s", parsed.Amount, orig.Amount)
	}
}
