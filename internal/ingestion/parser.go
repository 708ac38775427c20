package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/raptor0929/torito/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the lending core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "SupplyRequested":
		return parseSupplyRequested(raw.Data)
	case "WithdrawRequested":
		return parseWithdrawRequested(raw.Data)
	case "BorrowRequested":
		return parseBorrowRequested(raw.Data)
	case "BorrowProcessed":
		return parseBorrowProcessed(raw.Data)
	case "BorrowCanceled":
		return parseBorrowCanceled(raw.Data)
	case "RepayRequested":
		return parseRepayRequested(raw.Data)
	case "LiquidateRequested":
		return parseLiquidateRequested(raw.Data)
	case "PriceUpdated":
		return parsePriceUpdated(raw.Data)
	case "VenueRateUpdated":
		return parseVenueRateUpdated(raw.Data)
	case "CurrencyAdded":
		return parseCurrencyAdded(raw.Data)
	case "RiskParamsUpdated":
		return parseRiskParamsUpdated(raw.Data)
	case "OracleUpdated":
		return parseOracleUpdated(raw.Data)
	case "TokenSupportSet":
		return parseTokenSupportSet(raw.Data)
	case "PauseSet":
		return parsePauseSet(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// parseBigInt decodes an 18-decimal base-unit amount sent as a decimal
// string. Amounts never travel as JSON numbers: they exceed float64
// precision.
func parseBigInt(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("parse %s: empty", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: invalid decimal string %q", field, s)
	}
	return v, nil
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type supplyJSON struct {
	PositionID string `json:"position_id"`
	UserID     string `json:"user_id"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Sequence   int64  `json:"sequence"`
	Timestamp  int64  `json:"timestamp"`
}

func parseSupplyRequested(data []byte) (*event.SupplyRequested, error) {
	var j supplyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SupplyRequested: %w", err)
	}
	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return nil, fmt.Errorf("parse position_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.SupplyRequested{
		PositionID: positionID,
		UserID:     userID,
		Token:      j.Token,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  j.Timestamp,
	}, nil
}

type withdrawJSON struct {
	RequestID  string `json:"request_id"`
	PositionID string `json:"position_id"`
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	Sequence   int64  `json:"sequence"`
	Timestamp  int64  `json:"timestamp"`
}

func parseWithdrawRequested(data []byte) (*event.WithdrawRequested, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return nil, fmt.Errorf("parse position_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.WithdrawRequested{
		RequestID:  requestID,
		PositionID: positionID,
		UserID:     userID,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  j.Timestamp,
	}, nil
}

type borrowRequestJSON struct {
	DebtID       string `json:"debt_id"`
	UserID       string `json:"user_id"`
	Currency     string `json:"currency"`
	CollateralID string `json:"collateral_id"`
	Amount       string `json:"amount"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseBorrowRequested(data []byte) (*event.BorrowRequested, error) {
	var j borrowRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BorrowRequested: %w", err)
	}
	debtID, err := uuid.Parse(j.DebtID)
	if err != nil {
		return nil, fmt.Errorf("parse debt_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	collateralID, err := uuid.Parse(j.CollateralID)
	if err != nil {
		return nil, fmt.Errorf("parse collateral_id: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.BorrowRequested{
		DebtID:       debtID,
		UserID:       userID,
		CurrencyID:   j.Currency,
		CollateralID: collateralID,
		Amount:       amount,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
	}, nil
}

type borrowProcessedJSON struct {
	DebtID    string `json:"debt_id"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseBorrowProcessed(data []byte) (*event.BorrowProcessed, error) {
	var j borrowProcessedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BorrowProcessed: %w", err)
	}
	debtID, err := uuid.Parse(j.DebtID)
	if err != nil {
		return nil, fmt.Errorf("parse debt_id: %w", err)
	}
	return &event.BorrowProcessed{
		DebtID:    debtID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type borrowCanceledJSON struct {
	DebtID    string `json:"debt_id"`
	Reason    string `json:"reason,omitempty"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseBorrowCanceled(data []byte) (*event.BorrowCanceled, error) {
	var j borrowCanceledJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BorrowCanceled: %w", err)
	}
	debtID, err := uuid.Parse(j.DebtID)
	if err != nil {
		return nil, fmt.Errorf("parse debt_id: %w", err)
	}
	return &event.BorrowCanceled{
		DebtID:    debtID,
		Reason:    j.Reason,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type repayJSON struct {
	RequestID string `json:"request_id"`
	DebtID    string `json:"debt_id"`
	Amount    string `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseRepayRequested(data []byte) (*event.RepayRequested, error) {
	var j repayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RepayRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	debtID, err := uuid.Parse(j.DebtID)
	if err != nil {
		return nil, fmt.Errorf("parse debt_id: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.RepayRequested{
		RequestID: requestID,
		DebtID:    debtID,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type liquidateJSON struct {
	RequestID  string `json:"request_id"`
	DebtID     string `json:"debt_id"`
	Liquidator string `json:"liquidator"`
	Sequence   int64  `json:"sequence"`
	Timestamp  int64  `json:"timestamp"`
}

func parseLiquidateRequested(data []byte) (*event.LiquidateRequested, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidateRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	debtID, err := uuid.Parse(j.DebtID)
	if err != nil {
		return nil, fmt.Errorf("parse debt_id: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	return &event.LiquidateRequested{
		RequestID:  requestID,
		DebtID:     debtID,
		Liquidator: liquidator,
		Sequence:   j.Sequence,
		Timestamp:  j.Timestamp,
	}, nil
}

type priceJSON struct {
	Feed      string `json:"feed"`
	Price     string `json:"price"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parsePriceUpdated(data []byte) (*event.PriceUpdated, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdated: %w", err)
	}
	price, err := parseBigInt("price", j.Price)
	if err != nil {
		return nil, err
	}
	return &event.PriceUpdated{
		Feed:      j.Feed,
		Price:     price,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type venueRateJSON struct {
	Token     string `json:"token"`
	Rate      string `json:"rate"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseVenueRateUpdated(data []byte) (*event.VenueRateUpdated, error) {
	var j venueRateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VenueRateUpdated: %w", err)
	}
	rate, err := parseBigInt("rate", j.Rate)
	if err != nil {
		return nil, err
	}
	return &event.VenueRateUpdated{
		Token:     j.Token,
		Rate:      rate,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type currencyAddedJSON struct {
	Currency                string `json:"currency"`
	PriceFeed               string `json:"price_feed"`
	CollateralRatioBps      int64  `json:"collateral_ratio_bps"`
	LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
	BaseRateBps             int64  `json:"base_rate_bps"`
	MinRateBps              int64  `json:"min_rate_bps"`
	MaxRateBps              int64  `json:"max_rate_bps"`
	SensitivityBps          int64  `json:"sensitivity_bps"`
	Sequence                int64  `json:"sequence"`
	Timestamp               int64  `json:"timestamp"`
}

func parseCurrencyAdded(data []byte) (*event.CurrencyAdded, error) {
	var j currencyAddedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CurrencyAdded: %w", err)
	}
	return &event.CurrencyAdded{
		CurrencyID:              j.Currency,
		PriceFeed:               j.PriceFeed,
		CollateralRatioBps:      j.CollateralRatioBps,
		LiquidationThresholdBps: j.LiquidationThresholdBps,
		BaseRateBps:             j.BaseRateBps,
		MinRateBps:              j.MinRateBps,
		MaxRateBps:              j.MaxRateBps,
		SensitivityBps:          j.SensitivityBps,
		Sequence:                j.Sequence,
		Timestamp:               j.Timestamp,
	}, nil
}

type riskParamsJSON struct {
	Currency                string `json:"currency"`
	CollateralRatioBps      int64  `json:"collateral_ratio_bps"`
	LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
	BaseRateBps             int64  `json:"base_rate_bps"`
	MinRateBps              int64  `json:"min_rate_bps"`
	MaxRateBps              int64  `json:"max_rate_bps"`
	SensitivityBps          int64  `json:"sensitivity_bps"`
	Sequence                int64  `json:"sequence"`
	Timestamp               int64  `json:"timestamp"`
}

func parseRiskParamsUpdated(data []byte) (*event.RiskParamsUpdated, error) {
	var j riskParamsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RiskParamsUpdated: %w", err)
	}
	return &event.RiskParamsUpdated{
		CurrencyID:              j.Currency,
		CollateralRatioBps:      j.CollateralRatioBps,
		LiquidationThresholdBps: j.LiquidationThresholdBps,
		BaseRateBps:             j.BaseRateBps,
		MinRateBps:              j.MinRateBps,
		MaxRateBps:              j.MaxRateBps,
		SensitivityBps:          j.SensitivityBps,
		Sequence:                j.Sequence,
		Timestamp:               j.Timestamp,
	}, nil
}

type oracleUpdatedJSON struct {
	Currency  string `json:"currency"`
	PriceFeed string `json:"price_feed"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseOracleUpdated(data []byte) (*event.OracleUpdated, error) {
	var j oracleUpdatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OracleUpdated: %w", err)
	}
	return &event.OracleUpdated{
		CurrencyID: j.Currency,
		PriceFeed:  j.PriceFeed,
		Sequence:   j.Sequence,
		Timestamp:  j.Timestamp,
	}, nil
}

type tokenSupportJSON struct {
	Token     string `json:"token"`
	Supported bool   `json:"supported"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseTokenSupportSet(data []byte) (*event.TokenSupportSet, error) {
	var j tokenSupportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokenSupportSet: %w", err)
	}
	return &event.TokenSupportSet{
		Token:     j.Token,
		Supported: j.Supported,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type pauseJSON struct {
	Paused    bool  `json:"paused"`
	Sequence  int64 `json:"sequence"`
	Timestamp int64 `json:"timestamp"`
}

func parsePauseSet(data []byte) (*event.PauseSet, error) {
	var j pauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PauseSet: %w", err)
	}
	return &event.PauseSet{
		Paused:    j.Paused,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}
