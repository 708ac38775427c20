package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/raptor0929/torito/internal/event"
)

// MarshalEvent serializes a typed event back into its wire JSON. The
// durable event log stores this form so that replay can reuse
// ParseRawEvent unchanged.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.SupplyRequested:
		return json.Marshal(supplyJSON{
			PositionID: e.PositionID.String(),
			UserID:     e.UserID.String(),
			Token:      e.Token,
			Amount:     e.Amount.String(),
			Sequence:   e.Sequence,
			Timestamp:  e.Timestamp,
		})
	case *event.WithdrawRequested:
		return json.Marshal(withdrawJSON{
			RequestID:  e.RequestID.String(),
			PositionID: e.PositionID.String(),
			UserID:     e.UserID.String(),
			Amount:     e.Amount.String(),
			Sequence:   e.Sequence,
			Timestamp:  e.Timestamp,
		})
	case *event.BorrowRequested:
		return json.Marshal(borrowRequestJSON{
			DebtID:       e.DebtID.String(),
			UserID:       e.UserID.String(),
			Currency:     e.CurrencyID,
			CollateralID: e.CollateralID.String(),
			Amount:       e.Amount.String(),
			Sequence:     e.Sequence,
			Timestamp:    e.Timestamp,
		})
	case *event.BorrowProcessed:
		return json.Marshal(borrowProcessedJSON{
			DebtID:    e.DebtID.String(),
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.BorrowCanceled:
		return json.Marshal(borrowCanceledJSON{
			DebtID:    e.DebtID.String(),
			Reason:    e.Reason,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.RepayRequested:
		return json.Marshal(repayJSON{
			RequestID: e.RequestID.String(),
			DebtID:    e.DebtID.String(),
			Amount:    e.Amount.String(),
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.LiquidateRequested:
		return json.Marshal(liquidateJSON{
			RequestID:  e.RequestID.String(),
			DebtID:     e.DebtID.String(),
			Liquidator: e.Liquidator.String(),
			Sequence:   e.Sequence,
			Timestamp:  e.Timestamp,
		})
	case *event.PriceUpdated:
		return json.Marshal(priceJSON{
			Feed:      e.Feed,
			Price:     e.Price.String(),
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.VenueRateUpdated:
		return json.Marshal(venueRateJSON{
			Token:     e.Token,
			Rate:      e.Rate.String(),
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.CurrencyAdded:
		return json.Marshal(currencyAddedJSON{
			Currency:                e.CurrencyID,
			PriceFeed:               e.PriceFeed,
			CollateralRatioBps:      e.CollateralRatioBps,
			LiquidationThresholdBps: e.LiquidationThresholdBps,
			BaseRateBps:             e.BaseRateBps,
			MinRateBps:              e.MinRateBps,
			MaxRateBps:              e.MaxRateBps,
			SensitivityBps:          e.SensitivityBps,
			Sequence:                e.Sequence,
			Timestamp:               e.Timestamp,
		})
	case *event.RiskParamsUpdated:
		return json.Marshal(riskParamsJSON{
			Currency:                e.CurrencyID,
			CollateralRatioBps:      e.CollateralRatioBps,
			LiquidationThresholdBps: e.LiquidationThresholdBps,
			BaseRateBps:             e.BaseRateBps,
			MinRateBps:              e.MinRateBps,
			MaxRateBps:              e.MaxRateBps,
			SensitivityBps:          e.SensitivityBps,
			Sequence:                e.Sequence,
			Timestamp:               e.Timestamp,
		})
	case *event.OracleUpdated:
		return json.Marshal(oracleUpdatedJSON{
			Currency:  e.CurrencyID,
			PriceFeed: e.PriceFeed,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.TokenSupportSet:
		return json.Marshal(tokenSupportJSON{
			Token:     e.Token,
			Supported: e.Supported,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	case *event.PauseSet:
		return json.Marshal(pauseJSON{
			Paused:    e.Paused,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	default:
		return nil, fmt.Errorf("marshal: unknown event type %T", evt)
	}
}
