package event

import (
	"fmt"
)

// CurrencyAdded registers (or fully replaces) a synthetic currency and its
// risk configuration. Ratios and rates are basis points.
type CurrencyAdded struct {
	CurrencyID              string
	PriceFeed               string
	CollateralRatioBps      int64
	LiquidationThresholdBps int64
	BaseRateBps             int64
	MinRateBps              int64
	MaxRateBps              int64
	SensitivityBps          int64
	Sequence                int64
	Timestamp               int64
}

func (c *CurrencyAdded) IdempotencyKey() string {
	return fmt.Sprintf("currency_added:%s:%d", c.CurrencyID, c.Sequence)
}

func (c *CurrencyAdded) EventType() EventType {
	return EventTypeCurrencyAdded
}

func (c *CurrencyAdded) Currency() *string {
	s := c.CurrencyID
	return &s
}

func (c *CurrencyAdded) SourceSequence() int64 {
	return c.Sequence
}

// RiskParamsUpdated mutates ratio and rate parameters of an existing
// currency without touching its borrow index.
type RiskParamsUpdated struct {
	CurrencyID              string
	CollateralRatioBps      int64
	LiquidationThresholdBps int64
	BaseRateBps             int64
	MinRateBps              int64
	MaxRateBps              int64
	SensitivityBps          int64
	Sequence                int64
	Timestamp               int64
}

func (r *RiskParamsUpdated) IdempotencyKey() string {
	return fmt.Sprintf("risk_params:%s:%d", r.CurrencyID, r.Sequence)
}

func (r *RiskParamsUpdated) EventType() EventType {
	return EventTypeRiskParamsUpdated
}

func (r *RiskParamsUpdated) Currency() *string {
	s := r.CurrencyID
	return &s
}

func (r *RiskParamsUpdated) SourceSequence() int64 {
	return r.Sequence
}

// OracleUpdated repoints a currency at a new price feed.
type OracleUpdated struct {
	CurrencyID string
	PriceFeed  string
	Sequence   int64
	Timestamp  int64
}

func (o *OracleUpdated) IdempotencyKey() string {
	return fmt.Sprintf("oracle_updated:%s:%d", o.CurrencyID, o.Sequence)
}

func (o *OracleUpdated) EventType() EventType {
	return EventTypeOracleUpdated
}

func (o *OracleUpdated) Currency() *string {
	s := o.CurrencyID
	return &s
}

func (o *OracleUpdated) SourceSequence() int64 {
	return o.Sequence
}

// TokenSupportSet adds or removes a collateral token from the allow-list.
type TokenSupportSet struct {
	Token     string
	Supported bool
	Sequence  int64
	Timestamp int64
}

func (t *TokenSupportSet) IdempotencyKey() string {
	return fmt.Sprintf("token_support:%s:%d", t.Token, t.Sequence)
}

func (t *TokenSupportSet) EventType() EventType {
	return EventTypeTokenSupportSet
}

func (t *TokenSupportSet) Currency() *string {
	return nil
}

func (t *TokenSupportSet) SourceSequence() int64 {
	return t.Sequence
}

// PauseSet halts or resumes mutating operations. Admin and price events keep
// flowing while paused.
type PauseSet struct {
	Paused    bool
	Sequence  int64
	Timestamp int64
}

func (p *PauseSet) IdempotencyKey() string {
	return fmt.Sprintf("pause:%d", p.Sequence)
}

func (p *PauseSet) EventType() EventType {
	return EventTypePauseSet
}

func (p *PauseSet) Currency() *string {
	return nil
}

func (p *PauseSet) SourceSequence() int64 {
	return p.Sequence
}
