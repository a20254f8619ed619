package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the right of an option contract
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// Action is the side of an option leg
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCanceled   OrderStatus = "canceled"
)

// ExpirationLayout is the layout of Order.Expiration and Position.Expiration
const ExpirationLayout = "20060102"

// ParseOptionType accepts "CALL"/"PUT" in any case, plus the "C"/"P" shorthands
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return OptionTypeCall, true
	case "PUT", "P":
		return OptionTypePut, true
	}
	return "", false
}

// ParseAction accepts "BUY"/"SELL" in any case
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy, true
	case "SELL":
		return ActionSell, true
	}
	return "", false
}

// ParseOrderStatus normalizes a status string. The british spelling
// "cancelled" found in older rows is folded into StatusCanceled.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "processing":
		return StatusProcessing, true
	case "completed":
		return StatusCompleted, true
	case "canceled", "cancelled":
		return StatusCanceled, true
	}
	return "", false
}

// Terminal reports whether no transition may leave the status
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Order is one option leg in the ledger
type Order struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp  time.Time       `gorm:"not null;index" json:"timestamp"`
	Ticker     string          `gorm:"not null;index" json:"ticker"`
	OptionType OptionType      `gorm:"not null" json:"option_type"`
	Action     Action          `gorm:"not null" json:"action"`
	Strike     decimal.Decimal `gorm:"type:numeric;not null" json:"strike"`
	Expiration string          `gorm:"not null" json:"expiration"` // YYYYMMDD
	Premium    decimal.Decimal `gorm:"type:numeric" json:"premium"`
	Quantity   int             `gorm:"default:1" json:"quantity"`
	Status     OrderStatus     `gorm:"default:pending;index" json:"status"`
	Executed   bool            `gorm:"default:false" json:"executed"`
	OrderType  string          `json:"order_type,omitempty"` // MARKET or LIMIT
	LimitPrice decimal.Decimal `gorm:"type:numeric" json:"limit_price"`

	// Price data
	Bid  decimal.Decimal `gorm:"type:numeric" json:"bid"`
	Ask  decimal.Decimal `gorm:"type:numeric" json:"ask"`
	Last decimal.Decimal `gorm:"type:numeric" json:"last"`

	// Greeks
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	ImpliedVolatility float64 `json:"implied_volatility"`

	// Market data
	OpenInterest int64 `json:"open_interest"`
	Volume       int64 `json:"volume"`
	IsMock       bool  `gorm:"default:false" json:"is_mock"`

	// Earnings projection, advisory only
	EarningsMaxContracts       int             `json:"earnings_max_contracts"`
	EarningsPremiumPerContract decimal.Decimal `gorm:"type:numeric" json:"earnings_premium_per_contract"`
	EarningsTotalPremium       decimal.Decimal `gorm:"type:numeric" json:"earnings_total_premium"`
	EarningsReturnOnCash       decimal.Decimal `gorm:"type:numeric" json:"earnings_return_on_cash"`
	EarningsReturnOnCapital    decimal.Decimal `gorm:"type:numeric" json:"earnings_return_on_capital"`

	// Execution data
	ExternalOrderID string          `json:"external_order_id"`
	ExternalStatus  string          `json:"external_status"`
	Filled          int             `json:"filled"`
	Remaining       int             `json:"remaining"`
	AvgFillPrice    decimal.Decimal `gorm:"type:numeric" json:"avg_fill_price"`

	IsRollover bool `gorm:"column:is_rollover;default:false;index" json:"is_rollover"`
}

// TableName keeps the table name stable across struct renames
func (Order) TableName() string {
	return "orders"
}

// ExecutionPatch lists the execution fields that a status update may merge.
// A nil field leaves the stored column untouched.
type ExecutionPatch struct {
	ExternalOrderID *string          `json:"external_order_id,omitempty"`
	ExternalStatus  *string          `json:"external_status,omitempty"`
	Filled          *int             `json:"filled,omitempty"`
	Remaining       *int             `json:"remaining,omitempty"`
	AvgFillPrice    *decimal.Decimal `json:"avg_fill_price,omitempty"`
	IsMock          *bool            `json:"is_mock,omitempty"`

	// Note is logged with the transition, it has no column.
	Note string `json:"note,omitempty"`
}

// Columns returns the column updates for the fields present in the patch
func (p *ExecutionPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p == nil {
		return cols
	}
	if p.ExternalOrderID != nil {
		cols["external_order_id"] = *p.ExternalOrderID
	}
	if p.ExternalStatus != nil {
		cols["external_status"] = *p.ExternalStatus
	}
	if p.Filled != nil {
		cols["filled"] = *p.Filled
	}
	if p.Remaining != nil {
		cols["remaining"] = *p.Remaining
	}
	if p.AvgFillPrice != nil {
		cols["avg_fill_price"] = *p.AvgFillPrice
	}
	if p.IsMock != nil {
		cols["is_mock"] = *p.IsMock
	}
	return cols
}

// RolloverPair links the BUY (close) and SELL (open) legs of an inferred rollover
type RolloverPair struct {
	BuyID  uint `json:"buy_id"`
	SellID uint `json:"sell_id"`
}
