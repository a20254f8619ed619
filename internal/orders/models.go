package orders

import (
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/shopspring/decimal"
)

// RolloverRequest describes closing the current option and opening a new one
// on the same ticker and option type.
type RolloverRequest struct {
	Ticker            string          `json:"ticker"`
	CurrentOptionType string          `json:"current_option_type"`
	CurrentStrike     decimal.Decimal `json:"current_strike"`
	CurrentExpiration string          `json:"current_expiration"`
	NewStrike         decimal.Decimal `json:"new_strike"`
	NewExpiration     string          `json:"new_expiration"`
	Quantity          int             `json:"quantity"`

	// Closing leg, limit price per contract
	CurrentOrderType  string          `json:"current_order_type"`
	CurrentLimitPrice decimal.Decimal `json:"current_limit_price"`
	CurrentBid        decimal.Decimal `json:"current_bid"`
	CurrentAsk        decimal.Decimal `json:"current_ask"`

	// Opening leg, limit price per share
	NewOrderType  string          `json:"new_order_type"`
	NewLimitPrice decimal.Decimal `json:"new_limit_price"`
	NewBid        decimal.Decimal `json:"new_bid"`
	NewAsk        decimal.Decimal `json:"new_ask"`
}

// RolloverResult holds the ids of the two legs written by CreateRollover
type RolloverResult struct {
	BuyOrderID  uint   `json:"buy_order_id"`
	SellOrderID uint   `json:"sell_order_id"`
	Message     string `json:"message"`
}

type CancelResult struct {
	OrderID       uint              `json:"order_id"`
	Status        types.OrderStatus `json:"status"`
	VenueCanceled bool              `json:"venue_canceled"`
	Note          string            `json:"note"`
}

// CheckResult summarizes one CheckOrders pass
type CheckResult struct {
	Checked   int          `json:"checked"`
	Completed []uint       `json:"completed"`
	Canceled  []uint       `json:"canceled"`
	Open      []uint       `json:"open"`
	Errors    []CheckError `json:"errors,omitempty"`
}

type CheckError struct {
	OrderID uint   `json:"order_id"`
	Error   string `json:"error"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}
