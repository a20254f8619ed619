package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecurityType classifies a canonical position
type SecurityType string

const (
	SecurityStock   SecurityType = "STK"
	SecurityOption  SecurityType = "OPT"
	SecurityUnknown SecurityType = "UNKNOWN"
)

// Account is one brokerage account as listed by the provider
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	Institution string `json:"institution_name"`
}

// Holdings is the raw payload of the provider for one account. Entries are kept
// as decoded JSON because their shape differs between brokerages.
type Holdings struct {
	Balances        []interface{} `json:"balances"`
	Positions       []interface{} `json:"positions"`
	OptionPositions []interface{} `json:"option_positions"`
}

// Position is the canonical, provider agnostic holding
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"position"` // negative when short
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	SecurityType  SecurityType    `json:"security_type"`

	// Options only
	Expiration string          `json:"expiration,omitempty"`
	Strike     decimal.Decimal `json:"strike,omitempty"`
	OptionType OptionType      `json:"option_type,omitempty"`
}

// Snapshot is one point-in-time fetch of holdings. It is never mutated once
// built, a refresh replaces it as a whole.
type Snapshot struct {
	AccountID string        `json:"account_id"`
	FetchedAt time.Time     `json:"fetched_at"`
	Balances  []interface{} `json:"balances"`
	Positions []Position    `json:"positions"`
}
