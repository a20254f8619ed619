package brokerage

import (
	"context"
	"errors"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

// ErrNotConfigured is returned when the provider credentials are missing
var ErrNotConfigured = errors.New("brokerage provider credentials are not configured")

// Provider is a source of account holdings
type Provider interface {
	// ListAccounts returns the accounts linked to the user, primary first
	ListAccounts(ctx context.Context) ([]types.Account, error)
	// GetHoldings returns the raw balances and positions of one account
	GetHoldings(ctx context.Context, accountID string) (*types.Holdings, error)
}
