package holdings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/brokerage"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/positions"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 60 * time.Second
	DefaultTimeout = 15 * time.Second
)

type Config struct {
	// TTL is how long a snapshot is served before the provider is asked again
	TTL time.Duration
	// Timeout bounds one provider refresh
	Timeout time.Duration
	// AccountID pins the account. When empty the first listed account is used.
	AccountID string
}

// Cache holds the holdings snapshot of the primary account. Callers within the
// TTL share one snapshot, and concurrent misses share one provider call.
type Cache struct {
	provider brokerage.Provider
	cfg      Config
	slot     *cache.Cache
	group    singleflight.Group
	now      func() time.Time
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *types.Snapshot

	accountMu sync.Mutex
	accountID string
}

func New(provider brokerage.Provider, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Cache{
		provider:  provider,
		cfg:       cfg,
		slot:      cache.New(cfg.TTL, 2*cfg.TTL),
		now:       time.Now,
		logger:    log.With().Str("component", "holdings_cache").Logger(),
		accountID: cfg.AccountID,
	}
}

// Holdings returns the snapshot of the primary account, refreshing it from the
// provider once the cached one is older than the TTL. A failed refresh returns
// an error wrapping types.ErrProviderUnavailable and keeps the previous
// snapshot available through Last.
func (c *Cache) Holdings(ctx context.Context) (*types.Snapshot, error) {
	accountID, err := c.PrimaryAccountID(ctx)
	if err != nil {
		metrics.HoldingsCacheRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	if v, ok := c.slot.Get(accountID); ok {
		metrics.HoldingsCacheRequests.WithLabelValues("hit").Inc()
		c.logger.Debug().Str("account_id", accountID).Msg("returning cached holdings")
		return v.(*types.Snapshot), nil
	}
	metrics.HoldingsCacheRequests.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(accountID, func() (interface{}, error) {
		return c.refresh(ctx, accountID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", types.ErrProviderUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.HoldingsCacheRequests.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		return res.Val.(*types.Snapshot), nil
	}
}

// refresh fetches and publishes a new snapshot. It is detached from the
// caller's cancellation because other callers may be waiting on it.
func (c *Cache) refresh(ctx context.Context, accountID string) (*types.Snapshot, error) {
	if v, ok := c.slot.Get(accountID); ok {
		return v.(*types.Snapshot), nil
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	c.logger.Debug().Str("account_id", accountID).Msg("fetching fresh holdings")
	raw, err := c.provider.GetHoldings(rctx, accountID)
	if err != nil {
		c.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to fetch holdings")
		return nil, fmt.Errorf("%w: %w", types.ErrProviderUnavailable, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty holdings for account %s", types.ErrProviderUnavailable, accountID)
	}

	snapshot := &types.Snapshot{
		AccountID: accountID,
		FetchedAt: c.now().UTC(),
		Balances:  raw.Balances,
		Positions: positions.Normalize(raw),
	}

	c.slot.Set(accountID, snapshot, cache.DefaultExpiration)
	c.mu.Lock()
	c.last = snapshot
	c.mu.Unlock()

	c.logger.Info().
		Str("account_id", accountID).
		Int("positions", len(snapshot.Positions)).
		Msg("holdings refreshed")
	return snapshot, nil
}

// PrimaryAccountID returns the configured account, or the first account the
// provider lists. The answer is kept for the life of the process.
func (c *Cache) PrimaryAccountID(ctx context.Context) (string, error) {
	c.accountMu.Lock()
	defer c.accountMu.Unlock()

	if c.accountID != "" {
		return c.accountID, nil
	}

	lctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	accounts, err := c.provider.ListAccounts(lctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list accounts")
		return "", fmt.Errorf("%w: %w", types.ErrProviderUnavailable, err)
	}
	if len(accounts) == 0 || accounts[0].ID == "" {
		return "", fmt.Errorf("%w: no brokerage accounts found", types.ErrProviderUnavailable)
	}

	c.accountID = accounts[0].ID
	c.logger.Info().Str("account_id", c.accountID).Msg("using primary account")
	return c.accountID, nil
}

// Last returns the most recent successful snapshot, however old, or nil
func (c *Cache) Last() *types.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Invalidate drops the cached snapshot so the next call refreshes it
func (c *Cache) Invalidate() {
	c.slot.Flush()
}
