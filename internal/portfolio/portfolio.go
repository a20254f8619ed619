// Package portfolio serves the account summary, positions and weekly income
// computed from the cached holdings snapshot.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/positions"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/punkice3407/AllYouNeedIsWheel/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	pathBalanceType     = positions.MustCompile("$.type")
	pathBalanceCurrency = positions.MustCompile("$.currency.code")
	pathBalanceValue    = positions.MustCompile("$.value")
)

const baseCurrency = "USD"

// Source yields holdings snapshots. It is satisfied by *holdings.Cache.
type Source interface {
	Holdings(ctx context.Context) (*types.Snapshot, error)
	Last() *types.Snapshot
}

// Summary is the account level view of the portfolio
type Summary struct {
	AccountID          string          `json:"account_id"`
	CashBalance        decimal.Decimal `json:"cash_balance"`
	AccountValue       decimal.Decimal `json:"account_value"`
	ExcessLiquidity    decimal.Decimal `json:"excess_liquidity"`
	InitialMargin      decimal.Decimal `json:"initial_margin"`
	LeveragePercentage decimal.Decimal `json:"leverage_percentage"`
	IsFrozen           bool            `json:"is_frozen"`
	FetchedAt          time.Time       `json:"fetched_at"`
	Stale              bool            `json:"stale"`
}

type Service struct {
	source Source
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(source Source) *Service {
	return &Service{
		source: source,
		now:    time.Now,
		logger: log.With().Str("component", "portfolio").Logger(),
	}
}

// snapshot returns the current snapshot. When the provider is down the last
// good snapshot is served instead and stale is true.
func (s *Service) snapshot(ctx context.Context) (snap *types.Snapshot, stale bool, err error) {
	snap, err = s.source.Holdings(ctx)
	if err == nil {
		return snap, false, nil
	}
	if !errors.Is(err, types.ErrProviderUnavailable) {
		return nil, false, err
	}

	last := s.source.Last()
	if last == nil {
		return nil, false, err
	}
	s.logger.Warn().
		Err(err).
		Time("fetched_at", last.FetchedAt).
		Msg("provider unavailable, serving last snapshot")
	return last, true, nil
}

// Summary reads the USD cash and total balances. The account value falls back
// to cash when the provider reports no total.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	snap, stale, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		AccountID:          snap.AccountID,
		CashBalance:        decimal.Zero,
		AccountValue:       decimal.Zero,
		ExcessLiquidity:    decimal.Zero,
		InitialMargin:      decimal.Zero,
		LeveragePercentage: decimal.Zero,
		FetchedAt:          snap.FetchedAt,
		Stale:              stale,
	}

	for i, balance := range snap.Balances {
		if code, _ := positions.Lookup(balance, pathBalanceCurrency).(string); code != baseCurrency {
			continue
		}
		kind, _ := positions.Lookup(balance, pathBalanceType).(string)
		if kind != "cash" && kind != "total" {
			continue
		}

		value, err := positions.ToDecimal(positions.Lookup(balance, pathBalanceValue))
		if err != nil {
			s.logger.Warn().Err(err).Int("index", i).Msg("skipping balance")
			continue
		}
		if kind == "cash" {
			summary.CashBalance = value
		} else {
			summary.AccountValue = value
		}
	}

	if summary.AccountValue.IsZero() && summary.CashBalance.IsPositive() {
		summary.AccountValue = summary.CashBalance
	}
	return summary, nil
}

// ValidateSecurityType accepts an empty filter, STK or OPT
func ValidateSecurityType(secType string) error {
	if secType != "" && secType != string(types.SecurityStock) && secType != string(types.SecurityOption) {
		return fmt.Errorf("%w: Invalid position type. Supported types: STK, OPT", types.ErrValidation)
	}
	return nil
}

// Positions returns the canonical positions, optionally narrowed to one
// security type.
func (s *Service) Positions(ctx context.Context, secType string) ([]types.Position, error) {
	if err := ValidateSecurityType(secType); err != nil {
		return nil, err
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]types.Position, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		if secType == "" || string(pos.SecurityType) == secType {
			result = append(result, pos)
		}
	}
	return result, nil
}

// WeeklyIncome projects this week's income from the option positions
func (s *Service) WeeklyIncome(ctx context.Context) (*IncomeReport, error) {
	opts, err := s.Positions(ctx, string(types.SecurityOption))
	if err != nil {
		return nil, err
	}

	report := WeeklyIncome(opts, s.now())
	s.logger.Debug().
		Int("positions", report.PositionsCount).
		Str("total_income", report.TotalIncome.String()).
		Str("this_friday", report.ThisFriday).
		Msg("weekly income computed")
	return &report, nil
}

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.Summary(c.Request.Context())
		response.Handle(c, summary, err)
	}
}

// PositionsHandler lists positions. Query parameters: type (STK or OPT, optional)
func (h *GinHandlers) PositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.service.Positions(c.Request.Context(), c.Query("type"))
		response.Handle(c, list, err)
	}
}

func (h *GinHandlers) WeeklyIncomeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.service.WeeklyIncome(c.Request.Context())
		response.Handle(c, report, err)
	}
}
