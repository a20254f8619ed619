package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Venue statuses as reported in Ticket.Status
const (
	StatusSubmitted = "Submitted"
	StatusFilled    = "Filled"
	StatusCancelled = "Cancelled"
)

// Venue is where orders are sent for execution
type Venue interface {
	Place(ctx context.Context, order *types.Order) (*Ticket, error)
	Status(ctx context.Context, externalID string) (*Ticket, error)
	Cancel(ctx context.Context, externalID string) error
	// IsMock reports whether fills are simulated
	IsMock() bool
}

// Ticket is the venue's view of one placed order
type Ticket struct {
	ExternalID   string          `json:"external_order_id"`
	Status       string          `json:"external_status"`
	Filled       int             `json:"filled"`
	Remaining    int             `json:"remaining"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}

// Done reports whether the venue will not fill the ticket any further
func (t *Ticket) Done() bool {
	return t.Status == StatusFilled || t.Status == StatusCancelled
}

// PaperConfig tunes the simulated venue
type PaperConfig struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate float64 // 0-1, probability that a placement is accepted
	Seed        int64
}

// DefaultPaperConfig mirrors a liquid primary exchange
var DefaultPaperConfig = PaperConfig{
	MinLatency:  5 * time.Millisecond,
	MaxLatency:  30 * time.Millisecond,
	SuccessRate: 0.95,
}

type paperTicket struct {
	Ticket
	reference decimal.Decimal
}

// PaperVenue simulates a broker. Placed orders fill completely the first time
// their status is polled, at the reference price with a random variance of 2%.
type PaperVenue struct {
	cfg     PaperConfig
	mu      sync.Mutex
	rnd     *rand.Rand
	tickets map[string]*paperTicket
	logger  zerolog.Logger
}

func NewPaperVenue(cfg PaperConfig) *PaperVenue {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperVenue{
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(seed)),
		tickets: make(map[string]*paperTicket),
		logger:  log.With().Str("component", "paper_venue").Logger(),
	}
}

func (v *PaperVenue) IsMock() bool {
	return true
}

// Place simulates sending the order to the market
func (v *PaperVenue) Place(ctx context.Context, order *types.Order) (*Ticket, error) {
	logger := v.logger.With().
		Uint("order_id", order.ID).
		Str("ticker", order.Ticker).
		Str("action", string(order.Action)).
		Int("quantity", order.Quantity).
		Logger()

	logger.Info().Msg("placing order")

	if err := v.simulateLatency(ctx); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rnd.Float64() > v.cfg.SuccessRate {
		logger.Warn().
			Float64("success_rate", v.cfg.SuccessRate).
			Msg("order rejected by success rate threshold")
		return nil, fmt.Errorf("%w: paper venue rejected order %d", types.ErrVenueUnavailable, order.ID)
	}

	t := &paperTicket{
		Ticket: Ticket{
			ExternalID: "PAPER-" + uuid.New().String(),
			Status:     StatusSubmitted,
			Remaining:  order.Quantity,
		},
		reference: referencePrice(order),
	}
	v.tickets[t.ExternalID] = t

	logger.Info().Str("external_order_id", t.ExternalID).Msg("order accepted")
	ticket := t.Ticket
	return &ticket, nil
}

// Status returns the current ticket, filling it on the first poll
func (v *PaperVenue) Status(ctx context.Context, externalID string) (*Ticket, error) {
	if err := v.simulateLatency(ctx); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.tickets[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown ticket %s", types.ErrNotFound, externalID)
	}

	if t.Status == StatusSubmitted {
		// Random variance of +/-2%
		variance := decimal.NewFromFloat(1 + (v.rnd.Float64()*0.04 - 0.02))
		t.AvgFillPrice = t.reference.Mul(variance).Round(2)
		t.Filled += t.Remaining
		t.Remaining = 0
		t.Status = StatusFilled

		v.logger.Debug().
			Str("external_order_id", externalID).
			Str("reference_price", t.reference.String()).
			Str("fill_price", t.AvgFillPrice.String()).
			Msg("ticket filled")
	}

	ticket := t.Ticket
	return &ticket, nil
}

// Cancel cancels a ticket that has not been filled yet
func (v *PaperVenue) Cancel(ctx context.Context, externalID string) error {
	if err := v.simulateLatency(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.tickets[externalID]
	if !ok {
		return fmt.Errorf("%w: unknown ticket %s", types.ErrNotFound, externalID)
	}
	if t.Status == StatusFilled {
		return fmt.Errorf("%w: ticket %s already filled", types.ErrConflict, externalID)
	}
	t.Status = StatusCancelled
	v.logger.Info().Str("external_order_id", externalID).Msg("ticket cancelled")
	return nil
}

func (v *PaperVenue) simulateLatency(ctx context.Context) error {
	v.mu.Lock()
	latency := v.cfg.MinLatency
	if span := v.cfg.MaxLatency - v.cfg.MinLatency; span > 0 {
		latency += time.Duration(v.rnd.Int63n(int64(span) + 1))
	}
	v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrVenueUnavailable, err)
	}
	if latency <= 0 {
		return nil
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", types.ErrVenueUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// referencePrice is the limit price when set, else the premium, else the
// bid/ask midpoint.
func referencePrice(order *types.Order) decimal.Decimal {
	switch {
	case order.LimitPrice.IsPositive():
		return order.LimitPrice
	case order.Premium.IsPositive():
		return order.Premium
	case order.Bid.IsPositive() && order.Ask.IsPositive():
		return order.Bid.Add(order.Ask).Div(decimal.NewFromInt(2))
	}
	return order.Last
}
