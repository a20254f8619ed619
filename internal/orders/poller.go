package orders

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 30 * time.Second

// Poller periodically reconciles processing orders with the venue
type Poller struct {
	service  *Service
	interval time.Duration
}

func NewPoller(service *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		service:  service,
		interval: interval,
	}
}

// Start runs CheckOrders on every tick until ctx is done
func (p *Poller) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_poller").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting order poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order poller")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.service.CheckOrders(ctx); err != nil {
		log.Error().Err(err).Str("component", "order_poller").Msg("failed to check processing orders")
	}
}
