package cryptorail

import (
	"context"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/resilience"
)

// Poller periodically refreshes PENDING crypto transactions so expiry
// and confirmation are reconciled even when no client is polling and
// the gateway sends no callback
type Poller struct {
	service   *Service
	ledger    ports.Ledger
	interval  time.Duration
	batchSize int
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
}

// NewPoller creates a poller over the crypto rail service
func NewPoller(service *Service, ledger ports.Ledger, interval time.Duration, batchSize int, logger ports.Logger) *Poller {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{
		service:   service,
		ledger:    ledger,
		interval:  interval,
		batchSize: batchSize,
		timeouts:  resilience.DefaultTimeoutConfig(),
		logger:    logger,
	}
}

// Run sweeps until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("invoice poller started",
		ports.String("interval", p.interval.String()))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("invoice poller stopped")
			return
		case <-ticker.C:
			sweepCtx, cancel := p.timeouts.PollerContext(ctx)
			p.Sweep(sweepCtx)
			cancel()
		}
	}
}

// Sweep refreshes one batch of PENDING transactions. Individual
// failures are logged and skipped; the next sweep retries them.
func (p *Poller) Sweep(ctx context.Context) {
	pending, err := p.ledger.ListByState(ctx, domain.StatePending, p.batchSize)
	if err != nil {
		p.logger.Error("poller failed to list pending transactions", ports.Err(err))
		return
	}

	for _, txn := range pending {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.service.CheckStatus(ctx, txn.ID); err != nil {
			p.logger.Warn("poller status refresh failed",
				ports.String("transaction_id", txn.ID),
				ports.Err(err))
		}
	}
}
