package pccswitch

import (
	"context"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/observability"
	"github.com/kevin07696/payment-switch/pkg/resilience"
)

// Config holds the switch's forwarding parameters
type Config struct {
	// Timeouts bounds each issuer round trip via SingleAttempt
	Timeouts *resilience.TimeoutConfig
	// MaxRetries bounds automatic retries after transport faults
	MaxRetries int
	// Backoff spaces the retries
	Backoff resilience.BackoffStrategy
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Timeouts:   resilience.DefaultTimeoutConfig(),
		MaxRetries: 3,
		Backoff:    resilience.DefaultExponentialBackoff(),
	}
}

// Service is the PCC switch: it routes an authorization request to the
// issuer owning the card's BIN, forwards it under a bounded timeout,
// and maps the issuer's answer into the canonical transaction outcome.
// Every state advance is a compare-and-swap on the ledger, so when two
// forward attempts for the same transaction race, exactly one decision
// is committed and the loser discards its result.
type Service struct {
	ledger  ports.Ledger
	gateway ports.IssuerGateway
	routes  *domain.RouteTable
	config  Config
	logger  ports.Logger
}

// NewService creates a new switch service
func NewService(ledger ports.Ledger, gateway ports.IssuerGateway, routes *domain.RouteTable, config Config, logger ports.Logger) *Service {
	if config.Backoff == nil {
		config.Backoff = resilience.DefaultExponentialBackoff()
	}
	if config.Timeouts == nil {
		config.Timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		ledger:  ledger,
		gateway: gateway,
		routes:  routes,
		config:  config,
		logger:  logger,
	}
}

// Authorize runs the card authorization for an INITIATED transaction.
// It always returns the transaction's resulting state; the error return
// is reserved for ledger faults, never for business outcomes.
func (s *Service) Authorize(ctx context.Context, txnID string, card *domain.CardAuthorizationRequest) (*domain.Transaction, error) {
	route, ok := s.routes.Match(card.PAN)
	if !ok {
		// A PAN outside every configured BIN range is a routing
		// failure, terminal and never retried
		s.logger.Warn("no issuer route for card",
			ports.String("transaction_id", txnID),
			ports.String("card", card.Masked()))
		observability.AuthorizationsTotal.WithLabelValues("unroutable").Inc()

		reason := domain.ReasonUnroutable
		if err := s.ledger.Transition(ctx, txnID, domain.StateInitiated, domain.StateFailed,
			ports.TransitionUpdate{FailureReason: &reason}); err != nil {
			return s.currentState(ctx, txnID, err)
		}
		return s.ledger.GetByID(ctx, txnID)
	}

	if err := s.ledger.Transition(ctx, txnID, domain.StateInitiated, domain.StateRouted,
		ports.TransitionUpdate{}); err != nil {
		// Another attempt already advanced this transaction; defer to it
		return s.currentState(ctx, txnID, err)
	}

	s.logger.Info("transaction routed",
		ports.String("transaction_id", txnID),
		ports.String("issuer", route.Issuer),
		ports.String("card", card.Masked()))

	return s.forward(ctx, txnID, route, card)
}

// forward drives the retry loop against the issuer. The transaction
// stays in ROUTED across transport faults: the issuer reference is
// recorded, and FORWARDED entered, only once the issuer acknowledges
// with a well-formed response, so an attempt that died on the wire is
// safely retryable.
func (s *Service) forward(ctx context.Context, txnID string, route domain.IssuerRoute, card *domain.CardAuthorizationRequest) (*domain.Transaction, error) {
	authReq := &ports.IssuerAuthRequest{
		PAN:             card.PAN,
		Expiry:          card.Expiry,
		CVV:             card.CVV,
		Amount:          card.Amount,
		Currency:        card.Currency,
		AcquirerOrderID: card.AcquirerOrderID,
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.Backoff.NextDelay(attempt - 1)):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = domain.WrapError(domain.ErrorCodeTransportTimeout, "authorization cancelled", ctx.Err())
				break
			}
		}

		if err := s.ledger.RecordAttempt(ctx, txnID); err != nil {
			return nil, err
		}

		start := time.Now()
		attemptCtx, cancel := s.config.Timeouts.AttemptContext(ctx)
		result, err := s.gateway.Authorize(attemptCtx, route.URL, authReq)
		cancel()
		observability.ForwardDuration.WithLabelValues(route.Issuer).Observe(time.Since(start).Seconds())

		if err != nil {
			if domain.IsTransportError(err) {
				observability.ForwardAttemptsTotal.WithLabelValues(route.Issuer, "transport_error").Inc()
				s.logger.Warn("forward attempt failed",
					ports.String("transaction_id", txnID),
					ports.Int("attempt", attempt),
					ports.Err(err))
				lastErr = err
				continue
			}
			return nil, err
		}

		observability.ForwardAttemptsTotal.WithLabelValues(route.Issuer, "acknowledged").Inc()
		return s.commitDecision(ctx, txnID, result)
	}

	// Retries exhausted: surface as a final FAILED
	reason := domain.ReasonTransport
	if domain.GetErrorCode(lastErr) == domain.ErrorCodeTransportTimeout {
		reason = domain.ReasonTimeout
	}
	observability.AuthorizationsTotal.WithLabelValues("failed").Inc()
	s.logger.Error("authorization failed after retries",
		ports.String("transaction_id", txnID),
		ports.String("reason", reason),
		ports.Err(lastErr))

	if err := s.ledger.Transition(ctx, txnID, domain.StateRouted, domain.StateFailed,
		ports.TransitionUpdate{FailureReason: &reason}); err != nil {
		return s.currentState(ctx, txnID, err)
	}
	return s.ledger.GetByID(ctx, txnID)
}

// commitDecision records the issuer acknowledgment and the decision.
// Both advances are compare-and-swaps: the attempt that loses either
// one discards its result, which is what guarantees at most one
// authorization is ever accepted per transaction.
func (s *Service) commitDecision(ctx context.Context, txnID string, result *ports.IssuerAuthResult) (*domain.Transaction, error) {
	if err := s.ledger.Transition(ctx, txnID, domain.StateRouted, domain.StateForwarded,
		ports.TransitionUpdate{IssuerReference: &result.IssuerReference}); err != nil {
		s.logger.Info("discarding issuer decision, another attempt won",
			ports.String("transaction_id", txnID),
			ports.String("issuer_reference", result.IssuerReference))
		return s.currentState(ctx, txnID, err)
	}

	var to domain.TransactionState
	update := ports.TransitionUpdate{}
	switch result.Decision {
	case ports.DecisionApproved:
		to = domain.StateApproved
		observability.AuthorizationsTotal.WithLabelValues("approved").Inc()
	default:
		to = domain.StateDeclined
		update.FailureReason = &result.DeclineReason
		observability.AuthorizationsTotal.WithLabelValues("declined").Inc()
	}

	if err := s.ledger.Transition(ctx, txnID, domain.StateForwarded, to, update); err != nil {
		return s.currentState(ctx, txnID, err)
	}

	s.logger.Info("authorization decided",
		ports.String("transaction_id", txnID),
		ports.String("state", string(to)),
		ports.String("issuer_reference", result.IssuerReference))

	return s.ledger.GetByID(ctx, txnID)
}

// currentState resolves a lost compare-and-swap: the transaction's
// committed state is the answer, the conflict itself is not an error
// for the caller
func (s *Service) currentState(ctx context.Context, txnID string, err error) (*domain.Transaction, error) {
	if domain.GetErrorCode(err) != domain.ErrorCodeLedgerStateConflict &&
		domain.GetErrorCode(err) != domain.ErrorCodeLedgerTerminal {
		return nil, err
	}
	return s.ledger.GetByID(ctx, txnID)
}
