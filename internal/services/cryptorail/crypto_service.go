package cryptorail

import (
	"context"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/observability"
	"github.com/kevin07696/payment-switch/pkg/resilience"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

// Config holds the crypto rail's parameters
type Config struct {
	// CallbackURL is handed to the gateway on invoice creation
	CallbackURL string
	// InvoiceTTL is the invoice lifetime requested from the gateway
	InvoiceTTL time.Duration
	// StatusMaxRetries bounds retries of a failed status check. Invoice
	// creation is never retried: an invoice, once created at the
	// gateway, must not be recreated.
	StatusMaxRetries int
	// Backoff spaces status-check retries
	Backoff resilience.BackoffStrategy
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		InvoiceTTL:       15 * time.Minute,
		StatusMaxRetries: 3,
		Backoff:          resilience.StatusPollBackoff(),
	}
}

// Service owns the crypto invoice lifecycle: it creates invoices at the
// gateway, reconciles their asynchronous status with the ledger, and
// enforces the expiry deadline even against a gateway that never posts
// an explicit expiry event.
type Service struct {
	ledger   ports.Ledger
	invoices ports.InvoiceStore
	gateway  ports.CryptoGateway
	config   Config
	clock    timeutil.Clock
	logger   ports.Logger
}

// NewService creates a new crypto rail service
func NewService(ledger ports.Ledger, invoices ports.InvoiceStore, gateway ports.CryptoGateway, config Config, clock timeutil.Clock, logger ports.Logger) *Service {
	if config.Backoff == nil {
		config.Backoff = resilience.StatusPollBackoff()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Service{
		ledger:   ledger,
		invoices: invoices,
		gateway:  gateway,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateInvoice creates a gateway invoice for an INITIATED transaction,
// records the correlation, and moves the transaction to PENDING
func (s *Service) CreateInvoice(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
	result, err := s.gateway.CreateTransaction(ctx, &ports.CreateCryptoTxnRequest{
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		CallbackURL: s.config.CallbackURL,
		TTL:         s.config.InvoiceTTL,
	})
	if err != nil {
		s.logger.Error("crypto invoice creation failed",
			ports.String("transaction_id", txn.ID),
			ports.Err(err))
		reason := domain.ReasonTransport
		if txErr := s.ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StateFailed,
			ports.TransitionUpdate{FailureReason: &reason}); txErr != nil {
			s.logger.Error("failed to mark transaction failed",
				ports.String("transaction_id", txn.ID), ports.Err(txErr))
		}
		return nil, err
	}

	inv := &domain.CryptoInvoice{
		TransactionID: txn.ID,
		ExternalTxnID: result.ExternalTxnID,
		QRPayload:     result.QRPayload,
		Status:        domain.InvoicePending,
		ExpiresAt:     result.ExpiresAt,
	}
	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.ledger.BindExternalID(ctx, txn.ID, result.ExternalTxnID); err != nil {
		return nil, err
	}
	if err := s.ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StatePending,
		ports.TransitionUpdate{}); err != nil {
		return nil, err
	}

	s.logger.Info("crypto invoice created",
		ports.String("transaction_id", txn.ID),
		ports.String("external_txn_id", result.ExternalTxnID))

	return inv, nil
}

// CheckStatus reconciles one invoice with the gateway and returns its
// status. A PENDING answer is never trusted past the invoice deadline:
// once the wall clock passes expiresAt without a CONFIRMED, the status
// is forced to EXPIRED regardless of what the gateway reports.
func (s *Service) CheckStatus(ctx context.Context, transactionID string) (domain.InvoiceStatus, error) {
	inv, err := s.invoices.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return domain.InvoiceError, err
	}
	if inv.Status.IsTerminal() {
		return inv.Status, nil
	}

	if inv.ExpiredAt(s.clock.Now()) {
		return s.commit(ctx, inv, domain.InvoiceExpired)
	}

	status, err := s.queryWithRetries(ctx, inv.ExternalTxnID)
	if err != nil {
		// The invoice stays PENDING; a later check or callback settles it
		observability.InvoiceRefreshesTotal.WithLabelValues("error").Inc()
		s.logger.Warn("invoice status check failed",
			ports.String("transaction_id", transactionID),
			ports.Err(err))
		return domain.InvoiceError, err
	}

	// Re-check the deadline: the gateway answer may race the expiry
	if status == domain.InvoicePending && inv.ExpiredAt(s.clock.Now()) {
		status = domain.InvoiceExpired
	}

	if status == domain.InvoicePending {
		observability.InvoiceRefreshesTotal.WithLabelValues("pending").Inc()
		return domain.InvoicePending, nil
	}
	return s.commit(ctx, inv, status)
}

// HandleCallback processes a gateway status notification. A callback
// referencing an unknown externalTxnId cannot be attributed to any
// transaction: it is counted, logged, and discarded, and never creates
// state.
func (s *Service) HandleCallback(ctx context.Context, externalTxnID string, status domain.InvoiceStatus) error {
	txn, err := s.ledger.GetByExternalID(ctx, externalTxnID)
	if err != nil {
		observability.CorrelationDiscardsTotal.Inc()
		s.logger.Warn("discarding callback for unknown external id",
			ports.String("external_txn_id", externalTxnID),
			ports.String("status", string(status)))
		return domain.ErrUnknownCorrelation.WithDetail("external_txn_id", externalTxnID)
	}

	inv, err := s.invoices.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		return err
	}
	if inv.Status.IsTerminal() {
		return nil
	}

	// The deadline binds callbacks too: past expiresAt, anything short
	// of a CONFIRMED settles as EXPIRED. A CONFIRMED still commits: the
	// gateway observed payment and expiry only covers its absence.
	if inv.ExpiredAt(s.clock.Now()) && status != domain.InvoiceConfirmed {
		status = domain.InvoiceExpired
	}
	if status != domain.InvoiceConfirmed && status != domain.InvoiceExpired {
		return nil
	}

	_, err = s.commit(ctx, inv, status)
	return err
}

// queryWithRetries asks the gateway for the invoice status, retrying
// transport faults up to the configured bound
func (s *Service) queryWithRetries(ctx context.Context, externalTxnID string) (domain.InvoiceStatus, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.StatusMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.Backoff.NextDelay(attempt - 1)):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				return domain.InvoiceError, domain.WrapError(domain.ErrorCodeTransportTimeout, "status check cancelled", ctx.Err())
			}
		}

		status, err := s.gateway.GetStatus(ctx, externalTxnID)
		if err != nil {
			if domain.IsTransportError(err) {
				lastErr = err
				continue
			}
			return domain.InvoiceError, err
		}
		return status, nil
	}
	return domain.InvoiceError, lastErr
}

// commit writes the terminal invoice status and advances the
// transaction through the compare-and-swap. A lost swap means another
// path (poller, callback, or client-triggered check) already settled
// the transaction; its answer stands.
func (s *Service) commit(ctx context.Context, inv *domain.CryptoInvoice, status domain.InvoiceStatus) (domain.InvoiceStatus, error) {
	if err := s.invoices.UpdateStatus(ctx, inv.TransactionID, status); err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeLedgerTerminal {
			settled, getErr := s.invoices.GetByTransactionID(ctx, inv.TransactionID)
			if getErr != nil {
				return domain.InvoiceError, getErr
			}
			return settled.Status, nil
		}
		return domain.InvoiceError, err
	}

	var to domain.TransactionState
	update := ports.TransitionUpdate{}
	switch status {
	case domain.InvoiceConfirmed:
		to = domain.StateConfirmed
		observability.InvoiceRefreshesTotal.WithLabelValues("confirmed").Inc()
	default:
		to = domain.StateExpired
		reason := domain.ReasonExpired
		update.FailureReason = &reason
		observability.InvoiceRefreshesTotal.WithLabelValues("expired").Inc()
	}

	if err := s.ledger.Transition(ctx, inv.TransactionID, domain.StatePending, to, update); err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeLedgerStateConflict {
			return status, nil
		}
		return domain.InvoiceError, err
	}

	s.logger.Info("crypto invoice settled",
		ports.String("transaction_id", inv.TransactionID),
		ports.String("status", string(status)))

	return status, nil
}
