package psp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/observability"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

// CardPayload carries the card fields of a CARD intent
type CardPayload struct {
	PAN    string
	Expiry string
	CVV    string
}

// PaymentIntent is the merchant-facing submission
type PaymentIntent struct {
	MerchantOrderID string
	Rail            domain.Rail
	Amount          decimal.Decimal
	Currency        string
	Card            *CardPayload // required for CARD, absent for CRYPTO
}

// PaymentResult is what the caller observes: the transaction id and its
// canonical state. For the crypto rail the QR payload and expiry ride
// along so the consumer can present the invoice.
type PaymentResult struct {
	TransactionID string
	State         domain.TransactionState
	FailureReason string
	QRPayload     string
	ExpiresAt     string
}

// CardAuthorizer runs the card rail for an INITIATED transaction
type CardAuthorizer interface {
	Authorize(ctx context.Context, txnID string, card *domain.CardAuthorizationRequest) (*domain.Transaction, error)
}

// InvoiceCreator runs the crypto rail for an INITIATED transaction
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error)
}

// Service is the PSP orchestrator: the merchant-facing entry point that
// creates the ledger record, dispatches to the owning rail, and serves
// cheap status polls from the ledger alone.
type Service struct {
	ledger     ports.Ledger
	invoices   ports.InvoiceStore
	cardRail   CardAuthorizer
	cryptoRail InvoiceCreator
	clock      timeutil.Clock
	logger     ports.Logger
}

// NewService creates a new PSP orchestrator
func NewService(ledger ports.Ledger, invoices ports.InvoiceStore, cardRail CardAuthorizer, cryptoRail InvoiceCreator, clock timeutil.Clock, logger ports.Logger) *Service {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Service{
		ledger:     ledger,
		invoices:   invoices,
		cardRail:   cardRail,
		cryptoRail: cryptoRail,
		clock:      clock,
		logger:     logger,
	}
}

// SubmitPayment accepts a payment intent. It is idempotent on
// (merchantOrderId, rail): a duplicate submission returns the prior
// transaction's current status without re-invoking any downstream
// adapter. The INITIATED row is committed before dispatch, so a crash
// mid-flight leaves a visible record rather than silent loss.
func (s *Service) SubmitPayment(ctx context.Context, intent *PaymentIntent) (*PaymentResult, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	if existing, err := s.ledger.GetByMerchantOrder(ctx, intent.MerchantOrderID, intent.Rail); err == nil {
		observability.SubmissionsTotal.WithLabelValues(string(intent.Rail), "true").Inc()
		s.logger.Info("returning existing transaction for merchant order",
			ports.String("merchant_order_id", intent.MerchantOrderID),
			ports.String("transaction_id", existing.ID))
		return s.toResult(ctx, existing), nil
	}

	txn := &domain.Transaction{
		ID:              uuid.New().String(),
		MerchantOrderID: intent.MerchantOrderID,
		Rail:            intent.Rail,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		State:           domain.StateInitiated,
	}
	if intent.Rail == domain.RailCard {
		txn.MaskedPAN = domain.MaskPAN(intent.Card.PAN)
	}

	if err := s.ledger.Create(ctx, txn); err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeLedgerDuplicate {
			// Lost a race with a concurrent identical submission;
			// defer to the row that won
			existing, getErr := s.ledger.GetByMerchantOrder(ctx, intent.MerchantOrderID, intent.Rail)
			if getErr != nil {
				return nil, getErr
			}
			observability.SubmissionsTotal.WithLabelValues(string(intent.Rail), "true").Inc()
			return s.toResult(ctx, existing), nil
		}
		return nil, err
	}
	observability.SubmissionsTotal.WithLabelValues(string(intent.Rail), "false").Inc()

	switch intent.Rail {
	case domain.RailCard:
		card := &domain.CardAuthorizationRequest{
			PAN:             intent.Card.PAN,
			Expiry:          intent.Card.Expiry,
			CVV:             intent.Card.CVV,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			AcquirerOrderID: txn.ID,
		}
		final, err := s.cardRail.Authorize(ctx, txn.ID, card)
		if err != nil {
			return nil, err
		}
		return s.toResult(ctx, final), nil

	default:
		inv, err := s.cryptoRail.CreateInvoice(ctx, txn)
		if err != nil {
			// The INITIATED/FAILED row stays behind for the caller to poll
			current, getErr := s.ledger.GetByID(ctx, txn.ID)
			if getErr != nil {
				return nil, err
			}
			return s.toResult(ctx, current), nil
		}
		return &PaymentResult{
			TransactionID: txn.ID,
			State:         domain.StatePending,
			QRPayload:     inv.QRPayload,
			ExpiresAt:     inv.ExpiresAt.Format(time.RFC3339),
		}, nil
	}
}

// GetStatus returns the transaction's canonical state. It reads the
// ledger and the invoice store only and never re-contacts an external
// party, so clients may poll it as often as they like. A PENDING
// crypto transaction whose invoice deadline has lapsed is reported
// EXPIRED immediately; the ledger row settles through the poller or a
// callback.
func (s *Service) GetStatus(ctx context.Context, transactionID string) (*PaymentResult, error) {
	txn, err := s.ledger.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.toResult(ctx, txn), nil
}

// toResult maps a transaction to the caller-visible result
func (s *Service) toResult(ctx context.Context, txn *domain.Transaction) *PaymentResult {
	result := &PaymentResult{
		TransactionID: txn.ID,
		State:         txn.State,
		FailureReason: txn.FailureReason,
	}
	if txn.Rail == domain.RailCrypto && txn.State == domain.StatePending {
		if inv, err := s.invoices.GetByTransactionID(ctx, txn.ID); err == nil && inv.ExpiredAt(s.clock.Now()) {
			result.State = domain.StateExpired
			result.FailureReason = domain.ReasonExpired
		}
	}
	return result
}

// validateIntent checks the submission for required fields
func validateIntent(intent *PaymentIntent) error {
	if intent.MerchantOrderID == "" {
		return domain.ErrValidationFailed.WithDetail("field", "merchantOrderId")
	}
	if intent.Rail != domain.RailCard && intent.Rail != domain.RailCrypto {
		return domain.ErrValidationFailed.WithDetail("field", "rail")
	}
	if !intent.Amount.IsPositive() {
		return domain.ErrValidationFailed.WithDetail("field", "amount")
	}
	if intent.Currency == "" {
		return domain.ErrValidationFailed.WithDetail("field", "currency")
	}
	if intent.Rail == domain.RailCard {
		if intent.Card == nil || intent.Card.PAN == "" {
			return domain.ErrValidationFailed.WithDetail("field", "card")
		}
	}
	return nil
}
