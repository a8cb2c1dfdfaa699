package ports

import (
	"context"

	"github.com/kevin07696/payment-switch/internal/domain"
)

// TransitionUpdate carries the fields a state transition may set
// alongside the new state. Nil pointers leave the column untouched.
type TransitionUpdate struct {
	IssuerReference *string
	FailureReason   *string
}

// Ledger is the durable record of every attempted payment and the
// single source of truth for idempotency. All mutation goes through
// Transition, a conditional update keyed on the expected current
// state; the caller that loses the compare-and-swap receives
// domain.ErrStateConflict and must discard its result.
type Ledger interface {
	// Create inserts a new INITIATED transaction. A transaction with
	// the same (merchantOrderId, rail) already present fails with
	// domain.ErrDuplicateOrder.
	Create(ctx context.Context, txn *domain.Transaction) error

	// GetByID retrieves a transaction by its id
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByMerchantOrder retrieves the transaction for an idempotency
	// lookup keyed on (merchantOrderId, rail)
	GetByMerchantOrder(ctx context.Context, merchantOrderID string, rail domain.Rail) (*domain.Transaction, error)

	// GetByExternalID retrieves the transaction correlated with a
	// crypto gateway's external transaction id
	GetByExternalID(ctx context.Context, externalTxnID string) (*domain.Transaction, error)

	// Transition advances a transaction from the expected state to the
	// next one. The update succeeds only if the stored state still
	// equals from; otherwise domain.ErrStateConflict is returned and
	// nothing changes. Terminal states have no outgoing edges, so a
	// terminal transaction can never be advanced.
	Transition(ctx context.Context, id string, from, to domain.TransactionState, update TransitionUpdate) error

	// RecordAttempt increments the internal attempt counter on the
	// existing row; retries never create a second ledger entry
	RecordAttempt(ctx context.Context, id string) error

	// BindExternalID records the transactionId <-> externalTxnId
	// correlation for the crypto rail
	BindExternalID(ctx context.Context, id, externalTxnID string) error

	// ListByState returns up to limit transactions currently in the
	// given state, oldest first. Used by the invoice poller.
	ListByState(ctx context.Context, state domain.TransactionState, limit int) ([]*domain.Transaction, error)
}

// InvoiceStore persists crypto invoices. It is owned by the crypto
// rail; the ledger holds only the correlation.
type InvoiceStore interface {
	Save(ctx context.Context, inv *domain.CryptoInvoice) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.CryptoInvoice, error)
	UpdateStatus(ctx context.Context, transactionID string, status domain.InvoiceStatus) error
}
