package memory

import (
	"context"
	"sync"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

// InvoiceStore is an in-memory implementation of ports.InvoiceStore
type InvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*domain.CryptoInvoice // keyed by transaction id
}

// NewInvoiceStore creates an empty in-memory invoice store
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]*domain.CryptoInvoice)}
}

// Save stores an invoice keyed by its transaction id
func (s *InvoiceStore) Save(ctx context.Context, inv *domain.CryptoInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	now := timeutil.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.invoices[cp.TransactionID] = &cp
	return nil
}

// GetByTransactionID retrieves an invoice by its transaction back-reference
func (s *InvoiceStore) GetByTransactionID(ctx context.Context, transactionID string) (*domain.CryptoInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound.WithDetail("transaction_id", transactionID)
	}
	cp := *inv
	return &cp, nil
}

// UpdateStatus updates the invoice status. A terminal invoice is never
// moved again.
func (s *InvoiceStore) UpdateStatus(ctx context.Context, transactionID string, status domain.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound.WithDetail("transaction_id", transactionID)
	}
	if inv.Status.IsTerminal() {
		return domain.ErrTerminalState.WithDetail("status", string(inv.Status))
	}
	inv.Status = status
	inv.UpdatedAt = timeutil.Now()
	return nil
}
