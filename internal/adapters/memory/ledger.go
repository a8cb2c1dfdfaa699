package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

// orderKey is the idempotency key: one transaction per merchant order
// per rail
type orderKey struct {
	merchantOrderID string
	rail            domain.Rail
}

// Ledger is an in-memory implementation of ports.Ledger. All mutation
// happens under one mutex, which makes Transition an atomic
// compare-and-swap: the first caller to observe the expected state
// wins, every other caller gets domain.ErrStateConflict.
type Ledger struct {
	mu         sync.Mutex
	byID       map[string]*domain.Transaction
	byOrder    map[orderKey]string
	byExternal map[string]string
}

// NewLedger creates an empty in-memory ledger
func NewLedger() *Ledger {
	return &Ledger{
		byID:       make(map[string]*domain.Transaction),
		byOrder:    make(map[orderKey]string),
		byExternal: make(map[string]string),
	}
}

// Create inserts a new transaction, enforcing (merchantOrderId, rail)
// uniqueness
func (l *Ledger) Create(ctx context.Context, txn *domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := orderKey{txn.MerchantOrderID, txn.Rail}
	if _, exists := l.byOrder[key]; exists {
		return domain.ErrDuplicateOrder
	}
	if _, exists := l.byID[txn.ID]; exists {
		return domain.ErrDuplicateOrder.WithDetail("transaction_id", txn.ID)
	}

	cp := *txn
	now := timeutil.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	l.byID[cp.ID] = &cp
	l.byOrder[key] = cp.ID

	txn.CreatedAt = cp.CreatedAt
	txn.UpdatedAt = cp.UpdatedAt
	return nil
}

// GetByID retrieves a copy of the transaction
func (l *Ledger) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.byID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

// GetByMerchantOrder retrieves the transaction for an idempotency lookup
func (l *Ledger) GetByMerchantOrder(ctx context.Context, merchantOrderID string, rail domain.Rail) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byOrder[orderKey{merchantOrderID, rail}]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *l.byID[id]
	return &cp, nil
}

// GetByExternalID retrieves the transaction correlated with a gateway id
func (l *Ledger) GetByExternalID(ctx context.Context, externalTxnID string) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byExternal[externalTxnID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *l.byID[id]
	return &cp, nil
}

// Transition performs the compare-and-swap state advance
func (l *Ledger) Transition(ctx context.Context, id string, from, to domain.TransactionState, update ports.TransitionUpdate) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrTerminalState.WithDetail("from", string(from)).WithDetail("to", string(to))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.byID[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if txn.State != from {
		return domain.ErrStateConflict.
			WithDetail("expected", string(from)).
			WithDetail("actual", string(txn.State))
	}

	txn.State = to
	if update.IssuerReference != nil {
		txn.IssuerReference = *update.IssuerReference
	}
	if update.FailureReason != nil {
		txn.FailureReason = *update.FailureReason
	}
	txn.UpdatedAt = timeutil.Now()
	return nil
}

// RecordAttempt increments the attempt counter on the existing row
func (l *Ledger) RecordAttempt(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.byID[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.AttemptCount++
	txn.UpdatedAt = timeutil.Now()
	return nil
}

// BindExternalID records the crypto correlation
func (l *Ledger) BindExternalID(ctx context.Context, id, externalTxnID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.byID[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if bound, exists := l.byExternal[externalTxnID]; exists && bound != id {
		return domain.ErrDuplicateOrder.WithDetail("external_txn_id", externalTxnID)
	}
	l.byExternal[externalTxnID] = id
	txn.ExternalTxnID = externalTxnID
	txn.UpdatedAt = timeutil.Now()
	return nil
}

// ListByState returns up to limit transactions in the given state,
// oldest first
func (l *Ledger) ListByState(ctx context.Context, state domain.TransactionState, limit int) ([]*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Transaction
	for _, txn := range l.byID {
		if txn.State == state {
			cp := *txn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
