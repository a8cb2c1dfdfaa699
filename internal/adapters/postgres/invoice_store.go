package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payment-switch/internal/domain"
)

// Expected schema:
//
//	CREATE TABLE crypto_invoices (
//	    transaction_id  UUID PRIMARY KEY REFERENCES transactions (id),
//	    external_txn_id TEXT NOT NULL UNIQUE,
//	    qr_payload      TEXT NOT NULL,
//	    status          TEXT NOT NULL,
//	    expires_at      TIMESTAMPTZ NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);

// InvoiceStore implements ports.InvoiceStore on PostgreSQL
type InvoiceStore struct {
	pool *pgxpool.Pool
}

// NewInvoiceStore creates a PostgreSQL-backed invoice store
func NewInvoiceStore(pool *pgxpool.Pool) *InvoiceStore {
	return &InvoiceStore{pool: pool}
}

// Save upserts an invoice keyed by transaction id
func (s *InvoiceStore) Save(ctx context.Context, inv *domain.CryptoInvoice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crypto_invoices
			(transaction_id, external_txn_id, qr_payload, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO UPDATE SET
			status = EXCLUDED.status, updated_at = now()`,
		inv.TransactionID, inv.ExternalTxnID, inv.QRPayload, string(inv.Status), inv.ExpiresAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "save invoice", err)
	}
	return nil
}

// GetByTransactionID retrieves an invoice by its transaction back-reference
func (s *InvoiceStore) GetByTransactionID(ctx context.Context, transactionID string) (*domain.CryptoInvoice, error) {
	var inv domain.CryptoInvoice
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT transaction_id, external_txn_id, qr_payload, status, expires_at, created_at, updated_at
		FROM crypto_invoices WHERE transaction_id = $1`,
		transactionID,
	).Scan(&inv.TransactionID, &inv.ExternalTxnID, &inv.QRPayload, &status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound.WithDetail("transaction_id", transactionID)
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	inv.Status = domain.InvoiceStatus(status)
	return &inv, nil
}

// UpdateStatus moves a non-terminal invoice to the given status
func (s *InvoiceStore) UpdateStatus(ctx context.Context, transactionID string, status domain.InvoiceStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE crypto_invoices SET status = $2, updated_at = now()
		WHERE transaction_id = $1 AND status NOT IN ('CONFIRMED', 'EXPIRED')`,
		transactionID, string(status),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "update invoice status", err)
	}
	if tag.RowsAffected() == 0 {
		inv, getErr := s.GetByTransactionID(ctx, transactionID)
		if getErr != nil {
			return getErr
		}
		return domain.ErrTerminalState.WithDetail("status", string(inv.Status))
	}
	return nil
}
