package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
)

// Expected schema:
//
//	CREATE TABLE transactions (
//	    id                 UUID PRIMARY KEY,
//	    merchant_order_id  TEXT NOT NULL,
//	    rail               TEXT NOT NULL,
//	    amount             NUMERIC(20,8) NOT NULL,
//	    currency           TEXT NOT NULL,
//	    state              TEXT NOT NULL,
//	    masked_pan         TEXT NOT NULL DEFAULT '',
//	    issuer_reference   TEXT NOT NULL DEFAULT '',
//	    external_txn_id    TEXT,
//	    failure_reason     TEXT NOT NULL DEFAULT '',
//	    attempt_count      INT NOT NULL DEFAULT 0,
//	    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (merchant_order_id, rail)
//	);
//	CREATE UNIQUE INDEX transactions_external_txn_id
//	    ON transactions (external_txn_id) WHERE external_txn_id IS NOT NULL;

const pgUniqueViolation = "23505"

// Ledger implements ports.Ledger on PostgreSQL. The compare-and-swap
// discipline is a conditional UPDATE keyed on the expected current
// state; a zero rows-affected result means another attempt advanced
// the transaction first.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a PostgreSQL-backed ledger
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Ping verifies connectivity, used by the health endpoint
func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

const txnColumns = `id, merchant_order_id, rail, amount, currency, state,
	masked_pan, issuer_reference, COALESCE(external_txn_id, ''), failure_reason,
	attempt_count, created_at, updated_at`

// Create inserts a new transaction; a duplicate (merchantOrderId, rail)
// maps to domain.ErrDuplicateOrder
func (l *Ledger) Create(ctx context.Context, txn *domain.Transaction) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO transactions
			(id, merchant_order_id, rail, amount, currency, state,
			 masked_pan, issuer_reference, failure_reason, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, txn.MerchantOrderID, string(txn.Rail), txn.Amount, txn.Currency,
		string(txn.State), txn.MaskedPAN, txn.IssuerReference, txn.FailureReason,
		txn.AttemptCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateOrder
		}
		return domain.WrapError(domain.ErrorCodeInternalError, "create transaction", err)
	}
	return nil
}

// GetByID retrieves a transaction by id
func (l *Ledger) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// GetByMerchantOrder retrieves the transaction for an idempotency lookup
func (l *Ledger) GetByMerchantOrder(ctx context.Context, merchantOrderID string, rail domain.Rail) (*domain.Transaction, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions
		 WHERE merchant_order_id = $1 AND rail = $2`,
		merchantOrderID, string(rail))
	return scanTransaction(row)
}

// GetByExternalID retrieves the transaction correlated with a gateway id
func (l *Ledger) GetByExternalID(ctx context.Context, externalTxnID string) (*domain.Transaction, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE external_txn_id = $1`,
		externalTxnID)
	return scanTransaction(row)
}

// Transition performs the conditional state advance
func (l *Ledger) Transition(ctx context.Context, id string, from, to domain.TransactionState, update ports.TransitionUpdate) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrTerminalState.WithDetail("from", string(from)).WithDetail("to", string(to))
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE transactions SET
			state            = $3,
			issuer_reference = COALESCE($4, issuer_reference),
			failure_reason   = COALESCE($5, failure_reason),
			updated_at       = now()
		WHERE id = $1 AND state = $2`,
		id, string(from), string(to),
		update.IssuerReference, update.FailureReason,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "transition transaction", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row does not exist or another attempt won the swap
		if _, getErr := l.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrStateConflict.WithDetail("expected", string(from))
	}
	return nil
}

// RecordAttempt increments the attempt counter on the existing row
func (l *Ledger) RecordAttempt(ctx context.Context, id string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE transactions SET attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "record attempt", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// BindExternalID records the crypto correlation
func (l *Ledger) BindExternalID(ctx context.Context, id, externalTxnID string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE transactions SET external_txn_id = $2, updated_at = now()
		WHERE id = $1`,
		id, externalTxnID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateOrder.WithDetail("external_txn_id", externalTxnID)
		}
		return domain.WrapError(domain.ErrorCodeInternalError, "bind external id", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ListByState returns up to limit transactions in the given state,
// oldest first
func (l *Ledger) ListByState(ctx context.Context, state domain.TransactionState, limit int) ([]*domain.Transaction, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM transactions
		 WHERE state = $1 ORDER BY created_at ASC LIMIT $2`,
		string(state), limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "list transactions by state", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "list transactions by state", err)
	}
	return out, nil
}

// scanTransaction maps one row into the domain model
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var txn domain.Transaction
	var rail, state string
	err := row.Scan(
		&txn.ID, &txn.MerchantOrderID, &rail, &txn.Amount, &txn.Currency, &state,
		&txn.MaskedPAN, &txn.IssuerReference, &txn.ExternalTxnID, &txn.FailureReason,
		&txn.AttemptCount, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	txn.Rail = domain.Rail(rail)
	txn.State = domain.TransactionState(state)
	return &txn, nil
}
