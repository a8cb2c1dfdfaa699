package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateCryptoTxnRequest is the outbound create-transaction request to
// the crypto payment gateway
type CreateCryptoTxnRequest struct {
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
	TTL         time.Duration // requested invoice lifetime
}

// CreateCryptoTxnResult is the gateway's invoice handle
type CreateCryptoTxnResult struct {
	ExternalTxnID string
	QRPayload     string
	ExpiresAt     time.Time
}

// CryptoGateway talks to the third-party crypto payment gateway
type CryptoGateway interface {
	// CreateTransaction creates an invoice at the gateway. An invoice,
	// once created, is never recreated: recreating would double-charge.
	CreateTransaction(ctx context.Context, req *CreateCryptoTxnRequest) (*CreateCryptoTxnResult, error)

	// GetStatus queries the invoice status by the gateway's id
	GetStatus(ctx context.Context, externalTxnID string) (domain.InvoiceStatus, error)
}
