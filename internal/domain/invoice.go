package domain

import "time"

// InvoiceStatus represents the gateway-side state of a crypto invoice
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceConfirmed InvoiceStatus = "CONFIRMED"
	InvoiceExpired   InvoiceStatus = "EXPIRED"
	InvoiceError     InvoiceStatus = "ERROR"
)

// IsTerminal reports whether the invoice can still change status.
// ERROR is not terminal: it marks a failed status check, retried up to
// a bound.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceConfirmed || s == InvoiceExpired
}

// CryptoInvoice is the crypto rail's record of a gateway invoice. It
// back-references the transaction; the ledger itself only holds the
// transactionId <-> externalTxnId correlation.
type CryptoInvoice struct {
	TransactionID string
	ExternalTxnID string
	QRPayload     string
	Status        InvoiceStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExpiredAt reports whether the invoice deadline has passed at the
// given wall-clock instant
func (i *CryptoInvoice) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
