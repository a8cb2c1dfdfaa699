package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuthorizationDecision is the issuer's explicit answer
type AuthorizationDecision string

const (
	DecisionApproved AuthorizationDecision = "approved"
	DecisionDeclined AuthorizationDecision = "declined"
)

// IssuerAuthRequest is the outbound authorization request sent to an
// issuing bank
type IssuerAuthRequest struct {
	PAN             string
	Expiry          string
	CVV             string
	Amount          decimal.Decimal
	Currency        string
	AcquirerOrderID string
}

// IssuerAuthResult is the issuer's decision. IssuerReference is the
// issuer's opaque acknowledgment id and is present on every
// well-formed response, approved or declined.
type IssuerAuthResult struct {
	Decision        AuthorizationDecision
	IssuerReference string
	DeclineReason   string
}

// IssuerGateway talks to one issuing bank's authorization endpoint.
// Implementations are stateless request/response wrappers: they carry
// no business state, never touch the ledger, and are safe to retry.
type IssuerGateway interface {
	Authorize(ctx context.Context, issuerURL string, req *IssuerAuthRequest) (*IssuerAuthResult, error)
}
