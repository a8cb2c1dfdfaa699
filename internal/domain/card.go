package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CardAuthorizationRequest carries the card fields for a single
// authorization attempt. It is an ephemeral value object: the PAN is
// discarded once routing is resolved and never written to the ledger.
type CardAuthorizationRequest struct {
	PAN             string
	Expiry          string // MM/YY
	CVV             string
	Amount          decimal.Decimal
	Currency        string
	AcquirerOrderID string
}

// MaskPAN returns the PAN with all but the first six (BIN) and last four
// digits replaced, e.g. 411111******1111. Short or non-numeric input is
// masked entirely.
func MaskPAN(pan string) string {
	if len(pan) < 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}

// Masked returns a loggable reference to the card
func (r *CardAuthorizationRequest) Masked() string {
	return MaskPAN(r.PAN)
}
