package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kevin07696/payment-switch/internal/domain"
)

func TestInvoiceStatus_IsTerminal(t *testing.T) {
	assert.True(t, domain.InvoiceConfirmed.IsTerminal())
	assert.True(t, domain.InvoiceExpired.IsTerminal())
	assert.False(t, domain.InvoicePending.IsTerminal())
	assert.False(t, domain.InvoiceError.IsTerminal())
}

func TestCryptoInvoice_ExpiredAt(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := &domain.CryptoInvoice{ExpiresAt: deadline}

	assert.False(t, inv.ExpiredAt(deadline.Add(-time.Second)))
	assert.False(t, inv.ExpiredAt(deadline))
	assert.True(t, inv.ExpiredAt(deadline.Add(time.Second)))
}
