package psp_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-switch/internal/adapters/memory"
	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/internal/services/psp"
	"github.com/kevin07696/payment-switch/pkg/logging"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

// fakeCardRail stands in for the switch. The transaction id is minted
// inside SubmitPayment, so the fake receives it at call time and drives
// the shared ledger the way the real switch would.
type fakeCardRail struct {
	calls     int
	authorize func(ctx context.Context, txnID string, card *domain.CardAuthorizationRequest) (*domain.Transaction, error)
}

func (f *fakeCardRail) Authorize(ctx context.Context, txnID string, card *domain.CardAuthorizationRequest) (*domain.Transaction, error) {
	f.calls++
	return f.authorize(ctx, txnID, card)
}

// fakeCryptoRail stands in for the crypto rail service
type fakeCryptoRail struct {
	calls  int
	create func(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error)
}

func (f *fakeCryptoRail) CreateInvoice(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
	f.calls++
	return f.create(ctx, txn)
}

func cardIntent(orderID string) *psp.PaymentIntent {
	return &psp.PaymentIntent{
		MerchantOrderID: orderID,
		Rail:            domain.RailCard,
		Amount:          decimal.NewFromFloat(49.99),
		Currency:        "USD",
		Card: &psp.CardPayload{
			PAN:    "4111111111111111",
			Expiry: "12/27",
			CVV:    "123",
		},
	}
}

func cryptoIntent(orderID string) *psp.PaymentIntent {
	return &psp.PaymentIntent{
		MerchantOrderID: orderID,
		Rail:            domain.RailCrypto,
		Amount:          decimal.NewFromFloat(0.001),
		Currency:        "BTC",
	}
}

// approvingCardRail settles the ledger row to APPROVED, the way the
// real switch does through its compare-and-swap transitions
func approvingCardRail(ledger *memory.Ledger, ref string) *fakeCardRail {
	return &fakeCardRail{authorize: func(ctx context.Context, txnID string, card *domain.CardAuthorizationRequest) (*domain.Transaction, error) {
		if err := ledger.Transition(ctx, txnID, domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{}); err != nil {
			return nil, err
		}
		r := ref
		if err := ledger.Transition(ctx, txnID, domain.StateRouted, domain.StateForwarded, ports.TransitionUpdate{IssuerReference: &r}); err != nil {
			return nil, err
		}
		if err := ledger.Transition(ctx, txnID, domain.StateForwarded, domain.StateApproved, ports.TransitionUpdate{}); err != nil {
			return nil, err
		}
		return ledger.GetByID(ctx, txnID)
	}}
}

func TestSubmitPayment_Card_Approved(t *testing.T) {
	ledger := memory.NewLedger()
	cardRail := approvingCardRail(ledger, "AUTH-001")
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), cardRail, &fakeCryptoRail{}, nil, logging.Nop())

	result, err := svc.SubmitPayment(context.Background(), cardIntent("order-1"))

	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, result.State)
	assert.Equal(t, 1, cardRail.calls)

	// the ledger row carries the masked card, never the PAN
	txn, err := ledger.GetByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "411111******1111", txn.MaskedPAN)
}

func TestSubmitPayment_DuplicateOrder_ReturnsSameTransactionOnce(t *testing.T) {
	ledger := memory.NewLedger()
	cardRail := approvingCardRail(ledger, "AUTH-001")
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), cardRail, &fakeCryptoRail{}, nil, logging.Nop())

	first, err := svc.SubmitPayment(context.Background(), cardIntent("order-1"))
	require.NoError(t, err)

	second, err := svc.SubmitPayment(context.Background(), cardIntent("order-1"))
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, domain.StateApproved, second.State)
	// the downstream rail ran exactly once
	assert.Equal(t, 1, cardRail.calls)
}

func TestSubmitPayment_SameOrderOnBothRails_DistinctTransactions(t *testing.T) {
	ledger := memory.NewLedger()
	cardRail := approvingCardRail(ledger, "AUTH-001")
	cryptoRail := &fakeCryptoRail{create: func(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
		if err := ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StatePending, ports.TransitionUpdate{}); err != nil {
			return nil, err
		}
		return &domain.CryptoInvoice{
			TransactionID: txn.ID,
			QRPayload:     "bitcoin:addr",
			Status:        domain.InvoicePending,
			ExpiresAt:     time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC),
		}, nil
	}}
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), cardRail, cryptoRail, nil, logging.Nop())

	card, err := svc.SubmitPayment(context.Background(), cardIntent("order-1"))
	require.NoError(t, err)

	crypto, err := svc.SubmitPayment(context.Background(), cryptoIntent("order-1"))
	require.NoError(t, err)

	assert.NotEqual(t, card.TransactionID, crypto.TransactionID)
}

func TestSubmitPayment_Crypto_ReturnsInvoiceDetails(t *testing.T) {
	ledger := memory.NewLedger()
	expires := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	cryptoRail := &fakeCryptoRail{create: func(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
		if err := ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StatePending, ports.TransitionUpdate{}); err != nil {
			return nil, err
		}
		return &domain.CryptoInvoice{
			TransactionID: txn.ID,
			ExternalTxnID: "ext-abc",
			QRPayload:     "bitcoin:addr?amount=0.001",
			Status:        domain.InvoicePending,
			ExpiresAt:     expires,
		}, nil
	}}
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), &fakeCardRail{}, cryptoRail, nil, logging.Nop())

	result, err := svc.SubmitPayment(context.Background(), cryptoIntent("order-1"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, result.State)
	assert.Equal(t, "bitcoin:addr?amount=0.001", result.QRPayload)
	assert.Equal(t, "2025-06-01T12:15:00Z", result.ExpiresAt)
}

func TestSubmitPayment_Crypto_CreateFailure_ReturnsLedgerState(t *testing.T) {
	ledger := memory.NewLedger()
	cryptoRail := &fakeCryptoRail{create: func(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
		reason := domain.ReasonTransport
		if err := ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StateFailed, ports.TransitionUpdate{FailureReason: &reason}); err != nil {
			return nil, err
		}
		return nil, domain.ErrGatewayNetwork
	}}
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), &fakeCardRail{}, cryptoRail, nil, logging.Nop())

	result, err := svc.SubmitPayment(context.Background(), cryptoIntent("order-1"))

	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, domain.ReasonTransport, result.FailureReason)
}

func TestSubmitPayment_Validation(t *testing.T) {
	svc := psp.NewService(memory.NewLedger(), memory.NewInvoiceStore(), &fakeCardRail{}, &fakeCryptoRail{}, nil, logging.Nop())

	tests := []struct {
		name   string
		mutate func(*psp.PaymentIntent)
	}{
		{"missing merchant order id", func(i *psp.PaymentIntent) { i.MerchantOrderID = "" }},
		{"unknown rail", func(i *psp.PaymentIntent) { i.Rail = "WIRE" }},
		{"zero amount", func(i *psp.PaymentIntent) { i.Amount = decimal.Zero }},
		{"negative amount", func(i *psp.PaymentIntent) { i.Amount = decimal.NewFromFloat(-1) }},
		{"missing currency", func(i *psp.PaymentIntent) { i.Currency = "" }},
		{"card rail without card", func(i *psp.PaymentIntent) { i.Card = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := cardIntent("order-1")
			tt.mutate(intent)
			_, err := svc.SubmitPayment(context.Background(), intent)
			assert.Equal(t, domain.ErrorCodeValidationFailed, domain.GetErrorCode(err))
		})
	}
}

func TestGetStatus_LedgerReadOnly(t *testing.T) {
	ledger := memory.NewLedger()
	cardRail := approvingCardRail(ledger, "AUTH-001")
	svc := psp.NewService(ledger, memory.NewInvoiceStore(), cardRail, &fakeCryptoRail{}, nil, logging.Nop())

	submitted, err := svc.SubmitPayment(context.Background(), cardIntent("order-1"))
	require.NoError(t, err)

	// repeated polls of a terminal transaction return the same state and
	// never re-contact a downstream rail
	for i := 0; i < 3; i++ {
		status, err := svc.GetStatus(context.Background(), submitted.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateApproved, status.State)
	}
	assert.Equal(t, 1, cardRail.calls)

	_, err = svc.GetStatus(context.Background(), "txn-unknown")
	assert.Equal(t, domain.ErrorCodeLedgerNotFound, domain.GetErrorCode(err))
}

func TestGetStatus_PendingCryptoPastDeadline_ReportsExpired(t *testing.T) {
	ledger := memory.NewLedger()
	store := memory.NewInvoiceStore()
	clock := &timeutil.FixedClock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cryptoRail := &fakeCryptoRail{create: func(ctx context.Context, txn *domain.Transaction) (*domain.CryptoInvoice, error) {
		if err := ledger.Transition(ctx, txn.ID, domain.StateInitiated, domain.StatePending, ports.TransitionUpdate{}); err != nil {
			return nil, err
		}
		inv := &domain.CryptoInvoice{
			TransactionID: txn.ID,
			ExternalTxnID: "ext-abc",
			QRPayload:     "bitcoin:addr",
			Status:        domain.InvoicePending,
			ExpiresAt:     clock.Now().Add(-time.Minute),
		}
		if err := store.Save(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	}}
	svc := psp.NewService(ledger, store, &fakeCardRail{}, cryptoRail, clock, logging.Nop())

	submitted, err := svc.SubmitPayment(context.Background(), cryptoIntent("order-1"))
	require.NoError(t, err)

	// the invoice deadline has lapsed but no sweep has run yet. Status
	// reads report EXPIRED without waiting for the poller and without
	// touching the rail again.
	status, err := svc.GetStatus(context.Background(), submitted.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, status.State)
	assert.Equal(t, domain.ReasonExpired, status.FailureReason)
	assert.Equal(t, 1, cryptoRail.calls)

	// the ledger row itself settles through the poller or a callback
	txn, err := ledger.GetByID(context.Background(), submitted.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, txn.State)
}
