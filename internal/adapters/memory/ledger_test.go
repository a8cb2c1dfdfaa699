package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-switch/internal/adapters/memory"
	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
)

func newCardTxn(id, orderID string) *domain.Transaction {
	return &domain.Transaction{
		ID:              id,
		MerchantOrderID: orderID,
		Rail:            domain.RailCard,
		Amount:          decimal.NewFromFloat(25.00),
		Currency:        "USD",
		State:           domain.StateInitiated,
		MaskedPAN:       "411111******1111",
	}
}

func TestLedger_Create_DuplicateOrder(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))

	err := ledger.Create(ctx, newCardTxn("txn-2", "order-1"))
	assert.Equal(t, domain.ErrorCodeLedgerDuplicate, domain.GetErrorCode(err))

	// same order id on the other rail is a distinct transaction
	other := newCardTxn("txn-3", "order-1")
	other.Rail = domain.RailCrypto
	assert.NoError(t, ledger.Create(ctx, other))
}

func TestLedger_GetByMerchantOrder(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))

	txn, err := ledger.GetByMerchantOrder(ctx, "order-1", domain.RailCard)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", txn.ID)

	_, err = ledger.GetByMerchantOrder(ctx, "order-1", domain.RailCrypto)
	assert.Equal(t, domain.ErrorCodeLedgerNotFound, domain.GetErrorCode(err))
}

func TestLedger_Transition_CAS(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))

	require.NoError(t, ledger.Transition(ctx, "txn-1", domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{}))

	// a second caller expecting INITIATED has lost the race
	err := ledger.Transition(ctx, "txn-1", domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{})
	assert.Equal(t, domain.ErrorCodeLedgerStateConflict, domain.GetErrorCode(err))

	// transitions outside the state machine are rejected outright
	err = ledger.Transition(ctx, "txn-1", domain.StateRouted, domain.StateApproved, ports.TransitionUpdate{})
	assert.Equal(t, domain.ErrorCodeLedgerTerminal, domain.GetErrorCode(err))
}

func TestLedger_Transition_RecordsUpdateFields(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))
	require.NoError(t, ledger.Transition(ctx, "txn-1", domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{}))

	ref := "AUTH-42"
	require.NoError(t, ledger.Transition(ctx, "txn-1", domain.StateRouted, domain.StateForwarded, ports.TransitionUpdate{IssuerReference: &ref}))

	reason := "insufficient_funds"
	require.NoError(t, ledger.Transition(ctx, "txn-1", domain.StateForwarded, domain.StateDeclined, ports.TransitionUpdate{FailureReason: &reason}))

	txn, err := ledger.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeclined, txn.State)
	assert.Equal(t, "AUTH-42", txn.IssuerReference)
	assert.Equal(t, "insufficient_funds", txn.FailureReason)
}

// Two authorizers race the same transaction with conflicting decisions.
// Exactly one must win; the loser must observe a state conflict at the
// ROUTED -> FORWARDED swap and never overwrite the winner's outcome.
func TestLedger_Transition_ConcurrentDecisions(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))
	require.NoError(t, ledger.Transition(ctx, "txn-1", domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{}))

	decide := func(ref string, outcome domain.TransactionState) error {
		r := ref
		if err := ledger.Transition(ctx, "txn-1", domain.StateRouted, domain.StateForwarded, ports.TransitionUpdate{IssuerReference: &r}); err != nil {
			return err
		}
		return ledger.Transition(ctx, "txn-1", domain.StateForwarded, outcome, ports.TransitionUpdate{})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = decide("AUTH-A", domain.StateApproved)
	}()
	go func() {
		defer wg.Done()
		errs[1] = decide("AUTH-B", domain.StateDeclined)
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.Equal(t, domain.ErrorCodeLedgerStateConflict, domain.GetErrorCode(err))
		}
	}
	assert.Equal(t, 1, winners)

	txn, err := ledger.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.True(t, txn.State.IsTerminal())
	if txn.State == domain.StateApproved {
		assert.Equal(t, "AUTH-A", txn.IssuerReference)
	} else {
		assert.Equal(t, domain.StateDeclined, txn.State)
		assert.Equal(t, "AUTH-B", txn.IssuerReference)
	}
}

func TestLedger_RecordAttempt(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))

	require.NoError(t, ledger.RecordAttempt(ctx, "txn-1"))
	require.NoError(t, ledger.RecordAttempt(ctx, "txn-1"))

	txn, err := ledger.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, txn.AttemptCount)

	err = ledger.RecordAttempt(ctx, "missing")
	assert.Equal(t, domain.ErrorCodeLedgerNotFound, domain.GetErrorCode(err))
}

func TestLedger_BindExternalID(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-1", "order-1")))
	require.NoError(t, ledger.Create(ctx, newCardTxn("txn-2", "order-2")))

	require.NoError(t, ledger.BindExternalID(ctx, "txn-1", "ext-abc"))

	txn, err := ledger.GetByExternalID(ctx, "ext-abc")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", txn.ID)

	// rebinding to the same transaction is idempotent
	assert.NoError(t, ledger.BindExternalID(ctx, "txn-1", "ext-abc"))

	// the same external id cannot correlate two transactions
	err = ledger.BindExternalID(ctx, "txn-2", "ext-abc")
	assert.Equal(t, domain.ErrorCodeLedgerDuplicate, domain.GetErrorCode(err))

	_, err = ledger.GetByExternalID(ctx, "ext-unknown")
	assert.Equal(t, domain.ErrorCodeLedgerNotFound, domain.GetErrorCode(err))
}

func TestLedger_ListByState(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	for _, id := range []string{"txn-1", "txn-2", "txn-3"} {
		require.NoError(t, ledger.Create(ctx, newCardTxn(id, "order-"+id)))
	}
	require.NoError(t, ledger.Transition(ctx, "txn-2", domain.StateInitiated, domain.StateRouted, ports.TransitionUpdate{}))

	initiated, err := ledger.ListByState(ctx, domain.StateInitiated, 0)
	require.NoError(t, err)
	assert.Len(t, initiated, 2)

	limited, err := ledger.ListByState(ctx, domain.StateInitiated, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	routed, err := ledger.ListByState(ctx, domain.StateRouted, 0)
	require.NoError(t, err)
	require.Len(t, routed, 1)
	assert.Equal(t, "txn-2", routed[0].ID)
}
