package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rail represents the payment channel a transaction runs on
type Rail string

const (
	RailCard   Rail = "CARD"
	RailCrypto Rail = "CRYPTO"
)

// TransactionState represents the lifecycle state of a transaction
type TransactionState string

const (
	// Card path
	StateInitiated TransactionState = "INITIATED"
	StateRouted    TransactionState = "ROUTED"
	StateForwarded TransactionState = "FORWARDED"
	StateApproved  TransactionState = "APPROVED"
	StateDeclined  TransactionState = "DECLINED"
	StateFailed    TransactionState = "FAILED"

	// Crypto path (PENDING parallels ROUTED)
	StatePending   TransactionState = "PENDING"
	StateConfirmed TransactionState = "CONFIRMED"
	StateExpired   TransactionState = "EXPIRED"
)

// Failure reason codes recorded on terminal failures
const (
	ReasonUnroutable = "UNROUTABLE"
	ReasonTimeout    = "TIMEOUT"
	ReasonTransport  = "TRANSPORT_ERROR"
	ReasonExpired    = "INVOICE_EXPIRED"
)

// Transaction is the unit of work tracked by the ledger
type Transaction struct {
	ID              string
	MerchantOrderID string
	Rail            Rail
	Amount          decimal.Decimal
	Currency        string
	State           TransactionState
	// MaskedPAN keeps only a routing-safe reference to the card; the
	// full PAN is never persisted
	MaskedPAN       string
	IssuerReference string
	ExternalTxnID   string
	FailureReason   string
	AttemptCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether a transaction in this state can still change
func (s TransactionState) IsTerminal() bool {
	switch s {
	case StateApproved, StateDeclined, StateFailed, StateConfirmed, StateExpired:
		return true
	}
	return false
}

// validTransitions encodes the state machine. Terminal states have no
// outgoing edges, which is what makes them terminal.
var validTransitions = map[TransactionState][]TransactionState{
	StateInitiated: {StateRouted, StatePending, StateFailed},
	StateRouted:    {StateForwarded, StateFailed},
	StateForwarded: {StateApproved, StateDeclined, StateFailed},
	StatePending:   {StateConfirmed, StateExpired, StateFailed},
}

// CanTransition reports whether moving between the two states is a legal
// edge of the state machine
func CanTransition(from, to TransactionState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.State.IsTerminal()
}

// IsApproved reports whether the payment went through on either rail
func (t *Transaction) IsApproved() bool {
	return t.State == StateApproved || t.State == StateConfirmed
}
