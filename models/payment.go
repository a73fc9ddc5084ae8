package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState enumerates the lifecycle of a payment attempt.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
)

// paymentTransitions is the full transition table. Anything not listed here
// is illegal; terminal states have no outgoing edges.
var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {},
	PaymentFailed:    {},
}

// Terminal reports whether the state has no outgoing transitions.
func (s PaymentState) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// CanTransitionTo reports whether moving to next is a legal transition.
func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	for _, t := range paymentTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s PaymentState) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// PaymentAttempt is one checkout's record, from intent creation to terminal
// outcome. Records are never deleted; they form the audit trail.
type PaymentAttempt struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id"`
	EventID       string          `json:"event_id"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	GatewayRef    string          `json:"gateway_ref"`
	State         PaymentState    `json:"state"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

// PaymentNotification is the normalized form of a gateway webhook event after
// signature verification.
type PaymentNotification struct {
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}
