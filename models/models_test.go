package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentState_TransitionTable(t *testing.T) {
	// Pending is the only state with outgoing edges.
	assert.True(t, PaymentPending.CanTransitionTo(PaymentCompleted))
	assert.True(t, PaymentPending.CanTransitionTo(PaymentFailed))
	assert.False(t, PaymentPending.CanTransitionTo(PaymentPending))

	// Terminal states reject everything, including resurrection.
	assert.False(t, PaymentCompleted.CanTransitionTo(PaymentFailed))
	assert.False(t, PaymentCompleted.CanTransitionTo(PaymentPending))
	assert.False(t, PaymentFailed.CanTransitionTo(PaymentCompleted))
	assert.False(t, PaymentFailed.CanTransitionTo(PaymentPending))
}

func TestPaymentState_Terminal(t *testing.T) {
	assert.False(t, PaymentPending.Terminal())
	assert.True(t, PaymentCompleted.Terminal())
	assert.True(t, PaymentFailed.Terminal())
}

func TestPaymentState_Valid(t *testing.T) {
	assert.True(t, PaymentPending.Valid())
	assert.True(t, PaymentCompleted.Valid())
	assert.True(t, PaymentFailed.Valid())
	assert.False(t, PaymentState("processing").Valid())
	assert.False(t, PaymentState("").Valid())
}

func TestEvent_Remaining(t *testing.T) {
	e := Event{Capacity: 100, Sold: 37}
	assert.Equal(t, 63, e.Remaining())

	e.Sold = 100
	assert.Equal(t, 0, e.Remaining())

	// Sold should never exceed capacity, but Remaining must not go negative
	// even if a bad row sneaks in.
	e.Sold = 120
	assert.Equal(t, 0, e.Remaining())
}
