package gateway

import "context"

// Intent statuses surfaced to callers. Only succeeded matters for
// settlement; everything else is "not paid yet" from the engine's view.
const (
	IntentSucceeded = "succeeded"
)

// Webhook event types the reconciler recognizes. All other types are
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// IntentRequest describes a payment intent to open with the gateway. Amounts
// are in the currency's minor unit (cents), which is how gateways bill.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Intent is the gateway's view of a payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Event is a verified webhook notification, normalized to the fields the
// reconciler needs.
type Event struct {
	Type      string
	Reference string
}

// Gateway is the port to the external payment provider. The orchestrator and
// reconciler only ever talk to this interface, so tests run against fakes.
type Gateway interface {
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	VerifyWebhook(payload []byte, sigHeader string) (*Event, error)
}
