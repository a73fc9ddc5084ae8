package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-shop/internal/status"
	"ticket-shop/monitoring"
	"ticket-shop/utils"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"
	"github.com/stripe/stripe-go/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Stripe implements Gateway on top of the Stripe API. All outbound calls run
// through a circuit breaker so a gateway outage fails fast instead of piling
// up blocked checkouts.
type Stripe struct {
	api           *client.API
	webhookSecret string
	breaker       *utils.CircuitBreaker
}

func NewStripe(cfg *StripeConfig) *Stripe {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Stripe{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		breaker:       utils.NewCircuitBreaker("stripe"),
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	// Client retries of the same checkout must not open a second intent.
	params.SetIdempotencyKey(uuid.New().String())

	start := time.Now()
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.api.PaymentIntents.New(params)
	})
	monitoring.ObserveGatewayCall("create_intent", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %v", status.ErrGateway, err)
	}

	pi := result.(*stripe.PaymentIntent)
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	start := time.Now()
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.api.PaymentIntents.Get(id, nil)
	})
	monitoring.ObserveGatewayCall("retrieve_intent", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve intent %s: %v", status.ErrGateway, id, err)
	}

	pi := result.(*stripe.PaymentIntent)
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// VerifyWebhook checks the signature header against the raw body and the
// shared endpoint secret, then extracts the intent reference from the event
// envelope. Verification failures carry status.ErrBadSignature; nothing about
// the payload is trusted before this returns.
func (s *Stripe) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrBadSignature, err)
	}

	var object struct {
		ID string `json:"id"`
	}
	if len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			return nil, fmt.Errorf("%w: malformed event object: %v", status.ErrBadSignature, err)
		}
	}

	return &Event{Type: event.Type, Reference: object.ID}, nil
}
