package webhook

import (
	"context"
	"errors"
	"log/slog"

	"ticket-shop/internal/gateway"
	"ticket-shop/internal/payment"
	"ticket-shop/internal/status"
	"ticket-shop/monitoring"
)

// Verifier authenticates a raw webhook delivery. Implemented by the gateway
// adapter; faked in tests.
type Verifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (*gateway.Event, error)
}

// Settler drives payment attempts to their terminal state.
type Settler interface {
	Commit(ctx context.Context, ref string) (*payment.SettlementResult, error)
	Fail(ctx context.Context, ref, reason string) (*payment.SettlementResult, error)
}

// Outcome reports how a delivery was handled. Handled is false for event
// types the engine does not care about and for references it has never seen;
// both are acknowledged so the gateway stops redelivering them.
type Outcome struct {
	Type    string
	Handled bool
	Result  *payment.SettlementResult
}

// Reconciler consumes gateway notifications and applies them to the payment
// state machine. It tolerates duplicates (settlement is idempotent per
// reference) and out-of-order delivery (terminal states absorb late
// notifications); an unverifiable signature is rejected before anything is
// parsed or touched.
type Reconciler struct {
	verifier Verifier
	settler  Settler
}

func NewReconciler(verifier Verifier, settler Settler) *Reconciler {
	return &Reconciler{verifier: verifier, settler: settler}
}

func (r *Reconciler) Handle(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	event, err := r.verifier.VerifyWebhook(payload, sigHeader)
	if err != nil {
		monitoring.TrackWebhookEvent("unverified", "rejected")
		slog.Warn("webhook: rejected delivery", "error", err)
		return nil, err
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		return r.apply(ctx, event, func() (*payment.SettlementResult, error) {
			return r.settler.Commit(ctx, event.Reference)
		})

	case gateway.EventPaymentFailed:
		return r.apply(ctx, event, func() (*payment.SettlementResult, error) {
			return r.settler.Fail(ctx, event.Reference, "gateway reported failure")
		})

	default:
		slog.Info("webhook: ignoring event type", "type", event.Type)
		monitoring.TrackWebhookEvent(event.Type, "ignored")
		return &Outcome{Type: event.Type}, nil
	}
}

func (r *Reconciler) apply(_ context.Context, event *gateway.Event, settle func() (*payment.SettlementResult, error)) (*Outcome, error) {
	result, err := settle()
	switch {
	case err == nil:

	case errors.Is(err, status.ErrAttemptNotFound):
		// A reference we never created. Redelivery cannot fix that, so
		// acknowledge and keep the audit trail in the logs.
		slog.Warn("webhook: unknown gateway reference", "type", event.Type, "gateway_ref", event.Reference)
		monitoring.TrackWebhookEvent(event.Type, "unknown_reference")
		return &Outcome{Type: event.Type}, nil

	case errors.Is(err, status.ErrCapacityExceeded):
		// Expected outcome of a lost capacity race: the attempt is durably
		// failed. Acknowledge; retrying cannot succeed.
		slog.Info("webhook: commit rejected by capacity guard", "gateway_ref", event.Reference)
		monitoring.TrackWebhookEvent(event.Type, "capacity_exceeded")
		return &Outcome{Type: event.Type, Handled: true, Result: result}, nil

	case errors.Is(err, status.ErrConflict):
		// Out-of-order delivery against a terminal record. The terminal
		// state wins; acknowledge.
		slog.Info("webhook: conflicting delivery absorbed", "type", event.Type, "gateway_ref", event.Reference)
		monitoring.TrackWebhookEvent(event.Type, "conflict")
		return &Outcome{Type: event.Type, Handled: true, Result: result}, nil

	default:
		// Infrastructure failure: let the gateway retry.
		monitoring.TrackWebhookEvent(event.Type, "error")
		return nil, err
	}

	monitoring.TrackWebhookEvent(event.Type, "processed")
	return &Outcome{Type: event.Type, Handled: true, Result: result}, nil
}
