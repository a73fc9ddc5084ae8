package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-shop/internal/gateway"
	"ticket-shop/internal/status"
	"ticket-shop/models"
	"ticket-shop/monitoring"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Failure reasons recorded on attempts that end up failed.
const (
	ReasonCapacityExceeded = "capacity_exceeded"
	ReasonGatewayFailed    = "gateway_failed"
	ReasonExpired          = "expired"
)

// TxRunner is the slice of core.App the orchestrator needs to make the
// commit step atomic. Satisfied by any PocketBase app.
type TxRunner interface {
	RunInTransaction(fn func(txApp core.App) error) error
}

// TicketLedger is the orchestrator's view of the authoritative counters.
type TicketLedger interface {
	ReserveIn(ctx context.Context, app core.App, eventID string, quantity int) error
	Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error)
	Event(ctx context.Context, eventID string) (*models.Event, error)
}

// AttemptStore is the orchestrator's view of the payment record store.
type AttemptStore interface {
	CreatePending(ctx context.Context, attempt *models.PaymentAttempt) error
	FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentAttempt, error)
	ClaimIn(ctx context.Context, app core.App, ref string, to models.PaymentState, reason string) (bool, error)
}

// AvailabilityChecker serves advisory availability reads, typically from a
// short-lived cache in front of the ledger.
type AvailabilityChecker interface {
	Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error)
	Invalidate(ctx context.Context, eventID string) error
}

// Notifier is told about terminal settlements so it can push the outcome to
// the buyer. Notification failures never affect settlement.
type Notifier interface {
	PaymentSucceeded(attempt *models.PaymentAttempt)
	PaymentFailed(attempt *models.PaymentAttempt, reason string)
}

// DeadlineIndex tracks when pending attempts expire, for the sweeper.
type DeadlineIndex interface {
	Track(ctx context.Context, ref string, deadline time.Time) error
	Clear(ctx context.Context, ref string) error
}

// SettlementResult reports what a Commit/Fail call did.
type SettlementResult struct {
	AttemptID string              `json:"attempt_id"`
	State     models.PaymentState `json:"state"`
	Applied   bool                `json:"applied"`  // this call performed the transition
	Conflict  bool                `json:"conflict"` // illegal transition absorbed as no-op
	Reason    string              `json:"reason,omitempty"`
}

// CreateAttemptRequest is one buyer's checkout for one event.
type CreateAttemptRequest struct {
	BuyerID  string `json:"buyer_id"`
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

type CreateAttemptResult struct {
	AttemptID    string          `json:"attempt_id"`
	GatewayRef   string          `json:"gateway_ref"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// Options carries the orchestrator's optional collaborators and tuning.
type Options struct {
	Availability   AvailabilityChecker // defaults to uncached ledger reads
	Notifier       Notifier            // optional
	Deadlines      DeadlineIndex       // optional
	Currency       string
	PaymentTimeout time.Duration
}

// Orchestrator creates payment attempts and drives them to a terminal state
// exactly once. All collaborators are injected so the whole settlement core
// runs against in-memory fakes in tests.
type Orchestrator struct {
	tx        TxRunner
	ledger    TicketLedger
	store     AttemptStore
	gateway   gateway.Gateway
	advisory  AvailabilityChecker
	notifier  Notifier
	deadlines DeadlineIndex

	currency   string
	paymentTTL time.Duration
}

func NewOrchestrator(tx TxRunner, ledger TicketLedger, store AttemptStore, gw gateway.Gateway, opts Options) *Orchestrator {
	advisory := opts.Availability
	if advisory == nil {
		advisory = uncachedAvailability{ledger}
	}
	currency := opts.Currency
	if currency == "" {
		currency = "usd"
	}
	ttl := opts.PaymentTimeout
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Orchestrator{
		tx:         tx,
		ledger:     ledger,
		store:      store,
		gateway:    gw,
		advisory:   advisory,
		notifier:   opts.Notifier,
		deadlines:  opts.Deadlines,
		currency:   currency,
		paymentTTL: ttl,
	}
}

// CreateAttempt opens a checkout: advisory availability check, gateway
// intent, pending record. When the gateway call fails nothing is persisted.
// The advisory check only provides fast-fail UX; the commit-time reserve is
// what actually prevents overselling.
func (o *Orchestrator) CreateAttempt(ctx context.Context, req CreateAttemptRequest) (*CreateAttemptResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("payment: quantity must be positive, got %d", req.Quantity)
	}

	event, err := o.ledger.Event(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Active {
		return nil, status.ErrEventNotFound
	}

	avail, err := o.advisory.Availability(ctx, req.EventID, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, status.ErrUnavailable
	}

	// Amount is fixed here and never recomputed, even if the event price
	// changes before settlement.
	amount := event.Price.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2)

	intent, err := o.gateway.CreateIntent(ctx, &gateway.IntentRequest{
		AmountMinor: amount.Shift(2).IntPart(),
		Currency:    o.currency,
		Metadata: map[string]string{
			"buyer_id":    req.BuyerID,
			"event_id":    req.EventID,
			"quantity":    fmt.Sprintf("%d", req.Quantity),
			"event_title": event.Title,
		},
	})
	if err != nil {
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		BuyerID:    req.BuyerID,
		EventID:    req.EventID,
		Quantity:   req.Quantity,
		Amount:     amount,
		Currency:   o.currency,
		GatewayRef: intent.ID,
		State:      models.PaymentPending,
	}
	if err := o.store.CreatePending(ctx, attempt); err != nil {
		// The intent stays open at the gateway; it expires on its own and
		// can never settle without a record here.
		return nil, err
	}

	if o.deadlines != nil {
		if err := o.deadlines.Track(ctx, intent.ID, time.Now().Add(o.paymentTTL)); err != nil {
			slog.Warn("payment: tracking attempt deadline", "gateway_ref", intent.ID, "error", err)
		}
	}
	monitoring.TrackAttemptCreated(req.EventID)

	return &CreateAttemptResult{
		AttemptID:    attempt.ID,
		GatewayRef:   intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     o.currency,
	}, nil
}

// errSettledElsewhere aborts the commit transaction when a concurrent caller
// claimed the attempt first, rolling back this caller's ledger increment.
var errSettledElsewhere = errors.New("payment: attempt settled by concurrent caller")

// Commit settles the attempt identified by its gateway reference: the ledger
// increment and the pending -> completed transition happen in one database
// transaction, so the increment is applied exactly once per attempt no matter
// how many duplicate or concurrent commits arrive.
//
// When the authoritative reserve loses a capacity race the attempt is durably
// failed in the same transaction and status.ErrCapacityExceeded is returned:
// that is the expected outcome of a lost race, never a transient error.
func (o *Orchestrator) Commit(ctx context.Context, ref string) (*SettlementResult, error) {
	attempt, err := o.store.FindByGatewayRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	if result, err, done := o.resolveTerminal(attempt, models.PaymentCompleted); done {
		return result, err
	}

	var result *SettlementResult
	txErr := o.tx.RunInTransaction(func(txApp core.App) error {
		if err := o.ledger.ReserveIn(ctx, txApp, attempt.EventID, attempt.Quantity); err != nil {
			if errors.Is(err, status.ErrCapacityExceeded) {
				// The decisive oversell guard said no. Fail the attempt in
				// the same transaction; the conditional update wrote nothing
				// so there is no increment to undo.
				claimed, cerr := o.store.ClaimIn(ctx, txApp, ref, models.PaymentFailed, ReasonCapacityExceeded)
				if cerr != nil {
					return cerr
				}
				if !claimed {
					return errSettledElsewhere
				}
				result = &SettlementResult{
					AttemptID: attempt.ID,
					State:     models.PaymentFailed,
					Applied:   true,
					Reason:    ReasonCapacityExceeded,
				}
				return nil
			}
			return err
		}

		claimed, err := o.store.ClaimIn(ctx, txApp, ref, models.PaymentCompleted, "")
		if err != nil {
			return err
		}
		if !claimed {
			// Someone else settled the attempt between our read and this
			// transaction. Roll back the increment.
			return errSettledElsewhere
		}

		result = &SettlementResult{
			AttemptID: attempt.ID,
			State:     models.PaymentCompleted,
			Applied:   true,
		}
		return nil
	})

	switch {
	case txErr == nil:
	case errors.Is(txErr, errSettledElsewhere):
		// Resolve the race by re-reading the terminal state.
		settled, err := o.store.FindByGatewayRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		result, err, _ := o.resolveTerminal(settled, models.PaymentCompleted)
		return result, err
	default:
		return nil, txErr
	}

	o.finishSettlement(ctx, attempt, result)
	if result.State == models.PaymentFailed {
		return result, status.ErrCapacityExceeded
	}
	return result, nil
}

// Fail moves a pending attempt to failed. Idempotent: failing an already
// failed attempt is a silent no-op, failing a completed one is absorbed and
// reported via the conflict flag. Used by the webhook reconciler and by the
// expiry sweeper.
func (o *Orchestrator) Fail(ctx context.Context, ref, reason string) (*SettlementResult, error) {
	attempt, err := o.store.FindByGatewayRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	if attempt.State.Terminal() {
		return &SettlementResult{
			AttemptID: attempt.ID,
			State:     attempt.State,
			Conflict:  attempt.State == models.PaymentCompleted,
			Reason:    attempt.FailureReason,
		}, nil
	}

	claimed, err := o.store.ClaimIn(ctx, nil, ref, models.PaymentFailed, reason)
	if err != nil {
		return nil, err
	}
	if !claimed {
		settled, err := o.store.FindByGatewayRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{
			AttemptID: settled.ID,
			State:     settled.State,
			Conflict:  settled.State == models.PaymentCompleted,
			Reason:    settled.FailureReason,
		}, nil
	}

	result := &SettlementResult{
		AttemptID: attempt.ID,
		State:     models.PaymentFailed,
		Applied:   true,
		Reason:    reason,
	}
	o.finishSettlement(ctx, attempt, result)
	return result, nil
}

// Confirm is the synchronous confirmation path: the client hands over the
// gateway reference, we ask the gateway for the intent's status and commit
// only if the payment actually succeeded there.
func (o *Orchestrator) Confirm(ctx context.Context, ref string) (*SettlementResult, error) {
	intent, err := o.gateway.RetrieveIntent(ctx, ref)
	if err != nil {
		return nil, err
	}
	if intent.Status != gateway.IntentSucceeded {
		return nil, status.ErrPaymentNotSucceeded
	}
	return o.Commit(ctx, ref)
}

// resolveTerminal maps an already terminal attempt to the idempotent result
// of an incoming transition request. done is false when the attempt is still
// pending and the transition has to run for real.
func (o *Orchestrator) resolveTerminal(attempt *models.PaymentAttempt, want models.PaymentState) (*SettlementResult, error, bool) {
	switch attempt.State {
	case models.PaymentCompleted:
		return &SettlementResult{
			AttemptID: attempt.ID,
			State:     models.PaymentCompleted,
			Conflict:  want != models.PaymentCompleted,
		}, nil, true
	case models.PaymentFailed:
		result := &SettlementResult{
			AttemptID: attempt.ID,
			State:     models.PaymentFailed,
			Conflict:  want == models.PaymentCompleted,
			Reason:    attempt.FailureReason,
		}
		if want == models.PaymentCompleted {
			// Cannot resurrect a failed attempt.
			return result, status.ErrConflict, true
		}
		return result, nil, true
	}
	return nil, nil, false
}

// finishSettlement handles the non-transactional aftermath of a terminal
// transition: metrics, deadline cleanup, cache invalidation, notifications.
func (o *Orchestrator) finishSettlement(ctx context.Context, attempt *models.PaymentAttempt, result *SettlementResult) {
	if o.deadlines != nil {
		if err := o.deadlines.Clear(ctx, attempt.GatewayRef); err != nil {
			slog.Warn("payment: clearing attempt deadline", "gateway_ref", attempt.GatewayRef, "error", err)
		}
	}

	switch result.State {
	case models.PaymentCompleted:
		monitoring.TrackSettlement("completed", "")
		monitoring.TrackTicketsSold(attempt.EventID, attempt.Quantity)
		if err := o.advisory.Invalidate(ctx, attempt.EventID); err != nil {
			slog.Warn("payment: invalidating availability cache", "event_id", attempt.EventID, "error", err)
		}
		if o.notifier != nil {
			go o.notifier.PaymentSucceeded(attempt)
		}
	case models.PaymentFailed:
		monitoring.TrackSettlement("failed", result.Reason)
		if result.Reason == ReasonCapacityExceeded {
			monitoring.TrackOversellRejection(attempt.EventID)
		}
		if o.notifier != nil {
			go o.notifier.PaymentFailed(attempt, result.Reason)
		}
	}
}

// uncachedAvailability serves advisory reads straight from the ledger when no
// cache is configured.
type uncachedAvailability struct {
	ledger TicketLedger
}

func (u uncachedAvailability) Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error) {
	return u.ledger.Availability(ctx, eventID, quantity)
}

func (u uncachedAvailability) Invalidate(context.Context, string) error { return nil }
