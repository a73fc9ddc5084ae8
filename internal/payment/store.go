package payment

import (
	"context"
	"fmt"
	"time"

	"ticket-shop/internal/status"
	"ticket-shop/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Store owns the payment attempt records. Attempts are append-only: they are
// created once and then only move through state transitions, never deleted,
// so the collection doubles as the settlement audit trail.
type Store struct {
	app core.App
}

func NewStore(app core.App) *Store {
	return &Store{app: app}
}

// CreatePending persists a new attempt in the pending state and fills in the
// record id and creation time on the passed attempt.
func (s *Store) CreatePending(_ context.Context, attempt *models.PaymentAttempt) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return fmt.Errorf("store: payments collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("buyer", attempt.BuyerID)
	record.Set("event", attempt.EventID)
	record.Set("quantity", attempt.Quantity)
	record.Set("amount", attempt.Amount.InexactFloat64())
	record.Set("currency", attempt.Currency)
	record.Set("gateway_ref", attempt.GatewayRef)
	record.Set("status", string(models.PaymentPending))

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("store: create attempt for %s: %w", attempt.GatewayRef, err)
	}

	attempt.ID = record.Id
	attempt.State = models.PaymentPending
	attempt.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

// FindByGatewayRef looks an attempt up by its gateway reference, the
// idempotency key for all settlement traffic.
func (s *Store) FindByGatewayRef(_ context.Context, ref string) (*models.PaymentAttempt, error) {
	record, err := s.app.FindFirstRecordByData("payments", "gateway_ref", ref)
	if err != nil {
		return nil, status.ErrAttemptNotFound
	}
	return attemptFromRecord(record), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*models.PaymentAttempt, error) {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return nil, status.ErrAttemptNotFound
	}
	return attemptFromRecord(record), nil
}

// ListByBuyer returns the buyer's attempts, newest first.
func (s *Store) ListByBuyer(_ context.Context, buyerID string, limit, offset int) ([]*models.PaymentAttempt, error) {
	records, err := s.app.FindRecordsByFilter(
		"payments",
		"buyer = {:buyer}",
		"-created",
		limit,
		offset,
		dbx.Params{"buyer": buyerID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts for %s: %w", buyerID, err)
	}

	attempts := make([]*models.PaymentAttempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, attemptFromRecord(record))
	}
	return attempts, nil
}

// ClaimIn moves the attempt with the given gateway reference from pending to
// a terminal state as a single conditional UPDATE: the returned bool reports
// whether this caller won the transition. A false return with no error means
// another caller already settled the attempt.
//
// The app argument lets a surrounding transaction (core.App from
// RunInTransaction) make the claim part of its atomic unit; nil falls back to
// the store's own app.
func (s *Store) ClaimIn(ctx context.Context, app core.App, ref string, to models.PaymentState, reason string) (bool, error) {
	if !models.PaymentPending.CanTransitionTo(to) {
		return false, fmt.Errorf("store: illegal transition pending -> %s", to)
	}
	if app == nil {
		app = s.app
	}

	res, err := app.DB().NewQuery(`
		UPDATE payments
		SET status = {:to},
		    failure_reason = {:reason},
		    settled_at = strftime('%Y-%m-%d %H:%M:%fZ'),
		    updated = strftime('%Y-%m-%d %H:%M:%fZ')
		WHERE gateway_ref = {:ref} AND status = {:from}
	`).Bind(dbx.Params{
		"to":     string(to),
		"reason": reason,
		"ref":    ref,
		"from":   string(models.PaymentPending),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("store: claim %s -> %s: %w", ref, to, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim %s: rows affected: %w", ref, err)
	}
	return rows == 1, nil
}

// StatsForEvent aggregates completed attempts for an event.
func (s *Store) StatsForEvent(ctx context.Context, eventID string) (*models.EventStats, error) {
	var completed, sold int
	var revenue float64

	err := s.app.DB().NewQuery(`
		SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(amount), 0)
		FROM payments
		WHERE event = {:event} AND status = {:status}
	`).Bind(dbx.Params{
		"event":  eventID,
		"status": string(models.PaymentCompleted),
	}).WithContext(ctx).Row(&completed, &sold, &revenue)
	if err != nil {
		return nil, fmt.Errorf("store: stats for %s: %w", eventID, err)
	}

	return &models.EventStats{
		EventID:           eventID,
		TotalRevenue:      decimal.NewFromFloat(revenue),
		TicketsSold:       sold,
		CompletedPayments: completed,
	}, nil
}

func attemptFromRecord(r *core.Record) *models.PaymentAttempt {
	attempt := &models.PaymentAttempt{
		ID:            r.Id,
		BuyerID:       r.GetString("buyer"),
		EventID:       r.GetString("event"),
		Quantity:      r.GetInt("quantity"),
		Amount:        decimal.NewFromFloat(r.GetFloat("amount")),
		Currency:      r.GetString("currency"),
		GatewayRef:    r.GetString("gateway_ref"),
		State:         models.PaymentState(r.GetString("status")),
		FailureReason: r.GetString("failure_reason"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
	if settled := r.GetDateTime("settled_at").Time(); !settled.IsZero() {
		t := settled.In(time.UTC)
		attempt.SettledAt = &t
	}
	return attempt
}
