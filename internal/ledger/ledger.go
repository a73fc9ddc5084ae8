package ledger

import (
	"context"
	"fmt"

	"ticket-shop/internal/status"
	"ticket-shop/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Ledger owns the per-event sold/capacity counters. It is the single source
// of truth for availability; everything else (redis cache, handler reads) is
// advisory.
type Ledger struct {
	app core.App
}

func New(app core.App) *Ledger {
	return &Ledger{app: app}
}

// Reserve atomically increments the event's sold count by quantity, but only
// if capacity allows it. The check and the increment are one conditional
// UPDATE, so two concurrent reservations can never both pass on a stale read,
// even across process instances sharing the database.
//
// Returns status.ErrCapacityExceeded when the event has fewer than quantity
// tickets left, status.ErrEventNotFound when the event does not exist.
func (l *Ledger) Reserve(ctx context.Context, eventID string, quantity int) error {
	return l.ReserveIn(ctx, l.app, eventID, quantity)
}

// ReserveIn is Reserve running against a specific app instance, so callers
// holding a transaction (core.App from RunInTransaction) can make the
// increment part of their atomic unit.
func (l *Ledger) ReserveIn(ctx context.Context, app core.App, eventID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("ledger: reserve quantity must be positive, got %d", quantity)
	}

	res, err := app.DB().NewQuery(`
		UPDATE events
		SET sold = sold + {:qty},
		    sold_out = (sold + {:qty} >= capacity),
		    updated = strftime('%Y-%m-%d %H:%M:%fZ')
		WHERE id = {:event} AND sold + {:qty} <= capacity
	`).Bind(dbx.Params{"qty": quantity, "event": eventID}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("ledger: reserve %s: %w", eventID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: reserve %s: rows affected: %w", eventID, err)
	}
	if rows == 1 {
		return nil
	}

	// No row matched: either the event is missing or the capacity guard
	// rejected the increment. Disambiguate with a plain read.
	if _, err := app.FindRecordById("events", eventID); err != nil {
		return status.ErrEventNotFound
	}
	return status.ErrCapacityExceeded
}

// Availability answers "can quantity tickets be sold right now". Advisory
// only: it does not prevent a concurrent Reserve from racing past the read.
func (l *Ledger) Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error) {
	event, err := l.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}

	remaining := event.Remaining()
	return &models.Availability{
		Available: !event.SoldOut && remaining >= quantity,
		Remaining: remaining,
		SoldOut:   event.SoldOut,
	}, nil
}

// Event loads a single ledger entry.
func (l *Ledger) Event(_ context.Context, eventID string) (*models.Event, error) {
	record, err := l.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, status.ErrEventNotFound
	}
	return eventFromRecord(record), nil
}

func eventFromRecord(r *core.Record) *models.Event {
	return &models.Event{
		ID:          r.Id,
		Title:       r.GetString("title"),
		Description: r.GetString("description"),
		Category:    r.GetString("category"),
		Venue:       r.GetString("venue"),
		StartTime:   r.GetDateTime("start_time").Time(),
		EndTime:     r.GetDateTime("end_time").Time(),
		Price:       decimal.NewFromFloat(r.GetFloat("price")),
		Capacity:    r.GetInt("capacity"),
		Sold:        r.GetInt("sold"),
		SoldOut:     r.GetBool("sold_out"),
		Active:      r.GetBool("active"),
	}
}
