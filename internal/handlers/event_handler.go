package handlers

import (
	"errors"
	"net/http"

	"ticket-shop/internal/ledger"
	"ticket-shop/internal/payment"
	"ticket-shop/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	ledger       *ledger.Ledger
	availability payment.AvailabilityChecker
	store        *payment.Store
}

func NewEventHandler(l *ledger.Ledger, availability payment.AvailabilityChecker, store *payment.Store) *EventHandler {
	return &EventHandler{ledger: l, availability: availability, store: store}
}

// GetAvailability - advisory "can N tickets be sold right now"
func (h *EventHandler) GetAvailability(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	quantity := queryInt(e, "quantity", 1)
	if quantity <= 0 {
		return apis.NewBadRequestError("quantity must be positive", nil)
	}

	avail, err := h.availability.Availability(e.Request.Context(), eventID, quantity)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", err)
	default:
		return apis.NewInternalServerError("Failed to check availability", err)
	}

	return e.JSON(http.StatusOK, avail)
}

// GetEventStats - sales aggregates for one event (superuser only, enforced
// by the route binding)
func (h *EventHandler) GetEventStats(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	event, err := h.ledger.Event(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}

	stats, err := h.store.StatsForEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewInternalServerError("Failed to aggregate stats", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id":           event.ID,
		"title":              event.Title,
		"capacity":           event.Capacity,
		"sold":               event.Sold,
		"sold_out":           event.SoldOut,
		"total_revenue":      stats.TotalRevenue,
		"tickets_sold":       stats.TicketsSold,
		"completed_payments": stats.CompletedPayments,
	})
}
