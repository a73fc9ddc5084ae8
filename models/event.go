package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Venue       string          `json:"venue"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
	Sold        int             `json:"sold"`
	SoldOut     bool            `json:"sold_out"`
	Active      bool            `json:"active"`
}

// Remaining reports how many tickets are still unsold. The value is advisory:
// a concurrent sale can invalidate it right after the read.
func (e *Event) Remaining() int {
	if r := e.Capacity - e.Sold; r > 0 {
		return r
	}
	return 0
}

// Availability is the advisory answer to "can N tickets be sold right now".
type Availability struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
	SoldOut   bool `json:"sold_out"`
}

type EventStats struct {
	EventID           string          `json:"event_id"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TicketsSold       int             `json:"tickets_sold"`
	CompletedPayments int             `json:"completed_payments"`
}
