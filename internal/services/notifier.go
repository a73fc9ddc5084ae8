package services

import (
	"fmt"
	"log/slog"
	"net/mail"

	"ticket-shop/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	pubnub "github.com/pubnub/go"
)

// BuyerNotifier pushes settlement outcomes to the buyer: a realtime message
// on the buyer's channel, plus a confirmation email on success. Everything
// here is best effort; the settlement itself is already durable.
type BuyerNotifier struct {
	app    core.App
	pubnub *pubnub.PubNub
}

func NewBuyerNotifier(app core.App, pn *pubnub.PubNub) *BuyerNotifier {
	return &BuyerNotifier{app: app, pubnub: pn}
}

func (n *BuyerNotifier) PaymentSucceeded(attempt *models.PaymentAttempt) {
	n.publish(attempt.BuyerID, map[string]any{
		"type":        "payment_success",
		"gateway_ref": attempt.GatewayRef,
		"event_id":    attempt.EventID,
		"quantity":    attempt.Quantity,
	})
	n.sendConfirmationEmail(attempt)
}

func (n *BuyerNotifier) PaymentFailed(attempt *models.PaymentAttempt, reason string) {
	n.publish(attempt.BuyerID, map[string]any{
		"type":        "payment_failed",
		"gateway_ref": attempt.GatewayRef,
		"event_id":    attempt.EventID,
		"reason":      reason,
	})
}

func (n *BuyerNotifier) publish(buyerID string, message map[string]any) {
	if n.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", buyerID)
	if _, _, err := n.pubnub.Publish().Channel(channel).Message(message).Execute(); err != nil {
		slog.Warn("notifier: publish failed", "channel", channel, "error", err)
	}
}

func (n *BuyerNotifier) sendConfirmationEmail(attempt *models.PaymentAttempt) {
	buyer, err := n.app.FindRecordById("users", attempt.BuyerID)
	if err != nil {
		slog.Warn("notifier: buyer lookup failed", "buyer_id", attempt.BuyerID, "error", err)
		return
	}

	title := attempt.EventID
	if event, err := n.app.FindRecordById("events", attempt.EventID); err == nil {
		title = event.GetString("title")
	}

	message := &mailer.Message{
		From: mail.Address{
			Address: n.app.Settings().Meta.SenderAddress,
			Name:    n.app.Settings().Meta.SenderName,
		},
		To:      []mail.Address{{Address: buyer.Email()}},
		Subject: fmt.Sprintf("Your tickets for %s", title),
		Text: fmt.Sprintf(
			"Your payment of %s %s for %d ticket(s) to %s is confirmed.\nPayment reference: %s\n",
			attempt.Amount.StringFixed(2), attempt.Currency, attempt.Quantity, title, attempt.GatewayRef,
		),
	}

	if err := n.app.NewMailClient().Send(message); err != nil {
		slog.Warn("notifier: confirmation email failed", "buyer_id", attempt.BuyerID, "error", err)
	}
}
