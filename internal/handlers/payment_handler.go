package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"ticket-shop/internal/payment"
	"ticket-shop/internal/status"
	"ticket-shop/internal/webhook"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Gateways cap webhook payloads well below this; anything larger is garbage.
const maxWebhookBody = int64(65536)

type PaymentHandler struct {
	orchestrator *payment.Orchestrator
	store        *payment.Store
	reconciler   *webhook.Reconciler
}

func NewPaymentHandler(orchestrator *payment.Orchestrator, store *payment.Store, reconciler *webhook.Reconciler) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		store:        store,
		reconciler:   reconciler,
	}
}

// CreatePaymentIntent - open a checkout: gateway intent + pending attempt
func (h *PaymentHandler) CreatePaymentIntent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID  string `json:"event_id"`
		Quantity int    `json:"quantity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.Quantity <= 0 {
		return apis.NewBadRequestError("event_id and a positive quantity are required", nil)
	}

	result, err := h.orchestrator.CreateAttempt(e.Request.Context(), payment.CreateAttemptRequest{
		BuyerID:  e.Auth.Id,
		EventID:  req.EventID,
		Quantity: req.Quantity,
	})
	switch {
	case err == nil:
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", err)
	case errors.Is(err, status.ErrUnavailable):
		return apis.NewBadRequestError("Not enough tickets available", err)
	case errors.Is(err, status.ErrGateway):
		return apis.NewApiError(http.StatusBadGateway, "Payment gateway unavailable", err)
	default:
		return apis.NewBadRequestError("Failed to create payment", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"attempt_id":    result.AttemptID,
		"gateway_ref":   result.GatewayRef,
		"client_secret": result.ClientSecret,
		"amount":        result.Amount,
		"currency":      result.Currency,
	})
}

// ConfirmPayment - synchronous confirmation by gateway reference
func (h *PaymentHandler) ConfirmPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		GatewayReference string `json:"gateway_reference"`
	}
	if err := e.BindBody(&req); err != nil || req.GatewayReference == "" {
		return apis.NewBadRequestError("gateway_reference is required", err)
	}

	result, err := h.orchestrator.Confirm(e.Request.Context(), req.GatewayReference)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrAttemptNotFound):
		return apis.NewNotFoundError("Payment not found", err)
	case errors.Is(err, status.ErrPaymentNotSucceeded):
		return apis.NewBadRequestError("Payment not successful", err)
	case errors.Is(err, status.ErrCapacityExceeded):
		return apis.NewApiError(http.StatusConflict, "Tickets sold out before the payment settled", err)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(http.StatusConflict, "Payment already failed", err)
	case errors.Is(err, status.ErrGateway):
		return apis.NewApiError(http.StatusBadGateway, "Payment gateway unavailable", err)
	default:
		return apis.NewInternalServerError("Failed to confirm payment", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":  result.State,
		"applied": result.Applied,
	})
}

// HandleWebhook - signed gateway notifications
func (h *PaymentHandler) HandleWebhook(e *core.RequestEvent) error {
	e.Request.Body = http.MaxBytesReader(e.Response, e.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Error reading request body", err)
	}

	outcome, err := h.reconciler.Handle(e.Request.Context(), payload, e.Request.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case errors.Is(err, status.ErrBadSignature):
		return apis.NewBadRequestError("Webhook signature verification failed", err)
	default:
		// Gateway retry semantics take it from here.
		return apis.NewInternalServerError("Failed to process webhook", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received": true,
		"handled":  outcome.Handled,
	})
}

// GetPayment - buyer-scoped payment status
func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	attempt, err := h.store.FindByID(e.Request.Context(), e.Request.PathValue("paymentId"))
	if err != nil {
		return apis.NewNotFoundError("Payment not found", err)
	}
	if attempt.BuyerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, attempt)
}

// ListPayments - buyer's payment history, newest first
func (h *PaymentHandler) ListPayments(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	limit := queryInt(e, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := queryInt(e, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	attempts, err := h.store.ListByBuyer(e.Request.Context(), e.Auth.Id, limit, offset)
	if err != nil {
		return apis.NewInternalServerError("Failed to list payments", err)
	}

	return e.JSON(http.StatusOK, attempts)
}

// SimulatePayment - inject a settlement without a signed webhook (dev only)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		GatewayRef string `json:"gateway_ref"`
		Status     string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	var (
		result *payment.SettlementResult
		err    error
	)
	if req.Status == "success" {
		result, err = h.orchestrator.Commit(e.Request.Context(), req.GatewayRef)
	} else {
		result, err = h.orchestrator.Fail(e.Request.Context(), req.GatewayRef, "simulated failure")
	}
	if err != nil && result == nil {
		return apis.NewBadRequestError("Simulation failed", err)
	}

	return e.JSON(http.StatusOK, result)
}

func queryInt(e *core.RequestEvent, name string, fallback int) int {
	raw := e.Request.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
