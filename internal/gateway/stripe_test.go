package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"ticket-shop/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the way Stripe does: the
// signed payload is "<timestamp>.<body>", HMAC-SHA256 under the endpoint
// secret.
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhook(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	event, err := s.VerifyWebhook(payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "pi_123", event.Reference)
}

func TestVerifyWebhook_FailedEvent(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_456"}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	event, err := s.VerifyWebhook(payload, header)

	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, event.Type)
	assert.Equal(t, "pi_456", event.Reference)
}

func TestVerifyWebhook_TamperedPayload(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_999"}}}`)
	_, err := s.VerifyWebhook(tampered, header)

	assert.ErrorIs(t, err, status.ErrBadSignature)
}

func TestVerifyWebhook_WrongSecret(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := signPayload(payload, "whsec_somebody_else", time.Now())

	_, err := s.VerifyWebhook(payload, header)

	assert.ErrorIs(t, err, status.ErrBadSignature)
}

func TestVerifyWebhook_StaleTimestamp(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))

	_, err := s.VerifyWebhook(payload, header)

	assert.ErrorIs(t, err, status.ErrBadSignature)
}

func TestVerifyWebhook_GarbageHeader(t *testing.T) {
	s := NewStripe(&StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})

	_, err := s.VerifyWebhook([]byte(`{}`), "not-a-signature")

	assert.ErrorIs(t, err, status.ErrBadSignature)
}
