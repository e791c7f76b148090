package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrSignature    = errors.New("billing: signature verification failed")
	ErrPayload      = errors.New("billing: invalid event payload")
	ErrIgnoredEvent = errors.New("billing: event type not handled")
)

// Webhook verifies Stripe deliveries and turns checkout events into
// confirmations.
type Webhook struct {
	secret string
}

func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret}
}

// Parse returns ErrIgnoredEvent for verified events that carry no payment
// verdict; the caller should still answer 2xx.
func (w *Webhook) Parse(payload []byte, sigHeader string) (reconcile.Confirmation, string, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		w.secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return reconcile.Confirmation{}, "", fmt.Errorf("%w: %v", ErrSignature, err)
	}
	eventType := string(event.Type)

	var status models.GatewayStatus
	switch event.Type {
	case "checkout.session.completed":
	case "checkout.session.async_payment_succeeded":
		status = models.GatewayPaid
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		status = models.GatewayUnpaid
	default:
		return reconcile.Confirmation{}, eventType, ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return reconcile.Confirmation{}, eventType, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if sess.ID == "" {
		return reconcile.Confirmation{}, eventType, fmt.Errorf("%w: missing session id", ErrPayload)
	}
	if status == "" {
		status = statusFromSession(&sess)
	}
	return reconcile.Confirmation{SessionID: sess.ID, Status: status, Metadata: sess.Metadata}, eventType, nil
}
