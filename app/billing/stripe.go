// Package billing adapts Stripe Checkout to the reconciliation engine.
package billing

import (
	"context"
	"time"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

// Stripe opens one-off payment checkouts and reads their status back.
type Stripe struct {
	sessions *session.Client
}

func NewStripe(secretKey string) *Stripe {
	return NewStripeWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

func NewStripeWithBackend(secretKey string, b stripe.Backend) *Stripe {
	return &Stripe{sessions: &session.Client{B: b, Key: secretKey}}
}

var _ reconcile.Gateway = (*Stripe)(nil)

func (g *Stripe) CreateSession(ctx context.Context, req reconcile.CheckoutRequest) (reconcile.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OwnerID),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		return reconcile.CheckoutSession{}, err
	}
	out := reconcile.CheckoutSession{SessionID: sess.ID, RedirectURL: sess.URL}
	if sess.ExpiresAt > 0 {
		exp := time.Unix(sess.ExpiresAt, 0).UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

func (g *Stripe) SessionStatus(ctx context.Context, sessionID string) (reconcile.Confirmation, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return reconcile.Confirmation{}, err
	}
	return reconcile.Confirmation{
		SessionID: sess.ID,
		Status:    statusFromSession(sess),
		Metadata:  sess.Metadata,
	}, nil
}

// ExpireSession expires an open checkout. Stripe refuses to expire a
// completed session, so on failure the session is read back and its verdict
// reported instead.
func (g *Stripe) ExpireSession(ctx context.Context, sessionID string) (reconcile.Confirmation, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	sess, err := g.sessions.Expire(sessionID, params)
	if err == nil {
		return reconcile.Confirmation{
			SessionID: sess.ID,
			Status:    statusFromSession(sess),
			Metadata:  sess.Metadata,
		}, nil
	}
	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	sess, getErr := g.sessions.Get(sessionID, getParams)
	if getErr != nil || sess.Status == stripe.CheckoutSessionStatusOpen {
		return reconcile.Confirmation{}, err
	}
	return reconcile.Confirmation{
		SessionID: sess.ID,
		Status:    statusFromSession(sess),
		Metadata:  sess.Metadata,
	}, nil
}

// statusFromSession reads Stripe's two status fields. A completed session
// whose payment is still processing stays open.
func statusFromSession(sess *stripe.CheckoutSession) models.GatewayStatus {
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return models.GatewayPaid
	}
	if sess.Status == stripe.CheckoutSessionStatusExpired {
		return models.GatewayUnpaid
	}
	return models.GatewayOpen
}
