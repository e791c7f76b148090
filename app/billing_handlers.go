package app

import (
	"errors"
	"io"
	"log"
	"net/http"

	"example/resume-api/app/billing"
	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	ServiceType models.ServiceType `json:"serviceType"`
	ResumeID    string             `json:"resumeId"`
}

// CreateCheckout starts a Stripe Checkout Session for the authenticated user.
func (h *Handlers) CreateCheckout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	co, err := h.svc.StartCheckout(c.Request.Context(), userID, req.ServiceType, req.ResumeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, co)
}

// SyncSession is polled by the client after the gateway redirect.
func (h *Handlers) SyncSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rec, err := h.svc.SyncSession(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": rec,
		"applied": rec.Applied(),
	})
}

// StripeWebhook applies checkout verdicts pushed by Stripe. Anything Stripe
// could never deliver successfully answers 2xx so it stops retrying.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if h.webhook == nil {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	conf, eventType, err := h.webhook.Parse(body, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrIgnoredEvent):
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	case errors.Is(err, billing.ErrSignature):
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	case err != nil:
		log.Printf("stripe webhook payload invalid type=%s err=%v", eventType, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
		return
	}

	rec, applied, err := h.svc.ApplyConfirmedPayment(c.Request.Context(), conf)
	switch {
	case errors.Is(err, reconcile.ErrUnknownSession):
		log.Printf("stripe webhook for unknown session type=%s session=%s", eventType, conf.SessionID)
		c.JSON(http.StatusOK, gin.H{"status": "unknown session"})
		return
	case err != nil:
		log.Printf("stripe webhook apply failed type=%s session=%s err=%v", eventType, conf.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "applied": applied, "outcome": rec.Outcome})
}
