package app

import (
	"errors"
	"log"
	"net/http"

	"example/resume-api/app/reconcile"

	"github.com/gin-gonic/gin"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{reconcile.ErrInvalidRequest, http.StatusBadRequest},
	{reconcile.ErrInsufficientCredit, http.StatusPaymentRequired},
	{reconcile.ErrForbidden, http.StatusForbidden},
	{reconcile.ErrNotFound, http.StatusNotFound},
	{reconcile.ErrUnknownSession, http.StatusNotFound},
	{reconcile.ErrUnderReview, http.StatusConflict},
	{reconcile.ErrReviewOpen, http.StatusConflict},
	{reconcile.ErrInvalidTransition, http.StatusConflict},
	{reconcile.ErrDuplicateSession, http.StatusConflict},
	{reconcile.ErrMissingJobDescription, http.StatusUnprocessableEntity},
	{reconcile.ErrFeedbackRequired, http.StatusUnprocessableEntity},
	{reconcile.ErrAnalysisFailed, http.StatusBadGateway},
	{reconcile.ErrGatewayUnavailable, http.StatusBadGateway},
	{reconcile.ErrPersistenceConflict, http.StatusServiceUnavailable},
}

// statusFor maps a service error to a status code and a client-safe message.
// Validation and credit errors carry their own detail; everything else is
// reported by kind only.
func statusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.err) {
			continue
		}
		switch e.err {
		case reconcile.ErrInvalidRequest, reconcile.ErrInsufficientCredit:
			return e.status, err.Error()
		}
		return e.status, e.err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed method=%s path=%s status=%d err=%v", c.Request.Method, c.FullPath(), status, err)
	}
	c.JSON(status, gin.H{"error": msg})
}
