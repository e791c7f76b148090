// Package app provides the HTTP surface of the resume service.
package app

import (
	"net/http"

	"example/resume-api/app/billing"
	"example/resume-api/app/reconcile"
	"example/resume-api/auth"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 5 << 20

// Handlers holds the dependencies shared by every route.
type Handlers struct {
	svc     *reconcile.Service
	webhook *billing.Webhook
}

func NewHandlers(svc *reconcile.Service, webhook *billing.Webhook) *Handlers {
	return &Handlers{svc: svc, webhook: webhook}
}

// Health is a public health check endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the caller's effective entitlement.
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ent, err := h.svc.ReadEntitlement(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

// currentUser reads the verified subject; it answers 401 itself when absent.
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := auth.SubjectFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
	}
	return userID, ok
}
