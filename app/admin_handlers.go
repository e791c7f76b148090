package app

import (
	"errors"
	"io"
	"log"
	"net/http"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"
	"example/resume-api/app/store"

	"github.com/gin-gonic/gin"
)

// AdminListReviews lists open orders by default; all=true includes closed
// ones.
func (h *Handlers) AdminListReviews(c *gin.Context) {
	f := store.ReviewFilter{
		OwnerID:  c.Query("ownerId"),
		ResumeID: c.Query("resumeId"),
		OpenOnly: c.Query("all") != "true",
	}
	orders, err := h.svc.ListReviewOrders(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.ReviewOrder{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": orders})
}

// AdminListSubmissions lists every submission newest first; status narrows
// the list.
func (h *Handlers) AdminListSubmissions(c *gin.Context) {
	subs, err := h.svc.ListAllSubmissions(c.Request.Context(), models.SubmissionStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs, "count": len(subs)})
}

func (h *Handlers) AdminGetReview(c *gin.Context) {
	o, err := h.svc.GetReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type assignRequest struct {
	ReviewerID string `json:"reviewerId"`
}

func (h *Handlers) AdminAssignReview(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	o, err := h.svc.AssignReview(c.Request.Context(), c.Param("id"), req.ReviewerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) AdminStartReview(c *gin.Context) {
	o, err := h.svc.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type completeRequest struct {
	Feedback string `json:"feedback"`
}

// AdminCompleteReview takes JSON feedback, or a multipart form with a
// "feedback" field and an optional "optimizedResume" file that becomes the
// customer's optimized download.
func (h *Handlers) AdminCompleteReview(c *gin.Context) {
	var (
		feedback string
		doc      *reconcile.ReviewedDocument
	)
	if c.ContentType() == "application/json" {
		var req completeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		feedback = req.Feedback
	} else {
		feedback = c.PostForm("feedback")
		fh, err := c.FormFile("optimizedResume")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		default:
			if fh.Size > maxUploadBytes {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
			f.Close()
			if err != nil {
				log.Printf("reviewed document read failed review=%s err=%v", c.Param("id"), err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
				return
			}
			doc = &reconcile.ReviewedDocument{FileName: fh.Filename, Data: data}
		}
	}
	o, err := h.svc.CompleteReviewWithDocument(c.Request.Context(), c.Param("id"), feedback, doc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) AdminCancelReview(c *gin.Context) {
	o, err := h.svc.CancelReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) AdminReopenReview(c *gin.Context) {
	o, err := h.svc.ReopenReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handlers) AdminStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type grantRequest struct {
	Pool   models.CreditPool `json:"pool"`
	Amount int               `json:"amount"`
}

func (h *Handlers) AdminGrantCredits(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ent, err := h.svc.GrantCredits(c.Request.Context(), c.Param("id"), req.Pool, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (h *Handlers) AdminEntitlement(c *gin.Context) {
	ent, err := h.svc.ReadEntitlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}
