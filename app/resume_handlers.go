package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"

	"example/resume-api/app/models"
	"example/resume-api/app/reconcile"

	"github.com/gin-gonic/gin"
)

type submitRequest struct {
	FileName       string `json:"fileName"`
	Text           string `json:"text"`
	JobDescription string `json:"jobDescription"`
}

// SubmitResume accepts a multipart upload ("file", optional "text" and
// "jobDescription") or a JSON body carrying extracted text.
func (h *Handlers) SubmitResume(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var up reconcile.Upload
	if c.ContentType() == "application/json" {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		up = reconcile.Upload{FileName: req.FileName, Text: req.Text, JobDescription: req.JobDescription}
	} else {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
			return
		}
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
			log.Printf("upload read failed user=%s err=%v", userID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
			return
		}
		up = reconcile.Upload{
			FileName:       fh.Filename,
			Data:           data,
			Text:           c.PostForm("text"),
			JobDescription: c.PostForm("jobDescription"),
		}
	}

	sub, err := h.svc.Submit(c.Request.Context(), userID, up)
	if err != nil {
		if errors.Is(err, reconcile.ErrAnalysisFailed) && sub.ID != "" {
			// stored but unscored; the client can retry basic scoring
			c.JSON(http.StatusBadGateway, gin.H{"error": reconcile.ErrAnalysisFailed.Error(), "resume": sub})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handlers) ListResumes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	subs, err := h.svc.ListSubmissions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{"resumes": subs, "count": len(subs)})
}

func (h *Handlers) GetResume(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sub, err := h.svc.GetSubmission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type jobDescriptionRequest struct {
	JobDescription string `json:"jobDescription"`
}

func (h *Handlers) SetJobDescription(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req jobDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	sub, err := h.svc.SetJobDescription(c.Request.Context(), userID, c.Param("id"), req.JobDescription)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type editedTextRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) GetEditedText(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	text, err := h.svc.EditedText(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (h *Handlers) SaveEditedText(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req editedTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	sub, err := h.svc.SaveEditedText(c.Request.Context(), userID, c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type analyzeRequest struct {
	Kind models.AnalysisKind `json:"kind"`
}

// Analyze runs a metered analysis. Credit, review and job description
// failures map to 402, 409 and 422.
func (h *Handlers) Analyze(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	sub, err := h.svc.TriggerAnalysis(c.Request.Context(), userID, c.Param("id"), req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handlers) AnalyzeChanges(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sub, err := h.svc.AnalyzeEditedText(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handlers) RetryBasic(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sub, err := h.svc.RetryBasicAnalysis(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handlers) Download(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	kind := reconcile.ArtifactKind(c.Param("artifact"))
	data, name, err := h.svc.Artifact(c.Request.Context(), userID, c.Param("id"), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}

// ListReviews returns the caller's own review orders.
func (h *Handlers) ListReviews(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orders, err := h.svc.ListReviews(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.ReviewOrder{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": orders})
}
