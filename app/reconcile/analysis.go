package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"example/resume-api/app/models"
)

// TriggerAnalysis runs a metered analysis. The checks run in a fixed order:
// under review, then job description, then payment. A spent credit is not
// given back when scoring fails.
func (s *Service) TriggerAnalysis(ctx context.Context, userID, resumeID string, kind models.AnalysisKind) (models.Submission, error) {
	if !kind.Valid() {
		return models.Submission{}, invalidf("unknown analysis kind %q", kind)
	}
	sub, err := s.ownedSubmission(ctx, userID, resumeID)
	if err != nil {
		return models.Submission{}, err
	}
	if sub.Status == models.StatusPendingReview {
		return models.Submission{}, ErrUnderReview
	}
	if kind == models.AnalysisJobOptimization && strings.TrimSpace(sub.JobDescription) == "" {
		return models.Submission{}, ErrMissingJobDescription
	}
	if !sub.Status.CanTransitionTo(kind.Status()) {
		return models.Submission{}, ErrInvalidTransition
	}

	charged, err := s.charge(ctx, userID, kind.Pool())
	if err != nil {
		if errors.Is(err, ErrInsufficientCredit) {
			log.Printf("analysis refused resume=%s user=%s kind=%s err=%v", resumeID, userID, kind, err)
		}
		return models.Submission{}, err
	}

	apply, err := s.score(ctx, sub, kind)
	if err != nil {
		log.Printf("analysis failed resume=%s user=%s kind=%s credit_spent=%t err=%v", resumeID, userID, kind, charged, err)
		return models.Submission{}, &analysisError{ResumeID: resumeID, Kind: string(kind), Charged: charged, Err: err}
	}

	saved, err := s.mutateSubmission(ctx, resumeID, func(cur *models.Submission) error {
		apply(cur)
		if cur.Status == models.StatusPendingReview {
			// a review was paid while scoring ran: keep the results, keep the status
			return nil
		}
		if !cur.Advance(kind.Status()) {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		log.Printf("analysis result not saved resume=%s kind=%s credit_spent=%t err=%v", resumeID, kind, charged, err)
		return models.Submission{}, err
	}
	log.Printf("analysis complete resume=%s kind=%s status=%s", resumeID, kind, saved.Status)
	return saved, nil
}

// AnalyzeEditedText re-scores the saved edited text. It is charged like a
// detailed ATS report.
func (s *Service) AnalyzeEditedText(ctx context.Context, userID, resumeID string) (models.Submission, error) {
	sub, err := s.ownedSubmission(ctx, userID, resumeID)
	if err != nil {
		return models.Submission{}, err
	}
	if strings.TrimSpace(sub.EditedText) == "" {
		return models.Submission{}, invalidf("no edited text saved")
	}
	return s.TriggerAnalysis(ctx, userID, resumeID, models.AnalysisDetailedATS)
}

// score calls the scorer and returns the edit to apply to the stored record.
// Nothing is written here.
func (s *Service) score(ctx context.Context, sub models.Submission, kind models.AnalysisKind) (func(*models.Submission), error) {
	text := sub.AnalysisText()
	switch kind {
	case models.AnalysisDetailedATS:
		res, err := s.scorer.ScoreDetailed(ctx, text)
		if err != nil {
			return nil, err
		}
		ka := models.NewKeywordAnalysis(res.KeywordAnalysis.Matched, res.KeywordAnalysis.Missing)
		return func(cur *models.Submission) {
			cur.ATSScore = models.IntPtr(models.ClampScore(res.Score))
			cur.KeywordAnalysis = &ka
			cur.Feedback = res.Feedback
		}, nil

	case models.AnalysisJobOptimization:
		res, err := s.scorer.Optimize(ctx, text, sub.JobDescription)
		if err != nil {
			return nil, err
		}
		ref, err := s.docs.Store(ctx, optimizedName(sub.FileName, ".txt"), []byte(renderOptimized(text, res.Suggestions)))
		if err != nil {
			return nil, fmt.Errorf("store optimized document: %w", err)
		}
		ka := models.NewKeywordAnalysis(res.KeywordAnalysis.Matched, res.KeywordAnalysis.Missing)
		return func(cur *models.Submission) {
			cur.OptimizationScore = models.IntPtr(models.ClampScore(res.Score))
			cur.KeywordAnalysis = &ka
			cur.Suggestions = res.Suggestions
			cur.OptimizedArtifact = ref
			cur.HasOptimizedArtifact = true
		}, nil
	}
	return nil, fmt.Errorf("unknown analysis kind %q", kind)
}

func renderOptimized(text string, suggestions []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	if len(suggestions) == 0 {
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\n\n---\nSuggested improvements\n")
	for _, s := range suggestions {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}
