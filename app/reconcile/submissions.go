package reconcile

import (
	"context"
	"errors"
	"log"
	"path"
	"strings"

	"example/resume-api/app/models"
	"example/resume-api/app/scoring"
	"example/resume-api/app/store"
)

// Upload is a new resume. Text, when set, is the client-extracted document
// text and wins over decoding Data.
type Upload struct {
	FileName       string
	Data           []byte
	Text           string
	JobDescription string
}

// Submit stores the original file, records the submission and runs basic
// scoring inline. When scoring fails the submission is still returned, left
// at uploaded, together with an ErrAnalysisFailed error.
func (s *Service) Submit(ctx context.Context, userID string, up Upload) (models.Submission, error) {
	if userID == "" || strings.TrimSpace(up.FileName) == "" {
		return models.Submission{}, invalidf("file name is required")
	}
	text := up.Text
	if strings.TrimSpace(text) == "" {
		decoded, err := scoring.ExtractText(up.Data)
		if err != nil {
			return models.Submission{}, invalidf("could not read document text: %v", err)
		}
		text = decoded
	}
	if strings.TrimSpace(text) == "" {
		return models.Submission{}, invalidf("document has no text")
	}
	data := up.Data
	if len(data) == 0 {
		data = []byte(text)
	}

	if err := s.store.EnsureAccount(ctx, userID); err != nil {
		return models.Submission{}, translate(err)
	}
	ref, err := s.docs.Store(ctx, up.FileName, data)
	if err != nil {
		log.Printf("store original failed user=%s file=%q err=%v", userID, up.FileName, err)
		return models.Submission{}, err
	}

	sub := models.Submission{
		ID:               s.opts.NewID(),
		OwnerID:          userID,
		Status:           models.StatusUploaded,
		FileName:         up.FileName,
		OriginalArtifact: ref,
		DocumentText:     text,
		JobDescription:   strings.TrimSpace(up.JobDescription),
		Feedback:         []models.Feedback{},
		SubmittedAt:      s.now(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return models.Submission{}, translate(err)
	}
	log.Printf("resume submitted id=%s user=%s file=%q", sub.ID, userID, sub.FileName)

	return s.runBasic(ctx, sub)
}

// RetryBasicAnalysis re-runs the free upload scoring for a submission whose
// first attempt failed.
func (s *Service) RetryBasicAnalysis(ctx context.Context, userID, resumeID string) (models.Submission, error) {
	sub, err := s.ownedSubmission(ctx, userID, resumeID)
	if err != nil {
		return models.Submission{}, err
	}
	switch sub.Status {
	case models.StatusUploaded:
	case models.StatusPendingReview:
		return models.Submission{}, ErrUnderReview
	default:
		return models.Submission{}, ErrInvalidTransition
	}
	return s.runBasic(ctx, sub)
}

func (s *Service) runBasic(ctx context.Context, sub models.Submission) (models.Submission, error) {
	res, err := s.scorer.ScoreBasic(ctx, sub.AnalysisText())
	if err != nil {
		log.Printf("basic scoring failed resume=%s err=%v", sub.ID, err)
		return sub, &analysisError{ResumeID: sub.ID, Kind: "basic", Err: err}
	}

	saved, err := s.mutateSubmission(ctx, sub.ID, func(cur *models.Submission) error {
		switch {
		case cur.Status == models.StatusUploaded:
			cur.Advance(models.StatusBasicATSComplete)
		case cur.Status == models.StatusPendingReview && cur.StatusBeforeReview == models.StatusUploaded:
			// a review was paid while scoring ran; it falls back here if cancelled
			cur.StatusBeforeReview = models.StatusBasicATSComplete
		default:
			return errAlreadyScored
		}
		cur.ATSScore = models.IntPtr(models.ClampScore(res.Score))
		cur.Feedback = res.Feedback
		return nil
	})
	if errors.Is(err, errAlreadyScored) {
		cur, err := s.store.GetSubmission(ctx, sub.ID)
		return cur, translate(err)
	}
	if err != nil {
		return sub, err
	}
	return saved, nil
}

var errAlreadyScored = errors.New("basic scoring already applied")

func (s *Service) GetSubmission(ctx context.Context, userID, resumeID string) (models.Submission, error) {
	return s.ownedSubmission(ctx, userID, resumeID)
}

// ListSubmissions returns the user's submissions newest first.
func (s *Service) ListSubmissions(ctx context.Context, userID string) ([]models.Submission, error) {
	if userID == "" {
		return nil, invalidf("user is required")
	}
	subs, err := s.store.ListSubmissions(ctx, userID)
	return subs, translate(err)
}

// ListAllSubmissions is the operator dashboard: every submission newest
// first, optionally narrowed to one status.
func (s *Service) ListAllSubmissions(ctx context.Context, status models.SubmissionStatus) ([]models.Submission, error) {
	if status != "" && !status.Valid() {
		return nil, invalidf("unknown status %q", status)
	}
	subs, err := s.store.ListSubmissions(ctx, "")
	if err != nil {
		return nil, translate(err)
	}
	if status == "" {
		return subs, nil
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.Status == status {
			out = append(out, sub)
		}
	}
	return out, nil
}

// SetJobDescription replaces the job description used by job optimization.
func (s *Service) SetJobDescription(ctx context.Context, userID, resumeID, jobDescription string) (models.Submission, error) {
	if _, err := s.ownedSubmission(ctx, userID, resumeID); err != nil {
		return models.Submission{}, err
	}
	return s.mutateSubmission(ctx, resumeID, func(cur *models.Submission) error {
		if cur.Status == models.StatusPendingReview {
			return ErrUnderReview
		}
		cur.JobDescription = strings.TrimSpace(jobDescription)
		return nil
	})
}

// SaveEditedText stores the user's edited snapshot. Later analyses run
// against it instead of the uploaded text.
func (s *Service) SaveEditedText(ctx context.Context, userID, resumeID, text string) (models.Submission, error) {
	if strings.TrimSpace(text) == "" {
		return models.Submission{}, invalidf("edited text is empty")
	}
	if _, err := s.ownedSubmission(ctx, userID, resumeID); err != nil {
		return models.Submission{}, err
	}
	return s.mutateSubmission(ctx, resumeID, func(cur *models.Submission) error {
		cur.EditedText = text
		return nil
	})
}

// EditedText returns the edited snapshot, or the uploaded text when the user
// has not edited yet.
func (s *Service) EditedText(ctx context.Context, userID, resumeID string) (string, error) {
	sub, err := s.ownedSubmission(ctx, userID, resumeID)
	if err != nil {
		return "", err
	}
	return sub.AnalysisText(), nil
}

type ArtifactKind string

const (
	ArtifactOriginal  ArtifactKind = "original"
	ArtifactOptimized ArtifactKind = "optimized"
)

// Artifact loads a stored document and the file name to serve it under.
func (s *Service) Artifact(ctx context.Context, userID, resumeID string, kind ArtifactKind) ([]byte, string, error) {
	sub, err := s.ownedSubmission(ctx, userID, resumeID)
	if err != nil {
		return nil, "", err
	}
	var ref, name string
	switch kind {
	case ArtifactOriginal:
		ref, name = sub.OriginalArtifact, sub.FileName
	case ArtifactOptimized:
		ref = sub.OptimizedArtifact
		name = optimizedName(sub.FileName, path.Ext(ref))
	default:
		return nil, "", invalidf("unknown artifact %q", kind)
	}
	if ref == "" {
		return nil, "", ErrNotFound
	}
	data, err := s.docs.Retrieve(ctx, ref)
	if err != nil {
		log.Printf("artifact retrieve failed resume=%s kind=%s err=%v", resumeID, kind, err)
		return nil, "", err
	}
	return data, name, nil
}

func (s *Service) ownedSubmission(ctx context.Context, userID, resumeID string) (models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, resumeID)
	if err != nil {
		return models.Submission{}, translate(err)
	}
	if sub.OwnerID != userID {
		return models.Submission{}, ErrForbidden
	}
	return sub, nil
}

// mutateSubmission re-reads the submission and applies fn under the version
// check, retrying once on a concurrent write.
func (s *Service) mutateSubmission(ctx context.Context, resumeID string, fn func(cur *models.Submission) error) (models.Submission, error) {
	var (
		saved models.Submission
		fnErr error
	)
	err := retryConflict(func() error {
		cur, err := s.store.GetSubmission(ctx, resumeID)
		if err != nil {
			return err
		}
		if fnErr = fn(&cur); fnErr != nil {
			return fnErr
		}
		saved, err = s.store.UpdateSubmission(ctx, cur)
		return err
	})
	if fnErr != nil {
		return models.Submission{}, fnErr
	}
	if errors.Is(err, store.ErrConflict) {
		log.Printf("submission update conflict resume=%s", resumeID)
	}
	if err != nil {
		return models.Submission{}, translate(err)
	}
	return saved, nil
}

// optimizedName names the optimized document after the original; ext comes
// from the stored object and defaults to .txt.
func optimizedName(fileName, ext string) string {
	base := fileName
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if ext == "" {
		ext = ".txt"
	}
	return base + "-optimized" + ext
}
