package reconcile

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"example/resume-api/app/models"
	"example/resume-api/app/store"
)

func reviewEvent(t models.ReviewEventType, o models.ReviewOrder, at time.Time) *models.ReviewEvent {
	return &models.ReviewEvent{
		Type:       t,
		ReviewID:   o.ID,
		ResumeID:   o.ResumeID,
		OwnerID:    o.OwnerID,
		ReviewerID: o.ReviewerID,
		Status:     o.Status,
		At:         at,
	}
}

// ListReviews returns the user's own review orders.
func (s *Service) ListReviews(ctx context.Context, userID string) ([]models.ReviewOrder, error) {
	if userID == "" {
		return nil, invalidf("user is required")
	}
	orders, err := s.store.ListReviews(ctx, store.ReviewFilter{OwnerID: userID})
	return orders, translate(err)
}

// ListReviewOrders is the operator queue.
func (s *Service) ListReviewOrders(ctx context.Context, f store.ReviewFilter) ([]models.ReviewOrder, error) {
	orders, err := s.store.ListReviews(ctx, f)
	return orders, translate(err)
}

func (s *Service) GetReview(ctx context.Context, reviewID string) (models.ReviewOrder, error) {
	o, err := s.store.GetReview(ctx, reviewID)
	return o, translate(err)
}

func (s *Service) AssignReview(ctx context.Context, reviewID, reviewerID string) (models.ReviewOrder, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return models.ReviewOrder{}, invalidf("reviewer id is required")
	}
	return s.moveReview(ctx, reviewID, models.ReviewAssigned, models.ReviewEventAssigned,
		func(o *models.ReviewOrder, _ *models.Submission, _ time.Time) error {
			o.ReviewerID = reviewerID
			return nil
		})
}

func (s *Service) StartReview(ctx context.Context, reviewID string) (models.ReviewOrder, error) {
	return s.moveReview(ctx, reviewID, models.ReviewInProgress, "", nil)
}

// ReviewedDocument is the resume the reviewer hands back with the feedback.
type ReviewedDocument struct {
	FileName string
	Data     []byte
}

// CompleteReview records the reviewer's feedback and finishes the review for
// the submission. A completed order cannot be completed again.
func (s *Service) CompleteReview(ctx context.Context, reviewID, feedback string) (models.ReviewOrder, error) {
	return s.CompleteReviewWithDocument(ctx, reviewID, feedback, nil)
}

// CompleteReviewWithDocument completes the review and, when doc is set,
// stores it as the submission's optimized document, replacing any earlier
// one.
func (s *Service) CompleteReviewWithDocument(ctx context.Context, reviewID, feedback string, doc *ReviewedDocument) (models.ReviewOrder, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return models.ReviewOrder{}, ErrFeedbackRequired
	}

	var ref string
	if doc != nil {
		if strings.TrimSpace(doc.FileName) == "" || len(doc.Data) == 0 {
			return models.ReviewOrder{}, invalidf("reviewed document is empty")
		}
		cur, err := s.store.GetReview(ctx, reviewID)
		if err != nil {
			return models.ReviewOrder{}, translate(err)
		}
		if !cur.Status.CanTransitionTo(models.ReviewCompleted) {
			return models.ReviewOrder{}, ErrInvalidTransition
		}
		ref, err = s.docs.Store(ctx, doc.FileName, doc.Data)
		if err != nil {
			log.Printf("store reviewed document failed review=%s err=%v", reviewID, err)
			return models.ReviewOrder{}, err
		}
	}

	return s.moveReview(ctx, reviewID, models.ReviewCompleted, models.ReviewEventCompleted,
		func(o *models.ReviewOrder, sub *models.Submission, now time.Time) error {
			o.ReviewerFeedback = feedback
			o.CompletedDate = &now
			if sub == nil {
				return nil
			}
			if sub.Status == models.StatusPendingReview {
				sub.Advance(models.StatusReviewComplete)
				sub.CompletedAt = &now
			}
			if ref != "" {
				sub.OptimizedArtifact = ref
				sub.HasOptimizedArtifact = true
			}
			return nil
		})
}

// CancelReview closes an open order. The submission returns to the status it
// had before the review was paid; no refund is issued here.
func (s *Service) CancelReview(ctx context.Context, reviewID string) (models.ReviewOrder, error) {
	return s.moveReview(ctx, reviewID, models.ReviewCancelled, models.ReviewEventCancelled,
		func(_ *models.ReviewOrder, sub *models.Submission, _ time.Time) error {
			if sub == nil || sub.Status != models.StatusPendingReview {
				return nil
			}
			prev := sub.StatusBeforeReview
			if prev == "" || prev == models.StatusPendingReview {
				prev = models.StatusUploaded
				if sub.ATSScore != nil {
					prev = models.StatusBasicATSComplete
				}
			}
			if !sub.Advance(prev) {
				return ErrInvalidTransition
			}
			sub.StatusBeforeReview = ""
			return nil
		})
}

// ReopenReview moves a completed order back to in_progress and the
// submission back under review. The earlier feedback stays until the next
// completion replaces it.
func (s *Service) ReopenReview(ctx context.Context, reviewID string) (models.ReviewOrder, error) {
	return s.moveReview(ctx, reviewID, models.ReviewInProgress, models.ReviewEventReopened,
		func(o *models.ReviewOrder, sub *models.Submission, _ time.Time) error {
			if sub == nil {
				return nil
			}
			prev := sub.Status
			if !sub.Advance(models.StatusPendingReview) {
				return ErrReviewOpen
			}
			sub.StatusBeforeReview = prev
			sub.CompletedAt = nil
			return nil
		})
}

type reviewEdit func(o *models.ReviewOrder, sub *models.Submission, now time.Time) error

// moveReview applies one transition from the review table together with its
// submission side effect.
func (s *Service) moveReview(ctx context.Context, reviewID string, next models.ReviewStatus, evType models.ReviewEventType, edit reviewEdit) (models.ReviewOrder, error) {
	var (
		order models.ReviewOrder
		from  models.ReviewStatus
	)
	now := s.now()
	err := retryConflict(func() error {
		var err error
		order, _, err = s.store.UpdateReview(ctx, reviewID, func(o *models.ReviewOrder, sub *models.Submission) error {
			if !o.Status.CanTransitionTo(next) {
				return ErrInvalidTransition
			}
			from = o.Status
			o.Status = next
			o.UpdatedAt = now
			if edit != nil {
				return edit(o, sub, now)
			}
			return nil
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			log.Printf("review update failed review=%s to=%s err=%v", reviewID, next, err)
		}
		return models.ReviewOrder{}, translateReview(err)
	}
	log.Printf("review moved review=%s resume=%s from=%s to=%s", order.ID, order.ResumeID, from, order.Status)
	if evType != "" {
		s.publish(ctx, *reviewEvent(evType, order, now))
	}
	return order, nil
}

// translateReview leaves the service's own kinds returned by edits untouched.
func translateReview(err error) error {
	for _, own := range []error{ErrInvalidTransition, ErrReviewOpen, ErrFeedbackRequired, ErrInvalidRequest} {
		if errors.Is(err, own) {
			return err
		}
	}
	return translate(err)
}
