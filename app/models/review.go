package models

import "time"

type ReviewStatus string

const (
	ReviewRequested  ReviewStatus = "requested"
	ReviewAssigned   ReviewStatus = "assigned"
	ReviewInProgress ReviewStatus = "in_progress"
	ReviewCompleted  ReviewStatus = "completed"
	ReviewCancelled  ReviewStatus = "cancelled"
)

// completed -> in_progress is the explicit re-open move; a completed order is
// never overwritten in place.
var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewRequested:  {ReviewAssigned, ReviewCancelled},
	ReviewAssigned:   {ReviewInProgress, ReviewCancelled},
	ReviewInProgress: {ReviewCompleted, ReviewCancelled},
	ReviewCompleted:  {ReviewInProgress},
	ReviewCancelled:  {},
}

func (s ReviewStatus) Valid() bool {
	_, ok := reviewTransitions[s]
	return ok
}

func (s ReviewStatus) Terminal() bool {
	return s == ReviewCompleted || s == ReviewCancelled
}

func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	for _, allowed := range reviewTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReviewOrder is a paid request for human feedback. ResumeID is a reference:
// the order outlives the submission it points at.
type ReviewOrder struct {
	ID               string       `json:"id"`
	ResumeID         string       `json:"resumeId"`
	OwnerID          string       `json:"ownerId"`
	SessionID        string       `json:"-"`
	Status           ReviewStatus `json:"status"`
	ReviewerID       string       `json:"reviewerId,omitempty"`
	ReviewerFeedback string       `json:"reviewerFeedback,omitempty"`
	SubmittedDate    time.Time    `json:"submittedDate"`
	CompletedDate    *time.Time   `json:"completedDate,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func (r ReviewOrder) Clone() ReviewOrder {
	out := r
	if r.CompletedDate != nil {
		t := *r.CompletedDate
		out.CompletedDate = &t
	}
	return out
}

// ReviewEventType names a review-order lifecycle notification.
type ReviewEventType string

const (
	ReviewEventRequested ReviewEventType = "review.requested"
	ReviewEventAssigned  ReviewEventType = "review.assigned"
	ReviewEventCompleted ReviewEventType = "review.completed"
	ReviewEventCancelled ReviewEventType = "review.cancelled"
	ReviewEventReopened  ReviewEventType = "review.reopened"
)

// ReviewEvent is the queue message published for operators.
type ReviewEvent struct {
	Type       ReviewEventType `json:"type"`
	ReviewID   string          `json:"review_id"`
	ResumeID   string          `json:"resume_id"`
	OwnerID    string          `json:"owner_id"`
	ReviewerID string          `json:"reviewer_id,omitempty"`
	Status     ReviewStatus    `json:"status"`
	At         time.Time       `json:"at"`
}
