// Package store persists entitlements, submissions, review orders and payment
// sessions behind the atomic operations the reconciliation engine needs.
package store

import (
	"context"
	"errors"
	"time"

	"example/resume-api/app/models"
)

var (
	ErrNotFound           = errors.New("store: not found")
	ErrInsufficientCredit = errors.New("store: insufficient credit")
	ErrConflict           = errors.New("store: concurrent modification")
	ErrDuplicate          = errors.New("store: duplicate key")
	ErrReviewOpen         = errors.New("store: submission already has an open review")
)

// Ledger holds per-user credit pools and the subscription flag. ConsumeCredit
// is a single conditional decrement: it never reads then writes.
type Ledger interface {
	EnsureAccount(ctx context.Context, userID string) error
	ReadEntitlement(ctx context.Context, userID string) (models.Entitlement, error)
	GrantCredits(ctx context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error)
	ConsumeCredit(ctx context.Context, userID string, pool models.CreditPool) (models.Entitlement, error)
	SetSubscription(ctx context.Context, userID string, status models.SubscriptionStatus, expiresAt *time.Time) (models.Entitlement, error)
}

type Submissions interface {
	CreateSubmission(ctx context.Context, sub models.Submission) error
	GetSubmission(ctx context.Context, id string) (models.Submission, error)
	// ListSubmissions returns newest first. An empty ownerID lists everyone's.
	ListSubmissions(ctx context.Context, ownerID string) ([]models.Submission, error)
	// UpdateSubmission writes sub only if the stored version still equals
	// sub.Version and returns the stored copy with the bumped version.
	UpdateSubmission(ctx context.Context, sub models.Submission) (models.Submission, error)
}

type ReviewFilter struct {
	OwnerID  string
	ResumeID string
	OpenOnly bool
}

// ReviewMutation edits an order and, when it still exists, the submission it
// references. Returning an error aborts without writing anything.
type ReviewMutation func(order *models.ReviewOrder, sub *models.Submission) error

type Reviews interface {
	GetReview(ctx context.Context, id string) (models.ReviewOrder, error)
	ListReviews(ctx context.Context, f ReviewFilter) ([]models.ReviewOrder, error)
	OpenReviewFor(ctx context.Context, resumeID string) (models.ReviewOrder, bool, error)
	// UpdateReview runs fn with the order and its submission locked and writes
	// both back together. Moving an order out of a terminal status fails with
	// ErrReviewOpen if the submission already has another open order.
	UpdateReview(ctx context.Context, id string, fn ReviewMutation) (models.ReviewOrder, *models.Submission, error)
}

// Mutator is the set of writes a confirmed payment may perform. Inside
// ApplySession it is bound to the same unit of work that marks the session.
type Mutator interface {
	GrantCredits(ctx context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error)
	ExtendSubscription(ctx context.Context, userID string, period time.Duration, now time.Time) (models.Entitlement, error)
	// OpenReview inserts a requested order and moves the submission to
	// pending_review. ErrReviewOpen if an open order already exists.
	OpenReview(ctx context.Context, order models.ReviewOrder) (models.ReviewOrder, error)
}

// ApplyFunc performs at most one mutation and reports the outcome to record.
// Any error leaves the session unapplied and nothing written.
type ApplyFunc func(ctx context.Context, tx Mutator, rec models.PaymentSession) (models.PaymentOutcome, error)

type Sessions interface {
	CreateSession(ctx context.Context, rec models.PaymentSession) error
	GetSession(ctx context.Context, id string) (models.PaymentSession, error)
	// PendingReviewSessions lists unapplied, unexpired review checkouts
	// targeting resumeID, oldest first.
	PendingReviewSessions(ctx context.Context, resumeID string, now time.Time) ([]models.PaymentSession, error)
	// ApplySession serializes on the session id. An already applied session is
	// returned with applied=false and fn is not called.
	ApplySession(ctx context.Context, id string, now time.Time, fn ApplyFunc) (rec models.PaymentSession, applied bool, err error)
}

// Store is everything the engine persists.
type Store interface {
	Ledger
	Submissions
	Reviews
	Sessions
	Stats(ctx context.Context) (models.Stats, error)
}
