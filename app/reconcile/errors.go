package reconcile

import (
	"errors"
	"fmt"

	"example/resume-api/app/models"
	"example/resume-api/app/store"
)

var (
	ErrInsufficientCredit    = errors.New("insufficient credit")
	ErrUnderReview           = errors.New("resume is under review")
	ErrMissingJobDescription = errors.New("job description is required")
	ErrAnalysisFailed        = errors.New("analysis failed")
	ErrUnknownSession        = errors.New("unknown payment session")
	ErrDuplicateSession      = errors.New("duplicate payment session")
	ErrPersistenceConflict   = errors.New("concurrent update, try again")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrReviewOpen            = errors.New("resume already has an open review")
	ErrFeedbackRequired      = errors.New("reviewer feedback is required")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
)

type creditError struct {
	Pool models.CreditPool
}

func (e creditError) Error() string {
	return "insufficient " + string(e.Pool)
}

func (e creditError) Is(target error) bool {
	return target == ErrInsufficientCredit
}

// analysisError reports a scoring failure. Whether a credit was spent is kept
// for logs; it is never refunded.
type analysisError struct {
	ResumeID string
	Kind     string
	Charged  bool
	Err      error
}

func (e *analysisError) Error() string {
	return fmt.Sprintf("%s analysis failed for %s: %v", e.Kind, e.ResumeID, e.Err)
}

func (e *analysisError) Is(target error) bool {
	return target == ErrAnalysisFailed
}

func (e *analysisError) Unwrap() error {
	return e.Err
}

// invalidf tags a validation failure with a readable reason.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// translate turns store sentinels into the service's kinds. Anything else is
// an infrastructure failure and is wrapped as-is.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrPersistenceConflict
	case errors.Is(err, store.ErrReviewOpen):
		return ErrReviewOpen
	case errors.Is(err, store.ErrInsufficientCredit):
		return ErrInsufficientCredit
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicateSession
	}
	return fmt.Errorf("store: %w", err)
}
