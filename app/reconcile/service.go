// Package reconcile is the entitlement and workflow engine: it charges credits
// for analyses, applies confirmed payments exactly once and drives the
// submission and review-order state machines.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"example/resume-api/app/models"
	"example/resume-api/app/store"

	"github.com/google/uuid"
)

// CheckoutRequest is what the gateway needs to open a hosted checkout.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	ServiceType models.ServiceType
	OwnerID     string
	ResumeID    string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   *time.Time
}

// Confirmation is a gateway verdict on one session, pushed or polled.
type Confirmation struct {
	SessionID string
	Status    models.GatewayStatus
	Metadata  map[string]string
}

type Gateway interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	SessionStatus(ctx context.Context, sessionID string) (Confirmation, error)
	// ExpireSession closes an open session so it can no longer be paid and
	// reports the verdict it ended with. A session that was already paid
	// reports paid; one whose payment is still processing reports open.
	ExpireSession(ctx context.Context, sessionID string) (Confirmation, error)
}

type Scorer interface {
	ScoreBasic(ctx context.Context, text string) (models.BasicResult, error)
	ScoreDetailed(ctx context.Context, text string) (models.DetailedResult, error)
	Optimize(ctx context.Context, text, jobDescription string) (models.OptimizationResult, error)
}

type DocumentStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	Retrieve(ctx context.Context, ref string) ([]byte, error)
}

type Notifier interface {
	Publish(ctx context.Context, ev models.ReviewEvent) error
}

// DefaultPrices are in cents.
func DefaultPrices() map[models.ServiceType]int64 {
	return map[models.ServiceType]int64{
		models.ServiceSubscription:       1500,
		models.ServiceATSCredit:          500,
		models.ServiceOptimizationCredit: 1000,
		models.ServiceReview:             3000,
	}
}

type Options struct {
	Prices             map[models.ServiceType]int64
	Currency           string
	SubscriptionPeriod time.Duration
	// SuccessURL may carry {CHECKOUT_SESSION_ID}; the gateway fills it in.
	SuccessURL string
	CancelURL  string
	Debug      bool

	Now   func() time.Time
	NewID func() string
}

type Service struct {
	store    store.Store
	gateway  Gateway
	scorer   Scorer
	docs     DocumentStore
	notifier Notifier
	opts     Options
}

func New(st store.Store, gw Gateway, sc Scorer, docs DocumentStore, n Notifier, opts Options) *Service {
	if opts.Prices == nil {
		opts.Prices = DefaultPrices()
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.SubscriptionPeriod <= 0 {
		opts.SubscriptionPeriod = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{store: st, gateway: gw, scorer: sc, docs: docs, notifier: n, opts: opts}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) debugf(format string, args ...any) {
	if s.opts.Debug {
		log.Printf("[debug] "+format, args...)
	}
}

// publish is best-effort and runs after the change is committed.
func (s *Service) publish(ctx context.Context, events ...models.ReviewEvent) {
	if s.notifier == nil {
		return
	}
	for _, ev := range events {
		if err := s.notifier.Publish(ctx, ev); err != nil {
			log.Printf("review event publish failed type=%s review=%s err=%v", ev.Type, ev.ReviewID, err)
		}
	}
}

// retryConflict runs fn again once when the store reports a concurrent write.
func retryConflict(fn func() error) error {
	err := fn()
	if errors.Is(err, store.ErrConflict) || errors.Is(err, ErrPersistenceConflict) {
		err = fn()
	}
	return err
}

// ReadEntitlement reports the effective entitlement: a lapsed premium reads
// as free.
func (s *Service) ReadEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	ent, err := s.store.ReadEntitlement(ctx, userID)
	if err != nil {
		return models.Entitlement{}, translate(err)
	}
	return ent.EffectiveAt(s.now()), nil
}

// EnsureAccount creates the default ledger row on first sight of a user.
func (s *Service) EnsureAccount(ctx context.Context, userID string) error {
	return translate(s.store.EnsureAccount(ctx, userID))
}

// GrantCredits is the operator's manual top-up.
func (s *Service) GrantCredits(ctx context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error) {
	if userID == "" || !pool.Valid() || amount <= 0 {
		return models.Entitlement{}, invalidf("grant needs a user, a credit pool and a positive amount")
	}
	ent, err := s.store.GrantCredits(ctx, userID, pool, amount)
	if err != nil {
		return models.Entitlement{}, translate(err)
	}
	log.Printf("credits granted user=%s pool=%s amount=%d", userID, pool, amount)
	return ent.EffectiveAt(s.now()), nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	st, err := s.store.Stats(ctx)
	return st, translate(err)
}

// charge pays for one analysis. Premium users skip the ledger entirely.
func (s *Service) charge(ctx context.Context, userID string, pool models.CreditPool) (bool, error) {
	ent, err := s.store.ReadEntitlement(ctx, userID)
	if err != nil {
		return false, translate(err)
	}
	if ent.PremiumAt(s.now()) {
		s.debugf("charge skipped user=%s pool=%s reason=premium", userID, pool)
		return false, nil
	}
	if _, err := s.store.ConsumeCredit(ctx, userID, pool); err != nil {
		if errors.Is(err, store.ErrInsufficientCredit) {
			return false, creditError{Pool: pool}
		}
		return false, translate(err)
	}
	s.debugf("credit consumed user=%s pool=%s", userID, pool)
	return true, nil
}
