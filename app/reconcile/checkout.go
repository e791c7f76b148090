package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"example/resume-api/app/models"
	"example/resume-api/app/store"
)

var serviceDescriptions = map[models.ServiceType]string{
	models.ServiceATSCredit:          "Detailed ATS report",
	models.ServiceOptimizationCredit: "Job description optimization",
	models.ServiceSubscription:       "Premium subscription",
	models.ServiceReview:             "Human resume review",
}

// StartCheckout records a payment session and returns the gateway redirect.
// No entitlement changes until the payment is confirmed.
func (s *Service) StartCheckout(ctx context.Context, userID string, service models.ServiceType, resumeID string) (models.Checkout, error) {
	if userID == "" || !service.Valid() {
		return models.Checkout{}, invalidf("unknown service %q", service)
	}
	price, ok := s.opts.Prices[service]
	if !ok || price <= 0 {
		return models.Checkout{}, invalidf("service %q is not for sale", service)
	}

	if service.RequiresResume() {
		if resumeID == "" {
			return models.Checkout{}, invalidf("resumeId is required for %s", service)
		}
		if _, err := s.ownedSubmission(ctx, userID, resumeID); err != nil {
			return models.Checkout{}, err
		}
		if err := s.reviewCheckoutAllowed(ctx, resumeID); err != nil {
			log.Printf("review checkout refused user=%s resume=%s err=%v", userID, resumeID, err)
			return models.Checkout{}, err
		}
		if err := s.supersedeReviewCheckouts(ctx, resumeID); err != nil {
			log.Printf("review checkout refused user=%s resume=%s err=%v", userID, resumeID, err)
			return models.Checkout{}, err
		}
	} else {
		resumeID = ""
	}

	if err := s.store.EnsureAccount(ctx, userID); err != nil {
		return models.Checkout{}, translate(err)
	}

	rec := models.PaymentSession{
		ServiceType:    service,
		TargetResumeID: resumeID,
		OwnerID:        userID,
		AmountCents:    price,
		Currency:       s.opts.Currency,
		Outcome:        models.OutcomePending,
		CreatedAt:      s.now(),
	}
	cs, err := s.gateway.CreateSession(ctx, CheckoutRequest{
		AmountCents: price,
		Currency:    s.opts.Currency,
		ServiceType: service,
		OwnerID:     userID,
		ResumeID:    resumeID,
		Description: serviceDescriptions[service],
		SuccessURL:  s.opts.SuccessURL,
		CancelURL:   s.opts.CancelURL,
		Metadata:    rec.Metadata(),
	})
	if err != nil {
		log.Printf("checkout create failed user=%s service=%s err=%v", userID, service, err)
		return models.Checkout{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	rec.SessionID = cs.SessionID
	rec.ExpiresAt = cs.ExpiresAt
	if err := s.store.CreateSession(ctx, rec); err != nil {
		log.Printf("checkout session not recorded session=%s user=%s err=%v", cs.SessionID, userID, err)
		return models.Checkout{}, translate(err)
	}
	log.Printf("checkout started session=%s user=%s service=%s amount=%d", cs.SessionID, userID, service, price)
	return models.Checkout{SessionID: cs.SessionID, URL: cs.RedirectURL}, nil
}

// reviewCheckoutAllowed refuses a second review while one is open.
func (s *Service) reviewCheckoutAllowed(ctx context.Context, resumeID string) error {
	_, open, err := s.store.OpenReviewFor(ctx, resumeID)
	if err != nil {
		return translate(err)
	}
	if open {
		return ErrReviewOpen
	}
	return nil
}

// supersedeReviewCheckouts expires the earlier review checkouts for resumeID
// so only the newest one can be paid, and records each verdict. A checkout
// that turns out to be paid opens its review and the new one is refused, as
// is one whose payment is still processing. Two checkouts started at the
// same moment can both survive; the second payment is then rejected when it
// is applied.
func (s *Service) supersedeReviewCheckouts(ctx context.Context, resumeID string) error {
	pending, err := s.store.PendingReviewSessions(ctx, resumeID, s.now())
	if err != nil {
		return translate(err)
	}
	for _, rec := range pending {
		conf, err := s.gateway.ExpireSession(ctx, rec.SessionID)
		if err != nil {
			log.Printf("checkout expire failed session=%s err=%v", rec.SessionID, err)
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		if conf.Status == models.GatewayOpen {
			return ErrReviewOpen
		}
		conf.SessionID = rec.SessionID
		applied, _, err := s.ApplyConfirmedPayment(ctx, conf)
		if err != nil {
			return err
		}
		log.Printf("review checkout superseded session=%s resume=%s outcome=%s", rec.SessionID, resumeID, applied.Outcome)
		if applied.Outcome == models.OutcomeGranted {
			return ErrReviewOpen
		}
	}
	return nil
}

// ApplyConfirmedPayment applies a gateway verdict exactly once. A replay of
// an applied session is a successful no-op reported with applied=false. An
// open verdict marks nothing.
func (s *Service) ApplyConfirmedPayment(ctx context.Context, c Confirmation) (models.PaymentSession, bool, error) {
	rec, err := s.store.GetSession(ctx, c.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PaymentSession{}, false, ErrUnknownSession
	}
	if err != nil {
		return models.PaymentSession{}, false, translate(err)
	}
	if err := matchMetadata(rec, c.Metadata); err != nil {
		log.Printf("payment metadata mismatch session=%s err=%v", c.SessionID, err)
		return models.PaymentSession{}, false, ErrUnknownSession
	}
	if rec.Applied() {
		s.debugf("payment replay ignored session=%s outcome=%s", rec.SessionID, rec.Outcome)
		return rec, false, nil
	}
	if c.Status == models.GatewayOpen {
		s.debugf("payment still open session=%s", rec.SessionID)
		return rec, false, nil
	}

	var (
		events  []models.ReviewEvent
		applied bool
	)
	err = retryConflict(func() error {
		events = nil
		var err error
		rec, applied, err = s.store.ApplySession(ctx, c.SessionID, s.now(), func(ctx context.Context, tx store.Mutator, rec models.PaymentSession) (models.PaymentOutcome, error) {
			if c.Status != models.GatewayPaid {
				return models.OutcomeUnpaid, nil
			}
			ev, outcome, err := s.grant(ctx, tx, rec)
			if ev != nil {
				events = append(events, *ev)
			}
			return outcome, err
		})
		return err
	})
	if err != nil {
		log.Printf("payment apply failed session=%s err=%v", c.SessionID, err)
		return models.PaymentSession{}, false, translate(err)
	}
	if applied {
		log.Printf("payment applied session=%s user=%s service=%s outcome=%s", rec.SessionID, rec.OwnerID, rec.ServiceType, rec.Outcome)
		s.publish(ctx, events...)
	}
	return rec, applied, nil
}

// grant performs the single mutation a paid session buys.
func (s *Service) grant(ctx context.Context, tx store.Mutator, rec models.PaymentSession) (*models.ReviewEvent, models.PaymentOutcome, error) {
	switch rec.ServiceType {
	case models.ServiceATSCredit:
		_, err := tx.GrantCredits(ctx, rec.OwnerID, models.PoolATS, 1)
		return nil, models.OutcomeGranted, err
	case models.ServiceOptimizationCredit:
		_, err := tx.GrantCredits(ctx, rec.OwnerID, models.PoolOptimization, 1)
		return nil, models.OutcomeGranted, err
	case models.ServiceSubscription:
		_, err := tx.ExtendSubscription(ctx, rec.OwnerID, s.opts.SubscriptionPeriod, s.now())
		return nil, models.OutcomeGranted, err
	case models.ServiceReview:
		now := s.now()
		order, err := tx.OpenReview(ctx, models.ReviewOrder{
			ID:            s.opts.NewID(),
			ResumeID:      rec.TargetResumeID,
			OwnerID:       rec.OwnerID,
			SessionID:     rec.SessionID,
			SubmittedDate: now,
			UpdatedAt:     now,
		})
		switch {
		case errors.Is(err, store.ErrReviewOpen), errors.Is(err, store.ErrNotFound):
			log.Printf("paid review rejected, refund needed session=%s user=%s resume=%s amount=%d err=%v",
				rec.SessionID, rec.OwnerID, rec.TargetResumeID, rec.AmountCents, err)
			return nil, models.OutcomeRejected, nil
		case err != nil:
			return nil, "", err
		}
		return reviewEvent(models.ReviewEventRequested, order, now), models.OutcomeGranted, nil
	}
	return nil, "", fmt.Errorf("unknown service type %q", rec.ServiceType)
}

// matchMetadata checks the echoed checkout metadata against the record. Keys
// the gateway did not send are not compared.
func matchMetadata(rec models.PaymentSession, md map[string]string) error {
	if len(md) == 0 {
		return nil
	}
	for k, want := range rec.Metadata() {
		if got, ok := md[k]; ok && got != want {
			return fmt.Errorf("%s: got %q want %q", k, got, want)
		}
	}
	if got := md[models.MetaResumeID]; got != "" && rec.TargetResumeID == "" {
		return fmt.Errorf("%s: unexpected %q", models.MetaResumeID, got)
	}
	return nil
}

// SyncSession is the client poll after the gateway redirect. It asks the
// gateway for the verdict and applies it.
func (s *Service) SyncSession(ctx context.Context, userID, sessionID string) (models.PaymentSession, error) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PaymentSession{}, ErrUnknownSession
	}
	if err != nil {
		return models.PaymentSession{}, translate(err)
	}
	if rec.OwnerID != userID {
		return models.PaymentSession{}, ErrForbidden
	}
	if rec.Applied() {
		return rec, nil
	}

	conf, err := s.gateway.SessionStatus(ctx, sessionID)
	if err != nil {
		log.Printf("session status lookup failed session=%s err=%v", sessionID, err)
		return models.PaymentSession{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	conf.SessionID = sessionID
	rec, _, err = s.ApplyConfirmedPayment(ctx, conf)
	return rec, err
}
