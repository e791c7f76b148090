package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"example/resume-api/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSubmission(t *testing.T, s Store, id string, status models.SubmissionStatus) models.Submission {
	t.Helper()
	sub := models.Submission{ID: id, OwnerID: "user-1", Status: status, FileName: "cv.pdf", SubmittedAt: t0}
	require.NoError(t, s.CreateSubmission(context.Background(), sub))
	return sub
}

func TestMemoryConsumeLastCreditOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.GrantCredits(ctx, "u", models.PoolATS, 1)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted int32
		denied  int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ConsumeCredit(ctx, "u", models.PoolATS)
			switch {
			case err == nil:
				atomic.AddInt32(&granted, 1)
			case errors.Is(err, ErrInsufficientCredit):
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, granted)
	assert.EqualValues(t, 31, denied)
	ent, err := m.ReadEntitlement(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, ent.ATSCredits)
}

func TestMemoryConsumeUnknownUser(t *testing.T) {
	_, err := NewMemory().ConsumeCredit(context.Background(), "ghost", models.PoolOptimization)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestMemoryReadEntitlementDefault(t *testing.T) {
	ent, err := NewMemory().ReadEntitlement(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, models.NewEntitlement("new"), ent)
}

func TestMemoryExtendSubscriptionStacks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	period := 30 * 24 * time.Hour

	ent, err := m.ExtendSubscription(ctx, "u", period, t0)
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionExpiresAt)
	assert.Equal(t, t0.Add(period), *ent.SubscriptionExpiresAt)

	ent, err = m.ExtendSubscription(ctx, "u", period, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*period), *ent.SubscriptionExpiresAt)
	assert.Equal(t, models.SubscriptionPremium, ent.SubscriptionStatus)
}

func TestMemoryUpdateSubmissionVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub := seedSubmission(t, m, "r1", models.StatusUploaded)

	sub.Status = models.StatusBasicATSComplete
	saved, err := m.UpdateSubmission(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	// stale copy
	_, err = m.UpdateSubmission(ctx, sub)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = m.UpdateSubmission(ctx, models.Submission{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub := seedSubmission(t, m, "r1", models.StatusUploaded)
	sub.Feedback = []models.Feedback{{Kind: models.FeedbackPositive, Message: "ok"}}
	_, err := m.UpdateSubmission(ctx, sub)
	require.NoError(t, err)

	got, err := m.GetSubmission(ctx, "r1")
	require.NoError(t, err)
	got.Feedback[0].Message = "changed"

	again, err := m.GetSubmission(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ok", again.Feedback[0].Message)
}

func TestMemoryOpenReviewSingleOpenOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedSubmission(t, m, "r1", models.StatusBasicATSComplete)

	order, err := m.OpenReview(ctx, models.ReviewOrder{ID: "o1", ResumeID: "r1", OwnerID: "user-1", SubmittedDate: t0})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRequested, order.Status)

	sub, err := m.GetSubmission(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, sub.Status)
	assert.Equal(t, models.StatusBasicATSComplete, sub.StatusBeforeReview)

	_, err = m.OpenReview(ctx, models.ReviewOrder{ID: "o2", ResumeID: "r1", OwnerID: "user-1", SubmittedDate: t0})
	assert.ErrorIs(t, err, ErrReviewOpen)

	_, err = m.OpenReview(ctx, models.ReviewOrder{ID: "o3", ResumeID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateReviewReopenBlockedByOtherOpenOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedSubmission(t, m, "r1", models.StatusBasicATSComplete)
	_, err := m.OpenReview(ctx, models.ReviewOrder{ID: "o1", ResumeID: "r1", SubmittedDate: t0})
	require.NoError(t, err)

	_, _, err = m.UpdateReview(ctx, "o1", func(o *models.ReviewOrder, sub *models.Submission) error {
		o.Status = models.ReviewCancelled
		sub.Status = sub.StatusBeforeReview
		return nil
	})
	require.NoError(t, err)

	_, err = m.OpenReview(ctx, models.ReviewOrder{ID: "o2", ResumeID: "r1", SubmittedDate: t0.Add(time.Hour)})
	require.NoError(t, err)

	_, _, err = m.UpdateReview(ctx, "o1", func(o *models.ReviewOrder, _ *models.Submission) error {
		o.Status = models.ReviewInProgress
		return nil
	})
	assert.ErrorIs(t, err, ErrReviewOpen)
}

func TestMemoryUpdateReviewWithoutSubmission(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.reviews["o1"] = models.ReviewOrder{ID: "o1", ResumeID: "gone", Status: models.ReviewRequested}

	order, sub, err := m.UpdateReview(ctx, "o1", func(o *models.ReviewOrder, sub *models.Submission) error {
		assert.Nil(t, sub)
		o.Status = models.ReviewCancelled
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Equal(t, models.ReviewCancelled, order.Status)
}

func TestMemoryUpdateReviewErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedSubmission(t, m, "r1", models.StatusUploaded)
	_, err := m.OpenReview(ctx, models.ReviewOrder{ID: "o1", ResumeID: "r1", SubmittedDate: t0})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = m.UpdateReview(ctx, "o1", func(o *models.ReviewOrder, sub *models.Submission) error {
		o.Status = models.ReviewAssigned
		sub.Status = models.StatusUploaded
		return boom
	})
	assert.ErrorIs(t, err, boom)

	order, err := m.GetReview(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRequested, order.Status)
	sub, err := m.GetSubmission(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, sub.Status)
}

func TestMemoryApplySessionOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{
		SessionID: "cs_1", ServiceType: models.ServiceATSCredit, OwnerID: "u", AmountCents: 500, CreatedAt: t0,
	}))
	assert.ErrorIs(t, m.CreateSession(ctx, models.PaymentSession{SessionID: "cs_1"}), ErrDuplicate)

	var calls int32
	apply := func(ctx context.Context, tx Mutator, rec models.PaymentSession) (models.PaymentOutcome, error) {
		atomic.AddInt32(&calls, 1)
		if _, err := tx.GrantCredits(ctx, rec.OwnerID, models.PoolATS, 1); err != nil {
			return "", err
		}
		return models.OutcomeGranted, nil
	}

	var (
		wg      sync.WaitGroup
		applied int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.ApplySession(ctx, "cs_1", t0, apply)
			if err == nil && ok {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	assert.EqualValues(t, 1, applied)
	ent, err := m.ReadEntitlement(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, ent.ATSCredits)

	rec, err := m.GetSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, rec.Applied())
	assert.Equal(t, models.OutcomeGranted, rec.Outcome)
}

func TestMemoryApplySessionErrorLeavesUnapplied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{SessionID: "cs_1", OwnerID: "u"}))

	_, _, err := m.ApplySession(ctx, "cs_1", t0, func(context.Context, Mutator, models.PaymentSession) (models.PaymentOutcome, error) {
		return "", errors.New("transient")
	})
	require.Error(t, err)

	rec, err := m.GetSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, rec.Applied())

	_, _, err = m.ApplySession(ctx, "missing", t0, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPendingReviewSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	exp := t0.Add(time.Hour)
	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{
		SessionID: "cs_r2", ServiceType: models.ServiceReview, TargetResumeID: "r1", OwnerID: "u",
		CreatedAt: t0.Add(time.Minute), ExpiresAt: &exp,
	}))
	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{
		SessionID: "cs_r1", ServiceType: models.ServiceReview, TargetResumeID: "r1", OwnerID: "u",
		CreatedAt: t0, ExpiresAt: &exp,
	}))
	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{
		SessionID: "cs_ats", ServiceType: models.ServiceATSCredit, OwnerID: "u", CreatedAt: t0, ExpiresAt: &exp,
	}))

	pending, err := m.PendingReviewSessions(ctx, "r1", t0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "cs_r1", pending[0].SessionID)
	assert.Equal(t, "cs_r2", pending[1].SessionID)

	pending, err = m.PendingReviewSessions(ctx, "r1", exp.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = m.PendingReviewSessions(ctx, "r2", t0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryListAndStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	older := models.Submission{ID: "a", OwnerID: "u1", Status: models.StatusUploaded, SubmittedAt: t0}
	newer := models.Submission{ID: "b", OwnerID: "u1", Status: models.StatusBasicATSComplete, SubmittedAt: t0.Add(time.Minute)}
	other := models.Submission{ID: "c", OwnerID: "u2", Status: models.StatusBasicATSComplete, SubmittedAt: t0}
	for _, s := range []models.Submission{older, newer, other} {
		require.NoError(t, m.CreateSubmission(ctx, s))
	}

	list, err := m.ListSubmissions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	all, err := m.ListSubmissions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, m.CreateSession(ctx, models.PaymentSession{SessionID: "s", OwnerID: "u1", AmountCents: 1500}))
	_, _, err = m.ApplySession(ctx, "s", t0, func(context.Context, Mutator, models.PaymentSession) (models.PaymentOutcome, error) {
		return models.OutcomeGranted, nil
	})
	require.NoError(t, err)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.SubmissionsByStatus[models.StatusBasicATSComplete])
	assert.Equal(t, 1, st.AppliedSessions)
	assert.EqualValues(t, 1500, st.RevenueCents)
}

func TestMemoryLedgerShardsByUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	held := m.account("busy-user")
	var other string
	for i := 0; ; i++ {
		other = fmt.Sprintf("user-%d", i)
		if sh := &m.ledger[shardIndex(other)]; sh != held {
			break
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.GrantCredits(ctx, other, models.PoolATS, 1)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("grant for another user waited on a foreign shard")
	}
	held.mu.Unlock()

	ent, err := m.ReadEntitlement(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.ATSCredits)
}
