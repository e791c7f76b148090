package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"example/resume-api/app/models"
)

// Memory is an in-process Store used for local runs without Postgres and for
// tests. Entitlements are sharded by user so ledger writes for different
// users do not contend. Everything else sits under one map lock; multi-step
// sequences additionally hold a per-session or per-resume lock, always taken
// in session -> resume order.
type Memory struct {
	ledger [ledgerShards]ledgerShard

	mu          sync.RWMutex
	submissions map[string]models.Submission
	reviews     map[string]models.ReviewOrder
	sessions    map[string]models.PaymentSession

	sessionLocks keyedMutex
	resumeLocks  keyedMutex
}

const ledgerShards = 32

type ledgerShard struct {
	mu           sync.Mutex
	entitlements map[string]models.Entitlement
}

func NewMemory() *Memory {
	m := &Memory{
		submissions: make(map[string]models.Submission),
		reviews:     make(map[string]models.ReviewOrder),
		sessions:    make(map[string]models.PaymentSession),
	}
	for i := range m.ledger {
		m.ledger[i].entitlements = make(map[string]models.Entitlement)
	}
	return m
}

var _ Store = (*Memory)(nil)

// --- ledger ---

func shardIndex(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return h.Sum32() % ledgerShards
}

// account locks the user's shard and returns it; callers must unlock.
func (m *Memory) account(userID string) *ledgerShard {
	sh := &m.ledger[shardIndex(userID)]
	sh.mu.Lock()
	return sh
}

func (sh *ledgerShard) get(userID string) models.Entitlement {
	ent, ok := sh.entitlements[userID]
	if !ok {
		return models.NewEntitlement(userID)
	}
	ent.SubscriptionExpiresAt = copyTime(ent.SubscriptionExpiresAt)
	return ent
}

func (sh *ledgerShard) put(ent models.Entitlement) models.Entitlement {
	sh.entitlements[ent.UserID] = ent
	return sh.get(ent.UserID)
}

func (m *Memory) EnsureAccount(_ context.Context, userID string) error {
	sh := m.account(userID)
	defer sh.mu.Unlock()
	if _, ok := sh.entitlements[userID]; !ok {
		sh.entitlements[userID] = models.NewEntitlement(userID)
	}
	return nil
}

func (m *Memory) ReadEntitlement(_ context.Context, userID string) (models.Entitlement, error) {
	sh := m.account(userID)
	defer sh.mu.Unlock()
	return sh.get(userID), nil
}

func (m *Memory) GrantCredits(_ context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error) {
	if !pool.Valid() || amount < 0 {
		return models.Entitlement{}, fmt.Errorf("store: invalid grant %d of %q", amount, pool)
	}
	sh := m.account(userID)
	defer sh.mu.Unlock()
	ent := sh.get(userID)
	switch pool {
	case models.PoolATS:
		ent.ATSCredits += amount
	case models.PoolOptimization:
		ent.OptimizationCredits += amount
	}
	return sh.put(ent), nil
}

func (m *Memory) ConsumeCredit(_ context.Context, userID string, pool models.CreditPool) (models.Entitlement, error) {
	sh := m.account(userID)
	defer sh.mu.Unlock()
	ent := sh.get(userID)
	switch {
	case pool == models.PoolATS && ent.ATSCredits > 0:
		ent.ATSCredits--
	case pool == models.PoolOptimization && ent.OptimizationCredits > 0:
		ent.OptimizationCredits--
	default:
		return ent, ErrInsufficientCredit
	}
	return sh.put(ent), nil
}

func (m *Memory) SetSubscription(_ context.Context, userID string, status models.SubscriptionStatus, expiresAt *time.Time) (models.Entitlement, error) {
	sh := m.account(userID)
	defer sh.mu.Unlock()
	ent := sh.get(userID)
	ent.SubscriptionStatus = status
	ent.SubscriptionExpiresAt = copyTime(expiresAt)
	return sh.put(ent), nil
}

func (m *Memory) ExtendSubscription(_ context.Context, userID string, period time.Duration, now time.Time) (models.Entitlement, error) {
	sh := m.account(userID)
	defer sh.mu.Unlock()
	ent := sh.get(userID)
	ent.SubscriptionExpiresAt = ent.ExtendedExpiry(now, period)
	ent.SubscriptionStatus = models.SubscriptionPremium
	return sh.put(ent), nil
}

// --- submissions ---

func (m *Memory) CreateSubmission(_ context.Context, sub models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[sub.ID]; ok {
		return ErrDuplicate
	}
	m.submissions[sub.ID] = sub.Clone()
	return nil
}

func (m *Memory) GetSubmission(_ context.Context, id string) (models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	return sub.Clone(), nil
}

func (m *Memory) ListSubmissions(_ context.Context, ownerID string) ([]models.Submission, error) {
	m.mu.RLock()
	out := make([]models.Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		if ownerID == "" || sub.OwnerID == ownerID {
			out = append(out, sub.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (m *Memory) UpdateSubmission(_ context.Context, sub models.Submission) (models.Submission, error) {
	unlock := m.resumeLocks.Lock(sub.ID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.submissions[sub.ID]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	if cur.Version != sub.Version {
		return models.Submission{}, ErrConflict
	}
	next := sub.Clone()
	next.Version = cur.Version + 1
	m.submissions[sub.ID] = next
	return next.Clone(), nil
}

// --- reviews ---

func (m *Memory) GetReview(_ context.Context, id string) (models.ReviewOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return models.ReviewOrder{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) ListReviews(_ context.Context, f ReviewFilter) ([]models.ReviewOrder, error) {
	m.mu.RLock()
	out := make([]models.ReviewOrder, 0)
	for _, r := range m.reviews {
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		if f.ResumeID != "" && r.ResumeID != f.ResumeID {
			continue
		}
		if f.OpenOnly && r.Status.Terminal() {
			continue
		}
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedDate.Equal(out[j].SubmittedDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedDate.Before(out[j].SubmittedDate)
	})
	return out, nil
}

func (m *Memory) OpenReviewFor(_ context.Context, resumeID string) (models.ReviewOrder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.openReviewLocked(resumeID, "")
	return r, ok, nil
}

func (m *Memory) openReviewLocked(resumeID, exceptID string) (models.ReviewOrder, bool) {
	for _, r := range m.reviews {
		if r.ResumeID == resumeID && r.ID != exceptID && !r.Status.Terminal() {
			return r.Clone(), true
		}
	}
	return models.ReviewOrder{}, false
}

func (m *Memory) OpenReview(_ context.Context, order models.ReviewOrder) (models.ReviewOrder, error) {
	unlock := m.resumeLocks.Lock(order.ResumeID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[order.ResumeID]
	if !ok {
		return models.ReviewOrder{}, ErrNotFound
	}
	if _, open := m.openReviewLocked(order.ResumeID, ""); open {
		return models.ReviewOrder{}, ErrReviewOpen
	}
	if _, ok := m.reviews[order.ID]; ok {
		return models.ReviewOrder{}, ErrDuplicate
	}
	sub = sub.Clone()
	prev := sub.Status
	if !sub.Advance(models.StatusPendingReview) {
		return models.ReviewOrder{}, ErrReviewOpen
	}
	sub.StatusBeforeReview = prev
	sub.Version++

	order.Status = models.ReviewRequested
	m.reviews[order.ID] = order.Clone()
	m.submissions[sub.ID] = sub
	return order.Clone(), nil
}

func (m *Memory) UpdateReview(_ context.Context, id string, fn ReviewMutation) (models.ReviewOrder, *models.Submission, error) {
	m.mu.RLock()
	existing, ok := m.reviews[id]
	m.mu.RUnlock()
	if !ok {
		return models.ReviewOrder{}, nil, ErrNotFound
	}

	unlock := m.resumeLocks.Lock(existing.ResumeID)
	defer unlock()

	m.mu.RLock()
	order := m.reviews[id].Clone()
	var sub *models.Submission
	if s, ok := m.submissions[order.ResumeID]; ok {
		c := s.Clone()
		sub = &c
	}
	m.mu.RUnlock()

	wasTerminal := order.Status.Terminal()
	var before models.Submission
	if sub != nil {
		before = sub.Clone()
	}
	if err := fn(&order, sub); err != nil {
		return models.ReviewOrder{}, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if wasTerminal && !order.Status.Terminal() {
		if _, open := m.openReviewLocked(order.ResumeID, order.ID); open {
			return models.ReviewOrder{}, nil, ErrReviewOpen
		}
	}
	m.reviews[order.ID] = order.Clone()
	if sub != nil {
		if reviewTouched(before, *sub) {
			sub.Version = before.Version + 1
		}
		m.submissions[sub.ID] = sub.Clone()
	}
	return order, sub, nil
}

// reviewTouched reports whether a review mutation changed the fields the
// review flow owns.
func reviewTouched(before, after models.Submission) bool {
	if before.Status != after.Status || before.StatusBeforeReview != after.StatusBeforeReview {
		return true
	}
	if before.OptimizedArtifact != after.OptimizedArtifact {
		return true
	}
	if (before.CompletedAt == nil) != (after.CompletedAt == nil) {
		return true
	}
	return before.CompletedAt != nil && !before.CompletedAt.Equal(*after.CompletedAt)
}

// --- payment sessions ---

func (m *Memory) CreateSession(_ context.Context, rec models.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[rec.SessionID]; ok {
		return ErrDuplicate
	}
	if rec.Outcome == "" {
		rec.Outcome = models.OutcomePending
	}
	m.sessions[rec.SessionID] = rec.Clone()
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (models.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return models.PaymentSession{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) PendingReviewSessions(_ context.Context, resumeID string, now time.Time) ([]models.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PaymentSession
	for _, rec := range m.sessions {
		if rec.ServiceType != models.ServiceReview || rec.TargetResumeID != resumeID || rec.Applied() {
			continue
		}
		if rec.ExpiresAt == nil || now.Before(*rec.ExpiresAt) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ApplySession(ctx context.Context, id string, now time.Time, fn ApplyFunc) (models.PaymentSession, bool, error) {
	unlock := m.sessionLocks.Lock(id)
	defer unlock()

	rec, err := m.GetSession(ctx, id)
	if err != nil {
		return models.PaymentSession{}, false, err
	}
	if rec.Applied() {
		return rec, false, nil
	}

	outcome, err := fn(ctx, m, rec)
	if err != nil {
		return models.PaymentSession{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	applied := now
	rec.AppliedAt = &applied
	rec.Outcome = outcome
	m.sessions[id] = rec.Clone()
	return rec, true, nil
}

// --- stats ---

func (m *Memory) Stats(_ context.Context) (models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := models.Stats{SubmissionsByStatus: make(map[models.SubmissionStatus]int)}
	for _, sub := range m.submissions {
		st.SubmissionsByStatus[sub.Status]++
	}
	for _, r := range m.reviews {
		if !r.Status.Terminal() {
			st.OpenReviews++
		}
	}
	for _, rec := range m.sessions {
		if !rec.Applied() {
			continue
		}
		st.AppliedSessions++
		if rec.Outcome == models.OutcomeGranted {
			st.RevenueCents += rec.AmountCents
		}
	}
	return st, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
