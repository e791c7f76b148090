package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example/resume-api/app/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Postgres is the production Store on lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return classify(tx.Commit())
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "23505":
			if pqErr.Constraint == "review_orders_one_open_idx" {
				return ErrReviewOpen
			}
			return ErrDuplicate
		case "23514":
			return ErrInsufficientCredit
		}
	}
	return err
}

// --- ledger ---

const entitlementCols = `user_id, ats_credits, optimization_credits, subscription_status, subscription_expires_at`

func scanEntitlement(row scanner) (models.Entitlement, error) {
	var e models.Entitlement
	err := row.Scan(&e.UserID, &e.ATSCredits, &e.OptimizationCredits, &e.SubscriptionStatus, &e.SubscriptionExpiresAt)
	return e, err
}

func creditColumn(pool models.CreditPool) (string, error) {
	switch pool {
	case models.PoolATS:
		return "ats_credits", nil
	case models.PoolOptimization:
		return "optimization_credits", nil
	}
	return "", fmt.Errorf("store: unknown credit pool %q", pool)
}

func (p *Postgres) EnsureAccount(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO entitlements (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING;
	`, userID)
	return classify(err)
}

func (p *Postgres) ReadEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	ent, err := scanEntitlement(p.db.QueryRowContext(ctx,
		`SELECT `+entitlementCols+` FROM entitlements WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewEntitlement(userID), nil
	}
	return ent, classify(err)
}

func (p *Postgres) GrantCredits(ctx context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error) {
	return pgMutator{q: p.db}.GrantCredits(ctx, userID, pool, amount)
}

// ConsumeCredit is one conditional UPDATE; zero rows means the pool was empty
// or the account does not exist.
func (p *Postgres) ConsumeCredit(ctx context.Context, userID string, pool models.CreditPool) (models.Entitlement, error) {
	col, err := creditColumn(pool)
	if err != nil {
		return models.Entitlement{}, err
	}
	ent, err := scanEntitlement(p.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE entitlements SET %[1]s = %[1]s - 1
		WHERE user_id = $1 AND %[1]s > 0
		RETURNING `+entitlementCols, col), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entitlement{}, ErrInsufficientCredit
	}
	return ent, classify(err)
}

func (p *Postgres) SetSubscription(ctx context.Context, userID string, status models.SubscriptionStatus, expiresAt *time.Time) (models.Entitlement, error) {
	ent, err := scanEntitlement(p.db.QueryRowContext(ctx, `
		INSERT INTO entitlements (user_id, subscription_status, subscription_expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET subscription_status = EXCLUDED.subscription_status,
		    subscription_expires_at = EXCLUDED.subscription_expires_at
		RETURNING `+entitlementCols, userID, string(status), expiresAt))
	return ent, classify(err)
}

// --- submissions ---

const submissionCols = `id, owner_id, status, status_before_review, file_name, original_artifact,
	optimized_artifact, document_text, ats_score, optimization_score, job_description,
	has_keywords, matched_keywords, missing_keywords, feedback, suggestions, edited_text,
	submitted_at, completed_at, version`

func scanSubmission(row scanner) (models.Submission, error) {
	var (
		s                             models.Submission
		hasKeywords                   bool
		matched, missing, suggestions pq.StringArray
		feedback                      []byte
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Status, &s.StatusBeforeReview, &s.FileName, &s.OriginalArtifact,
		&s.OptimizedArtifact, &s.DocumentText, &s.ATSScore, &s.OptimizationScore, &s.JobDescription,
		&hasKeywords, &matched, &missing, &feedback, &suggestions, &s.EditedText,
		&s.SubmittedAt, &s.CompletedAt, &s.Version,
	)
	if err != nil {
		return models.Submission{}, err
	}
	if hasKeywords {
		ka := models.NewKeywordAnalysis(matched, missing)
		s.KeywordAnalysis = &ka
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &s.Feedback); err != nil {
			return models.Submission{}, fmt.Errorf("failed to decode feedback for %s: %w", s.ID, err)
		}
	}
	if len(suggestions) > 0 {
		s.Suggestions = []string(suggestions)
	}
	s.HasOptimizedArtifact = s.OptimizedArtifact != ""
	return s, nil
}

// submissionArgs lines up with submissionCols; version is last.
func submissionArgs(s models.Submission) ([]any, error) {
	fb := s.Feedback
	if fb == nil {
		fb = []models.Feedback{}
	}
	feedback, err := json.Marshal(fb)
	if err != nil {
		return nil, err
	}
	var matched, missing []string
	if s.KeywordAnalysis != nil {
		matched, missing = s.KeywordAnalysis.Matched, s.KeywordAnalysis.Missing
	}
	return []any{
		s.ID, s.OwnerID, string(s.Status), string(s.StatusBeforeReview), s.FileName, s.OriginalArtifact,
		s.OptimizedArtifact, s.DocumentText, s.ATSScore, s.OptimizationScore, s.JobDescription,
		s.KeywordAnalysis != nil, pq.Array(matched), pq.Array(missing), string(feedback), pq.Array(s.Suggestions), s.EditedText,
		s.SubmittedAt, s.CompletedAt, s.Version,
	}, nil
}

func (p *Postgres) CreateSubmission(ctx context.Context, sub models.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);
	`, args...)
	return classify(err)
}

func (p *Postgres) GetSubmission(ctx context.Context, id string) (models.Submission, error) {
	s, err := scanSubmission(p.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id = $1`, id))
	return s, classify(err)
}

func (p *Postgres) ListSubmissions(ctx context.Context, ownerID string) ([]models.Submission, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+submissionCols+`
		FROM submissions
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY submitted_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []models.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateSubmission(ctx context.Context, sub models.Submission) (models.Submission, error) {
	return updateSubmission(ctx, p.db, sub)
}

func updateSubmission(ctx context.Context, q querier, sub models.Submission) (models.Submission, error) {
	args, err := submissionArgs(sub)
	if err != nil {
		return models.Submission{}, err
	}
	var version int
	err = q.QueryRowContext(ctx, `
		UPDATE submissions SET
			owner_id = $2, status = $3, status_before_review = $4, file_name = $5,
			original_artifact = $6, optimized_artifact = $7, document_text = $8,
			ats_score = $9, optimization_score = $10, job_description = $11,
			has_keywords = $12, matched_keywords = $13, missing_keywords = $14,
			feedback = $15, suggestions = $16, edited_text = $17,
			submitted_at = $18, completed_at = $19, version = version + 1
		WHERE id = $1 AND version = $20
		RETURNING version
	`, args...).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
			return models.Submission{}, classify(err)
		}
		if !exists {
			return models.Submission{}, ErrNotFound
		}
		return models.Submission{}, ErrConflict
	}
	if err != nil {
		return models.Submission{}, classify(err)
	}
	out := sub.Clone()
	out.Version = version
	out.HasOptimizedArtifact = out.OptimizedArtifact != ""
	return out, nil
}

// --- reviews ---

const reviewCols = `id, resume_id, owner_id, session_id, status, reviewer_id, reviewer_feedback,
	submitted_date, completed_date, updated_at`

const openReviewPredicate = `status NOT IN ('completed', 'cancelled')`

func scanReview(row scanner) (models.ReviewOrder, error) {
	var r models.ReviewOrder
	err := row.Scan(&r.ID, &r.ResumeID, &r.OwnerID, &r.SessionID, &r.Status, &r.ReviewerID,
		&r.ReviewerFeedback, &r.SubmittedDate, &r.CompletedDate, &r.UpdatedAt)
	return r, err
}

func (p *Postgres) GetReview(ctx context.Context, id string) (models.ReviewOrder, error) {
	r, err := scanReview(p.db.QueryRowContext(ctx, `SELECT `+reviewCols+` FROM review_orders WHERE id = $1`, id))
	return r, classify(err)
}

func (p *Postgres) ListReviews(ctx context.Context, f ReviewFilter) ([]models.ReviewOrder, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+reviewCols+`
		FROM review_orders
		WHERE ($1 = '' OR owner_id = $1)
		  AND ($2 = '' OR resume_id = $2)
		  AND (NOT $3 OR `+openReviewPredicate+`)
		ORDER BY submitted_date, id
	`, f.OwnerID, f.ResumeID, f.OpenOnly)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []models.ReviewOrder{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) OpenReviewFor(ctx context.Context, resumeID string) (models.ReviewOrder, bool, error) {
	r, err := scanReview(p.db.QueryRowContext(ctx, `
		SELECT `+reviewCols+` FROM review_orders
		WHERE resume_id = $1 AND `+openReviewPredicate+`
		LIMIT 1
	`, resumeID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewOrder{}, false, nil
	}
	if err != nil {
		return models.ReviewOrder{}, false, classify(err)
	}
	return r, true, nil
}

// UpdateReview locks the order row, then the submission row.
func (p *Postgres) UpdateReview(ctx context.Context, id string, fn ReviewMutation) (models.ReviewOrder, *models.Submission, error) {
	var (
		order  models.ReviewOrder
		outSub *models.Submission
	)
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		o, err := scanReview(tx.QueryRowContext(ctx,
			`SELECT `+reviewCols+` FROM review_orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return classify(err)
		}

		var sub *models.Submission
		s, err := scanSubmission(tx.QueryRowContext(ctx,
			`SELECT `+submissionCols+` FROM submissions WHERE id = $1 FOR UPDATE`, o.ResumeID))
		switch {
		case err == nil:
			sub = &s
		case errors.Is(err, sql.ErrNoRows):
		default:
			return classify(err)
		}

		var before models.Submission
		if sub != nil {
			before = sub.Clone()
		}
		if err := fn(&o, sub); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE review_orders
			SET status = $2, reviewer_id = $3, reviewer_feedback = $4, completed_date = $5, updated_at = $6
			WHERE id = $1
		`, o.ID, string(o.Status), o.ReviewerID, o.ReviewerFeedback, o.CompletedDate, o.UpdatedAt)
		if err != nil {
			return classify(err)
		}

		if sub != nil && reviewTouched(before, *sub) {
			sub.Version = before.Version
			next, err := updateSubmission(ctx, tx, *sub)
			if err != nil {
				return err
			}
			sub = &next
		}
		order, outSub = o, sub
		return nil
	})
	if err != nil {
		return models.ReviewOrder{}, nil, err
	}
	return order, outSub, nil
}

// --- payment sessions ---

const sessionCols = `session_id, service_type, target_resume_id, owner_id, amount_cents, currency,
	outcome, created_at, expires_at, applied_at`

func scanSession(row scanner) (models.PaymentSession, error) {
	var s models.PaymentSession
	err := row.Scan(&s.SessionID, &s.ServiceType, &s.TargetResumeID, &s.OwnerID, &s.AmountCents,
		&s.Currency, &s.Outcome, &s.CreatedAt, &s.ExpiresAt, &s.AppliedAt)
	return s, err
}

func (p *Postgres) CreateSession(ctx context.Context, rec models.PaymentSession) error {
	if rec.Outcome == "" {
		rec.Outcome = models.OutcomePending
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (`+sessionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`, rec.SessionID, string(rec.ServiceType), rec.TargetResumeID, rec.OwnerID, rec.AmountCents,
		rec.Currency, string(rec.Outcome), rec.CreatedAt, rec.ExpiresAt, rec.AppliedAt)
	return classify(err)
}

func (p *Postgres) GetSession(ctx context.Context, id string) (models.PaymentSession, error) {
	s, err := scanSession(p.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM payment_sessions WHERE session_id = $1`, id))
	return s, classify(err)
}

func (p *Postgres) PendingReviewSessions(ctx context.Context, resumeID string, now time.Time) ([]models.PaymentSession, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM payment_sessions
		WHERE service_type = 'review'
		  AND target_resume_id = $1
		  AND applied_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at, session_id
	`, resumeID, now)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, s)
	}
	return out, classify(rows.Err())
}

// ApplySession holds the session row lock for the whole unit of work, so a
// second delivery of the same confirmation waits and then sees applied_at.
func (p *Postgres) ApplySession(ctx context.Context, id string, now time.Time, fn ApplyFunc) (models.PaymentSession, bool, error) {
	var (
		rec     models.PaymentSession
		applied bool
	)
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		s, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT `+sessionCols+` FROM payment_sessions WHERE session_id = $1 FOR UPDATE`, id))
		if err != nil {
			return classify(err)
		}
		if s.Applied() {
			rec = s
			return nil
		}

		outcome, err := fn(ctx, pgMutator{q: tx}, s.Clone())
		if err != nil {
			return err
		}

		at := now
		s.AppliedAt = &at
		s.Outcome = outcome
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_sessions SET applied_at = $2, outcome = $3 WHERE session_id = $1
		`, id, s.AppliedAt, string(outcome)); err != nil {
			return classify(err)
		}
		rec, applied = s, true
		return nil
	})
	if err != nil {
		return models.PaymentSession{}, false, err
	}
	return rec, applied, nil
}

// --- stats ---

func (p *Postgres) Stats(ctx context.Context) (models.Stats, error) {
	st := models.Stats{SubmissionsByStatus: make(map[models.SubmissionStatus]int)}

	rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return st, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status models.SubmissionStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		st.SubmissionsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_orders WHERE `+openReviewPredicate).Scan(&st.OpenReviews); err != nil {
		return st, classify(err)
	}
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount_cents) FILTER (WHERE outcome = 'granted'), 0)
		FROM payment_sessions
		WHERE applied_at IS NOT NULL
	`).Scan(&st.AppliedSessions, &st.RevenueCents)
	return st, classify(err)
}

// pgMutator runs payment effects on whatever querier it is bound to; inside
// ApplySession that is the session's transaction.
type pgMutator struct {
	q querier
}

func (m pgMutator) GrantCredits(ctx context.Context, userID string, pool models.CreditPool, amount int) (models.Entitlement, error) {
	col, err := creditColumn(pool)
	if err != nil {
		return models.Entitlement{}, err
	}
	if amount < 0 {
		return models.Entitlement{}, fmt.Errorf("store: invalid grant %d", amount)
	}
	ent, err := scanEntitlement(m.q.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO entitlements (user_id, %[1]s) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = entitlements.%[1]s + EXCLUDED.%[1]s
		RETURNING `+entitlementCols, col), userID, amount))
	return ent, classify(err)
}

func (m pgMutator) ExtendSubscription(ctx context.Context, userID string, period time.Duration, now time.Time) (models.Entitlement, error) {
	if _, err := m.q.ExecContext(ctx, `
		INSERT INTO entitlements (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING;
	`, userID); err != nil {
		return models.Entitlement{}, classify(err)
	}
	cur, err := scanEntitlement(m.q.QueryRowContext(ctx,
		`SELECT `+entitlementCols+` FROM entitlements WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Entitlement{}, classify(err)
	}
	ent, err := scanEntitlement(m.q.QueryRowContext(ctx, `
		UPDATE entitlements
		SET subscription_status = $2, subscription_expires_at = $3
		WHERE user_id = $1
		RETURNING `+entitlementCols,
		userID, string(models.SubscriptionPremium), cur.ExtendedExpiry(now, period)))
	return ent, classify(err)
}

func (m pgMutator) OpenReview(ctx context.Context, order models.ReviewOrder) (models.ReviewOrder, error) {
	sub, err := scanSubmission(m.q.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id = $1 FOR UPDATE`, order.ResumeID))
	if err != nil {
		return models.ReviewOrder{}, classify(err)
	}

	var open bool
	if err := m.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM review_orders WHERE resume_id = $1 AND `+openReviewPredicate+`)
	`, order.ResumeID).Scan(&open); err != nil {
		return models.ReviewOrder{}, classify(err)
	}
	if open {
		return models.ReviewOrder{}, ErrReviewOpen
	}

	prev := sub.Status
	if !sub.Advance(models.StatusPendingReview) {
		return models.ReviewOrder{}, ErrReviewOpen
	}
	sub.StatusBeforeReview = prev

	// The insert can still hit review_orders_one_open_idx. Roll back to the
	// savepoint so the caller's transaction stays usable for recording the
	// rejection.
	order.Status = models.ReviewRequested
	if _, err := m.q.ExecContext(ctx, `SAVEPOINT open_review`); err != nil {
		return models.ReviewOrder{}, classify(err)
	}
	if _, err := m.q.ExecContext(ctx, `
		INSERT INTO review_orders (`+reviewCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`, order.ID, order.ResumeID, order.OwnerID, order.SessionID, string(order.Status), order.ReviewerID,
		order.ReviewerFeedback, order.SubmittedDate, order.CompletedDate, order.UpdatedAt); err != nil {
		if _, rbErr := m.q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT open_review`); rbErr != nil {
			return models.ReviewOrder{}, classify(rbErr)
		}
		return models.ReviewOrder{}, classify(err)
	}
	if _, err := m.q.ExecContext(ctx, `RELEASE SAVEPOINT open_review`); err != nil {
		return models.ReviewOrder{}, classify(err)
	}
	if _, err := updateSubmission(ctx, m.q, sub); err != nil {
		return models.ReviewOrder{}, err
	}
	return order, nil
}
