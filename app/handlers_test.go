package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example/resume-api/app/billing"
	"example/resume-api/app/models"
	"example/resume-api/app/notify"
	"example/resume-api/app/reconcile"
	"example/resume-api/app/scoring"
	"example/resume-api/app/storage"
	"example/resume-api/app/store"
	"example/resume-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	testWebhookSecret = "whsec_handlers"
	operatorScope     = "admin:reviews"
	resumeText        = "Jane Doe\njane@example.com\n+1 555 123 4567\n\nExperience\n- Led migration of billing to Go, cutting costs 30%\n- Built internal APIs\n\nEducation\nBSc Computer Science\n\nSkills\nGo, SQL, Docker\n"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testGateway struct {
	n  int
	md map[string]map[string]string
}

func (g *testGateway) CreateSession(_ context.Context, req reconcile.CheckoutRequest) (reconcile.CheckoutSession, error) {
	g.n++
	id := fmt.Sprintf("cs_test_%d", g.n)
	g.md[id] = req.Metadata
	return reconcile.CheckoutSession{SessionID: id, RedirectURL: "https://checkout.example/" + id}, nil
}

func (g *testGateway) SessionStatus(_ context.Context, id string) (reconcile.Confirmation, error) {
	return reconcile.Confirmation{SessionID: id, Status: models.GatewayOpen}, nil
}

func (g *testGateway) ExpireSession(_ context.Context, id string) (reconcile.Confirmation, error) {
	return reconcile.Confirmation{SessionID: id, Status: models.GatewayUnpaid, Metadata: g.md[id]}, nil
}

// headerAuth stands in for JWT verification: the subject and scope come from
// test headers.
func headerAuth(c *gin.Context) {
	if sub := c.GetHeader("X-Test-User"); sub != "" {
		claims := &auth.Claims{Subject: sub, Scope: c.GetHeader("X-Test-Scope")}
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
	}
	c.Next()
}

type testAPI struct {
	router *gin.Engine
	gw     *testGateway
	st     *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	docs, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	api := &testAPI{gw: &testGateway{md: map[string]map[string]string{}}, st: store.NewMemory()}
	svc := reconcile.New(api.st, api.gw, scoring.NewHeuristic(), docs, notify.Log{}, reconcile.Options{})
	h := NewHandlers(svc, billing.NewWebhook(testWebhookSecret))
	api.router = newEngine(h, headerAuth, RouterConfig{OperatorScope: operatorScope})
	return api
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.doScoped(t, method, path, user, "", body)
}

func (a *testAPI) doScoped(t *testing.T, method, path, user, scope string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if scope != "" {
		req.Header.Set("X-Test-Scope", scope)
	}
	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, req)
	return resp
}

func (a *testAPI) submit(t *testing.T, user string) models.Submission {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/resumes", user, gin.H{"fileName": "cv.txt", "text": resumeText})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var sub models.Submission
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sub))
	return sub
}

func (a *testAPI) webhook(t *testing.T, eventType, sessionID, paymentStatus string) *httptest.ResponseRecorder {
	t.Helper()
	md, _ := json.Marshal(a.gw.md[sessionID])
	if md == nil || string(md) == "null" {
		md = []byte("{}")
	}
	payload := fmt.Sprintf(`{"id":"evt_%s","object":"event","api_version":"2024-06-20","type":%q,"data":{"object":{"id":%q,"object":"checkout.session","payment_status":%q,"status":"complete","metadata":%s}}}`,
		sessionID, eventType, sessionID, paymentStatus, md)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(sp.Payload))
	req.Header.Set("Stripe-Signature", sp.Header)
	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, req)
	return resp
}

func (a *testAPI) buy(t *testing.T, user string, service models.ServiceType, resumeID string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/billing/checkout", user, gin.H{"serviceType": service, "resumeId": resumeID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var co models.Checkout
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &co))
	require.Equal(t, http.StatusOK, a.webhook(t, "checkout.session.completed", co.SessionID, "paid").Code)
	return co.SessionID
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestProtectedRoutesNeedAuth(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/me", "/api/resumes", "/api/reviews"} {
		resp := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestMeDefaults(t *testing.T) {
	api := newTestAPI(t)
	ent := decode[models.Entitlement](t, api.do(t, http.MethodGet, "/me", "u1", nil))
	assert.Equal(t, models.SubscriptionFree, ent.SubscriptionStatus)
	assert.Equal(t, 0, ent.ATSCredits)
}

func TestSubmitJSONAndMultipart(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	assert.Equal(t, models.StatusBasicATSComplete, sub.Status)
	require.NotNil(t, sub.ATSScore)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "resume.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(resumeText))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("jobDescription", "Go engineer"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/resumes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "u1")
	resp := httptest.NewRecorder()
	api.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	up := decode[models.Submission](t, resp)
	assert.Equal(t, "resume.txt", up.FileName)
	assert.Equal(t, "Go engineer", up.JobDescription)

	list := decode[struct {
		Resumes []models.Submission `json:"resumes"`
		Count   int                 `json:"count"`
	}](t, api.do(t, http.MethodGet, "/api/resumes", "u1", nil))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 0, decode[struct {
		Count int `json:"count"`
	}](t, api.do(t, http.MethodGet, "/api/resumes", "u2", nil)).Count)
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/resumes", nil)
	req.Header.Set("X-Test-User", "u1")
	resp := httptest.NewRecorder()
	api.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAnalyzeStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	path := "/api/resumes/" + sub.ID + "/analyze"

	resp := api.do(t, http.MethodPost, path, "u1", gin.H{"kind": "detailed_ats"})
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)

	resp = api.do(t, http.MethodPost, path, "u1", gin.H{"kind": "job_optimization"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.do(t, http.MethodPost, path, "u2", gin.H{"kind": "detailed_ats"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = api.do(t, http.MethodPost, path, "u1", gin.H{"kind": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.do(t, http.MethodGet, "/api/resumes/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	api.buy(t, "u1", models.ServiceATSCredit, "")
	resp = api.do(t, http.MethodPost, path, "u1", gin.H{"kind": "detailed_ats"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	got := decode[models.Submission](t, resp)
	assert.Equal(t, models.StatusDetailedATSComplete, got.Status)
	assert.NotNil(t, got.KeywordAnalysis)

	ent := decode[models.Entitlement](t, api.do(t, http.MethodGet, "/me", "u1", nil))
	assert.Equal(t, 0, ent.ATSCredits)
}

func TestJobOptimizationAndDownload(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	base := "/api/resumes/" + sub.ID

	resp := api.do(t, http.MethodPut, base+"/job-description", "u1", gin.H{"jobDescription": "Senior Go engineer. Kubernetes, Terraform, Postgres."})
	require.Equal(t, http.StatusOK, resp.Code)

	api.buy(t, "u1", models.ServiceOptimizationCredit, "")
	resp = api.do(t, http.MethodPost, base+"/analyze", "u1", gin.H{"kind": "job_optimization"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	got := decode[models.Submission](t, resp)
	assert.Equal(t, models.StatusJobOptComplete, got.Status)
	assert.True(t, got.HasOptimizedArtifact)

	resp = api.do(t, http.MethodGet, base+"/download/optimized", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "cv-optimized.txt")
	assert.Contains(t, resp.Body.String(), "Jane Doe")

	resp = api.do(t, http.MethodGet, base+"/download/original", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, resumeText, resp.Body.String())

	resp = api.do(t, http.MethodGet, base+"/download/original", "u2", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestEditedTextRoutes(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	base := "/api/resumes/" + sub.ID

	resp := api.do(t, http.MethodPut, base+"/text", "u1", gin.H{"text": resumeText + "\nAwards\n- Hackathon winner\n"})
	require.Equal(t, http.StatusOK, resp.Code)

	text := decode[struct {
		Text string `json:"text"`
	}](t, api.do(t, http.MethodGet, base+"/text", "u1", nil))
	assert.Contains(t, text.Text, "Hackathon")

	resp = api.do(t, http.MethodPost, base+"/analyze-changes", "u1", nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)

	resp = api.do(t, http.MethodPost, base+"/retry-basic", "u1", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestWebhookAppliesOnce(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/billing/checkout", "u1", gin.H{"serviceType": "ats_credit"})
	require.Equal(t, http.StatusOK, resp.Code)
	co := decode[models.Checkout](t, resp)
	assert.Equal(t, "https://checkout.example/"+co.SessionID, co.URL)

	first := decode[struct {
		Applied bool                  `json:"applied"`
		Outcome models.PaymentOutcome `json:"outcome"`
	}](t, api.webhook(t, "checkout.session.completed", co.SessionID, "paid"))
	assert.True(t, first.Applied)
	assert.Equal(t, models.OutcomeGranted, first.Outcome)

	replay := decode[struct {
		Applied bool `json:"applied"`
	}](t, api.webhook(t, "checkout.session.async_payment_succeeded", co.SessionID, "paid"))
	assert.False(t, replay.Applied)

	ent := decode[models.Entitlement](t, api.do(t, http.MethodGet, "/me", "u1", nil))
	assert.Equal(t, 1, ent.ATSCredits)

	poll := decode[struct {
		Applied bool `json:"applied"`
	}](t, api.do(t, http.MethodGet, "/api/billing/sessions/"+co.SessionID, "u1", nil))
	assert.True(t, poll.Applied)

	resp = api.do(t, http.MethodGet, "/api/billing/sessions/"+co.SessionID, "u2", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestWebhookEdgeCases(t *testing.T) {
	api := newTestAPI(t)

	resp := api.webhook(t, "checkout.session.completed", "cs_unknown", "paid")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = api.webhook(t, "customer.created", "cs_unknown", "paid")
	assert.Equal(t, http.StatusOK, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncOpenSessionAppliesNothing(t *testing.T) {
	api := newTestAPI(t)
	co := decode[models.Checkout](t, api.do(t, http.MethodPost, "/api/billing/checkout", "u1", gin.H{"serviceType": "subscription"}))

	poll := decode[struct {
		Applied bool `json:"applied"`
	}](t, api.do(t, http.MethodGet, "/api/billing/sessions/"+co.SessionID, "u1", nil))
	assert.False(t, poll.Applied)

	resp := api.do(t, http.MethodGet, "/api/billing/sessions/cs_missing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestReviewFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	api.buy(t, "u1", models.ServiceReview, sub.ID)

	resp := api.do(t, http.MethodPost, "/api/billing/checkout", "u1", gin.H{"serviceType": "review", "resumeId": sub.ID})
	assert.Equal(t, http.StatusConflict, resp.Code)

	api.buy(t, "u1", models.ServiceSubscription, "")
	resp = api.do(t, http.MethodPost, "/api/resumes/"+sub.ID+"/analyze", "u1", gin.H{"kind": "detailed_ats"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	own := decode[struct {
		Reviews []models.ReviewOrder `json:"reviews"`
	}](t, api.do(t, http.MethodGet, "/api/reviews", "u1", nil))
	require.Len(t, own.Reviews, 1)
	id := own.Reviews[0].ID

	resp = api.do(t, http.MethodGet, "/api/admin/reviews", "u1", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	queue := decode[struct {
		Reviews []models.ReviewOrder `json:"reviews"`
	}](t, api.doScoped(t, http.MethodGet, "/api/admin/reviews", "op", operatorScope, nil))
	require.Len(t, queue.Reviews, 1)

	base := "/api/admin/reviews/" + id
	require.Equal(t, http.StatusOK, api.doScoped(t, http.MethodPost, base+"/assign", "op", operatorScope, gin.H{"reviewerId": "rev-1"}).Code)
	require.Equal(t, http.StatusOK, api.doScoped(t, http.MethodPost, base+"/start", "op", operatorScope, nil).Code)

	resp = api.doScoped(t, http.MethodPost, base+"/complete", "op", operatorScope, gin.H{"feedback": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.doScoped(t, http.MethodPost, base+"/complete", "op", operatorScope, gin.H{"feedback": "looks good"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.ReviewCompleted, decode[models.ReviewOrder](t, resp).Status)

	resp = api.doScoped(t, http.MethodPost, base+"/complete", "op", operatorScope, gin.H{"feedback": "again"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	got := decode[models.Submission](t, api.do(t, http.MethodGet, "/api/resumes/"+sub.ID, "u1", nil))
	assert.Equal(t, models.StatusReviewComplete, got.Status)

	stats := decode[models.Stats](t, api.doScoped(t, http.MethodGet, "/api/admin/stats", "op", operatorScope, nil))
	assert.Equal(t, 0, stats.OpenReviews)
	assert.EqualValues(t, 4500, stats.RevenueCents)
}

func TestAdminCompleteReviewWithUploadedResume(t *testing.T) {
	api := newTestAPI(t)
	sub := api.submit(t, "u1")
	api.buy(t, "u1", models.ServiceReview, sub.ID)
	queue := decode[struct {
		Reviews []models.ReviewOrder `json:"reviews"`
	}](t, api.doScoped(t, http.MethodGet, "/api/admin/reviews", "op", operatorScope, nil))
	require.Len(t, queue.Reviews, 1)
	base := "/api/admin/reviews/" + queue.Reviews[0].ID
	require.Equal(t, http.StatusOK, api.doScoped(t, http.MethodPost, base+"/assign", "op", operatorScope, gin.H{"reviewerId": "rev-1"}).Code)
	require.Equal(t, http.StatusOK, api.doScoped(t, http.MethodPost, base+"/start", "op", operatorScope, nil).Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("feedback", "Tightened the summary."))
	fw, err := mw.CreateFormFile("optimizedResume", "reviewed.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Jane Doe\nStaff engineer"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, base+"/complete", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "op")
	req.Header.Set("X-Test-Scope", operatorScope)
	resp := httptest.NewRecorder()
	api.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	o := decode[models.ReviewOrder](t, resp)
	assert.Equal(t, models.ReviewCompleted, o.Status)
	assert.Equal(t, "Tightened the summary.", o.ReviewerFeedback)

	got := decode[models.Submission](t, api.do(t, http.MethodGet, "/api/resumes/"+sub.ID, "u1", nil))
	assert.True(t, got.HasOptimizedArtifact)

	resp = api.do(t, http.MethodGet, "/api/resumes/"+sub.ID+"/download/optimized", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Jane Doe\nStaff engineer", resp.Body.String())
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "cv-optimized.txt")
}

func TestAdminListSubmissions(t *testing.T) {
	api := newTestAPI(t)
	first := api.submit(t, "u1")
	api.submit(t, "u2")
	api.buy(t, "u1", models.ServiceReview, first.ID)

	resp := api.do(t, http.MethodGet, "/api/admin/submissions", "u1", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	type listing struct {
		Submissions []models.Submission `json:"submissions"`
		Count       int                 `json:"count"`
	}
	all := decode[listing](t, api.doScoped(t, http.MethodGet, "/api/admin/submissions", "op", operatorScope, nil))
	assert.Equal(t, 2, all.Count)

	pending := decode[listing](t, api.doScoped(t, http.MethodGet, "/api/admin/submissions?status=pending_review", "op", operatorScope, nil))
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, first.ID, pending.Submissions[0].ID)

	resp = api.doScoped(t, http.MethodGet, "/api/admin/submissions?status=bogus", "op", operatorScope, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminGrantCredits(t *testing.T) {
	api := newTestAPI(t)

	resp := api.doScoped(t, http.MethodPost, "/api/admin/users/u9/credits", "op", operatorScope, gin.H{"pool": "optimization_credit", "amount": 3})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 3, decode[models.Entitlement](t, resp).OptimizationCredits)

	resp = api.doScoped(t, http.MethodPost, "/api/admin/users/u9/credits", "op", operatorScope, gin.H{"pool": "gold", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	ent := decode[models.Entitlement](t, api.doScoped(t, http.MethodGet, "/api/admin/users/u9/entitlement", "op", operatorScope, nil))
	assert.Equal(t, 3, ent.OptimizationCredits)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{reconcile.ErrInsufficientCredit, http.StatusPaymentRequired},
		{fmt.Errorf("wrapped: %w", reconcile.ErrUnderReview), http.StatusConflict},
		{reconcile.ErrReviewOpen, http.StatusConflict},
		{reconcile.ErrMissingJobDescription, http.StatusUnprocessableEntity},
		{reconcile.ErrAnalysisFailed, http.StatusBadGateway},
		{reconcile.ErrUnknownSession, http.StatusNotFound},
		{reconcile.ErrPersistenceConflict, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}

	_, msg := statusFor(fmt.Errorf("%w: stripe said no", reconcile.ErrGatewayUnavailable))
	assert.Equal(t, reconcile.ErrGatewayUnavailable.Error(), msg)
}
