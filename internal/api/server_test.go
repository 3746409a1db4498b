package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"submission-workflow/internal/cache"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/core/documents"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/core/finance"
	"submission-workflow/internal/core/lifecycle"
	"submission-workflow/internal/core/payment"
	"submission-workflow/internal/core/quote"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminToken       = "admin:admin-1"
	agencyToken      = "agency:agent-1:agency-1"
	otherAgencyToken = "agency:agent-9:agency-9"
	webhookSecret    = "whsec-test"
)

type pdfRenderer struct{}

func (pdfRenderer) Render(context.Context, documents.RenderRequest) ([]byte, error) {
	return []byte("%PDF-1.7"), nil
}

type urlStorage struct{}

func (urlStorage) Upload(_ context.Context, name, _ string, _ []byte) (string, error) {
	return "https://files.example.test/" + name, nil
}

type envelopeProvider struct{}

func (envelopeProvider) CreateEnvelope(context.Context, esign.EnvelopeRequest) (*models.EnvelopeRef, error) {
	return &models.EnvelopeRef{EnvelopeID: "env-1", SigningURL: "https://sign.example.test/env-1"}, nil
}

type okCapturer struct{}

func (okCapturer) Capture(context.Context, payment.CaptureRequest) (string, error) {
	return "cap-1", nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    Meta            `json:"meta"`
	Error   APIError        `json:"error"`
}

func newTestServer(t *testing.T, checks ...ReadinessCheck) *Server {
	t.Helper()
	log := logger.NewTestLogger(t)
	st := memory.New()
	hooks := core.NoHooks()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	quotes := quote.NewEngine(st, hooks, log)
	services := Services{
		Submissions:  lifecycle.NewService(st, quotes, nil, hooks, log),
		Quotes:       quotes,
		Documents:    documents.NewService(st, pdfRenderer{}, nil, urlStorage{}, hooks, log),
		Signatures:   esign.NewGate(st, envelopeProvider{}, cache.NewWebhookDeduper(rdb, time.Hour), hooks, log),
		FinancePlans: finance.NewPlanService(st, hooks, log),
		Calculator:   cache.NewFinanceCache(rdb, time.Hour, log),
		Payments:     payment.NewGate(st, okCapturer{}, quotes, hooks, log),
	}
	return NewServer(services, Options{
		Auth:          DevAuthenticator{},
		WebhookSecret: webhookSecret,
		Checks:        checks,
		Version:       "test",
	}, log)
}

func call(t *testing.T, s *Server, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func webhook(t *testing.T, s *Server, body []byte, signature string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/esign/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signature)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// quotedSubmission creates, routes and quotes a submission over HTTP and
// returns the submission and quote ids.
func quotedSubmission(t *testing.T, s *Server) (string, string) {
	t.Helper()
	rec, env := call(t, s, http.MethodPost, "/api/v1/submissions", agencyToken, map[string]interface{}{
		"clientContact": map[string]string{"name": "Harbor Freight LLC", "email": "ops@harbor.test"},
		"payload":       map[string]interface{}{"lineOfBusiness": "commercial_auto"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[models.Submission](t, env.Data)
	assert.Equal(t, "agency-1", sub.AgencyID)

	rec, _ = call(t, s, http.MethodPost, "/api/v1/submissions/"+sub.ID+"/route", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = call(t, s, http.MethodPost, "/api/v1/quotes", adminToken, map[string]interface{}{
		"submissionId":    sub.ID,
		"carrierId":       "carrier-1",
		"carrierQuoteUSD": "9400",
		"feeComponents": []map[string]string{
			{"name": "broker fee", "kind": "FEE", "amountUSD": "350"},
			{"name": "state tax", "kind": "TAX", "amountUSD": "250"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[models.Quote](t, env.Data)
	assert.Equal(t, "10000", q.FinalAmountUSD.String())

	rec, env = call(t, s, http.MethodPost, "/api/v1/quotes/"+q.ID+"/post", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posted := decode[PostedQuote](t, env.Data)
	require.NotNil(t, posted.Submission)
	assert.Equal(t, models.SubmissionQuoted, posted.Submission.Status)
	assert.Equal(t, q.ID, posted.Submission.ActiveQuoteID)

	rec, _ = call(t, s, http.MethodPost, "/api/v1/quotes/"+q.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sub.ID, q.ID
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t,
		ReadinessCheck{Name: "store", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "search", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"search":"connection refused"`)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/api/v1/submissions", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed token", http.MethodGet, "/api/v1/submissions", "nobody", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"agency cannot route", http.MethodPost, "/api/v1/submissions/s-1/route", agencyToken, http.StatusForbidden, "FORBIDDEN"},
		{"admin cannot create", http.MethodPost, "/api/v1/submissions", adminToken, http.StatusForbidden, "FORBIDDEN"},
		{"agency cannot enter quotes", http.MethodPost, "/api/v1/quotes", agencyToken, http.StatusForbidden, "FORBIDDEN"},
		{"unknown submission", http.MethodGet, "/api/v1/submissions/missing", adminToken, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := call(t, s, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestCreateSubmission_ValidationFailure(t *testing.T) {
	s := newTestServer(t)

	rec, env := call(t, s, http.MethodPost, "/api/v1/submissions", agencyToken, map[string]interface{}{
		"clientContact": map[string]string{"email": "not-an-email"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Meta["fields"], "clientContact.name")

	rec, env = call(t, s, http.MethodPost, "/api/v1/submissions", agencyToken, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestAgencyScoping(t *testing.T) {
	s := newTestServer(t)
	subID, quoteID := quotedSubmission(t, s)

	rec, _ := call(t, s, http.MethodGet, "/api/v1/submissions/"+subID, agencyToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(t, s, http.MethodGet, "/api/v1/submissions/"+subID, otherAgencyToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	rec, _ = call(t, s, http.MethodGet, "/api/v1/quotes/"+quoteID, otherAgencyToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, s, http.MethodPost, "/api/v1/submissions/"+subID+"/request-bind", otherAgencyToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// an agency listing is pinned to its own agency whatever it asks for
	rec, env = call(t, s, http.MethodGet, "/api/v1/submissions?agencyId=agency-1", otherAgencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Submission](t, env.Data))
	require.NotNil(t, env.Meta.Total)
	assert.Equal(t, int64(0), *env.Meta.Total)

	rec, env = call(t, s, http.MethodGet, "/api/v1/submissions?status=quoted", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]models.Submission](t, env.Data)
	require.Len(t, listed, 1)
	assert.Equal(t, subID, listed[0].ID)

	rec, env = call(t, s, http.MethodGet, "/api/v1/submissions?status=unknown", agencyToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestEnteredQuoteHiddenFromAgency(t *testing.T) {
	s := newTestServer(t)
	subID, _ := quotedSubmission(t, s)

	rec, env := call(t, s, http.MethodPost, "/api/v1/quotes", adminToken, map[string]interface{}{
		"submissionId":    subID,
		"carrierId":       "carrier-2",
		"carrierQuoteUSD": 8800,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[models.Quote](t, env.Data)

	rec, _ = call(t, s, http.MethodGet, "/api/v1/quotes/"+draft.ID, agencyToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = call(t, s, http.MethodGet, "/api/v1/submissions/"+subID+"/quotes", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Quote](t, env.Data), 1)

	rec, env = call(t, s, http.MethodGet, "/api/v1/submissions/"+subID+"/quotes", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Quote](t, env.Data), 2)

	// a second post is reported as already applied
	rec, _ = call(t, s, http.MethodPost, "/api/v1/quotes/"+draft.ID+"/post", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = call(t, s, http.MethodPost, "/api/v1/quotes/"+draft.ID+"/post", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Meta.AlreadyApplied)
}

func TestFullPayBindOverHTTP(t *testing.T) {
	s := newTestServer(t)
	subID, quoteID := quotedSubmission(t, s)
	base := "/api/v1/submissions/" + subID

	rec, _ := call(t, s, http.MethodPost, base+"/request-bind", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// sending before the documents exist is refused
	rec, env := call(t, s, http.MethodPost, base+"/esign/send", adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DOCUMENTS_NOT_READY", env.Error.Code)

	for _, docType := range []string{"proposal", "carrier-form"} {
		rec, _ = call(t, s, http.MethodPost, base+"/documents/"+docType+"/generate", adminToken, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec, env = call(t, s, http.MethodGet, base+"/documents", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.DocumentRecord](t, env.Data), 2)

	rec, env = call(t, s, http.MethodPost, base+"/esign/send", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "env-1", decode[models.EnvelopeRef](t, env.Data).EnvelopeID)

	// payment is locked until every document is signed
	pay := map[string]interface{}{
		"quoteId": quoteID, "paymentType": "FULL", "amountUSD": "10000.00", "paymentMethod": "ach",
	}
	rec, env = call(t, s, http.MethodPost, "/api/v1/payments", agencyToken, pay)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "PAYMENT_LOCKED", env.Error.Code)

	event := []byte(`{"submissionId":"` + subID + `","outcome":"SIGNED","envelopeId":"env-1"}`)
	rec, env = webhook(t, s, event, signWebhook(webhookSecret, event))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[esign.EventResult](t, env.Data)
	assert.True(t, result.EsignCompleted)
	assert.Len(t, result.Applied, 2)

	rec, env = webhook(t, s, event, signWebhook(webhookSecret, event))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[esign.EventResult](t, env.Data).Duplicate)

	rec, env = call(t, s, http.MethodPost, "/api/v1/payments", agencyToken, pay)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "cap-1", decode[models.Payment](t, env.Data).CaptureReference)

	rec, env = call(t, s, http.MethodGet, "/api/v1/quotes/"+quoteID+"/payments", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ledger := decode[PaymentLedger](t, env.Data)
	assert.Equal(t, models.PaymentPaid, ledger.PaymentStatus)
	assert.Len(t, ledger.Payments, 1)

	rec, env = call(t, s, http.MethodPost, base+"/approve-bind", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.SubmissionBound, decode[models.Submission](t, env.Data).Status)
}

func TestApproveBind_ReportsGates(t *testing.T) {
	s := newTestServer(t)
	subID, _ := quotedSubmission(t, s)

	rec, _ := call(t, s, http.MethodPost, "/api/v1/submissions/"+subID+"/request-bind", agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(t, s, http.MethodPost, "/api/v1/submissions/"+subID+"/approve-bind", adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "GATE_NOT_SATISFIED", env.Error.Code)
	assert.ElementsMatch(t, []interface{}{"esign", "payment"}, env.Error.Meta["gates"])
}

func TestSignatureWebhook_RejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	event := []byte(`{"submissionId":"s-1","outcome":"SIGNED"}`)

	rec, env := webhook(t, s, event, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	bad := []byte(`{"submissionId":"s-1","outcome":"MAYBE"}`)
	rec, env = webhook(t, s, bad, signWebhook(webhookSecret, bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	rec, env = webhook(t, s, event, signWebhook(webhookSecret, event))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSignatureWebhook_StatusField(t *testing.T) {
	s := newTestServer(t)
	subID, _ := quotedSubmission(t, s)
	base := "/api/v1/submissions/" + subID

	rec, _ := call(t, s, http.MethodPost, base+"/documents/proposal/generate", adminToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = call(t, s, http.MethodPost, base+"/documents/carrier_form/generate", adminToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = call(t, s, http.MethodPost, base+"/esign/send", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	event := []byte(`{"submissionId":"` + subID + `","documentType":"PROPOSAL","status":"DECLINED"}`)
	rec, env := webhook(t, s, event, signWebhook(webhookSecret, event))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[esign.EventResult](t, env.Data)
	assert.Equal(t, []models.DocumentType{models.DocumentProposal}, result.Applied)
	assert.False(t, result.EsignCompleted)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := signWebhook("k", body)

	assert.True(t, verifySignature("k", body, sig))
	assert.True(t, verifySignature("k", body, sig[len("sha256="):]))
	assert.False(t, verifySignature("other", body, sig))
	assert.False(t, verifySignature("k", []byte(`{"a":2}`), sig))
	assert.False(t, verifySignature("k", body, "not-hex"))
	assert.False(t, verifySignature("k", body, ""))
}

func TestCalculateFinance(t *testing.T) {
	s := newTestServer(t)
	in := map[string]interface{}{
		"totalAmountUSD": 10000, "downPaymentPercent": 20, "tenureMonths": 12, "annualInterestPercent": 8.5,
	}

	rec, env := call(t, s, http.MethodPost, "/api/v1/finance/calculate", agencyToken, in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[models.FinancePlan](t, env.Data)
	assert.InDelta(t, 697.76, plan.MonthlyInstallmentUSD, 0.005)
	require.NotNil(t, env.Meta.Cached)
	assert.False(t, *env.Meta.Cached)

	_, env = call(t, s, http.MethodPost, "/api/v1/finance/calculate", adminToken, in)
	require.NotNil(t, env.Meta.Cached)
	assert.True(t, *env.Meta.Cached)

	in["tenureMonths"] = 0
	rec, env = call(t, s, http.MethodPost, "/api/v1/finance/calculate", agencyToken, in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FINANCE_INPUT", env.Error.Code)
	assert.Contains(t, env.Error.Meta["fields"], "tenureMonths")

	in["tenureMonths"] = int64(1) << 50
	rec, env = call(t, s, http.MethodPost, "/api/v1/finance/calculate", agencyToken, in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FINANCE_INPUT", env.Error.Code)
}

func TestFinancePlanLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, quoteID := quotedSubmission(t, s)
	path := "/api/v1/quotes/" + quoteID + "/finance-plan"

	rec, env := call(t, s, http.MethodPut, path, agencyToken, map[string]interface{}{
		"downPaymentPercent": 20, "tenureMonths": 12, "annualInterestPercent": 8.5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[models.FinancePlan](t, env.Data)
	assert.InDelta(t, 2000.0, plan.DownPaymentUSD, 0.001)

	rec, _ = call(t, s, http.MethodGet, path, agencyToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, s, http.MethodPut, path, otherAgencyToken, map[string]interface{}{
		"downPaymentPercent": 10, "tenureMonths": 6, "annualInterestPercent": 5,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = call(t, s, http.MethodPut, path, agencyToken, map[string]interface{}{
		"downPaymentPercent": 20, "tenureMonths": 100000, "annualInterestPercent": 8.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FINANCE_INPUT", env.Error.Code)
	assert.Contains(t, env.Error.Meta["fields"], "tenureMonths")

	rec, env = call(t, s, http.MethodPut, path, agencyToken, map[string]interface{}{
		"downPaymentPercent": 20, "annualInterestPercent": 8.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Meta["fields"], "tenureMonths")

	rec, env = call(t, s, http.MethodGet, path, agencyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[models.FinancePlan](t, env.Data).TenureMonths)

	rec, _ = call(t, s, http.MethodDelete, path, agencyToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = call(t, s, http.MethodGet, path, agencyToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
