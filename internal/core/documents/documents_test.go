package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Collaborator fakes
// ==========================

type mockRenderer struct {
	RenderFunc func(ctx context.Context, req RenderRequest) ([]byte, error)
	calls      int
}

func (m *mockRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	m.calls++
	if m.RenderFunc != nil {
		return m.RenderFunc(ctx, req)
	}
	return []byte("%PDF-1.7 fake"), nil
}

type mockValidator struct {
	err error
}

func (m mockValidator) Validate([]byte) error { return m.err }

type mockStorage struct {
	UploadFunc func(ctx context.Context, name, contentType string, data []byte) (string, error)
	names      []string
}

func (m *mockStorage) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	m.names = append(m.names, name)
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, name, contentType, data)
	}
	return "https://files.example.test/" + name, nil
}

var admin = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

type fixture struct {
	svc      *Service
	store    *memory.Store
	renderer *mockRenderer
	storage  *mockStorage
}

func setup(t *testing.T, status models.SubmissionStatus, docs ...models.DocumentRecord) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateSubmission(ctx, &models.Submission{
		ID:            "sub-1",
		AgencyID:      "agency-1",
		Status:        status,
		ActiveQuoteID: "q-1",
		Documents:     docs,
	}))
	require.NoError(t, st.CreateQuote(ctx, &models.Quote{
		ID:             "q-1",
		SubmissionID:   "sub-1",
		Status:         models.QuotePosted,
		FinalAmountUSD: decimal.RequireFromString("1200"),
	}))

	f := &fixture{store: st, renderer: &mockRenderer{}, storage: &mockStorage{}}
	f.svc = NewService(st, f.renderer, mockValidator{}, f.storage, core.NoHooks(), logger.NewTestLogger(t))
	f.svc.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) submission(t *testing.T) *models.Submission {
	sub, err := f.store.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	return sub
}

// ==========================
// RequiredDocuments
// ==========================

func TestRequiredDocuments(t *testing.T) {
	assert.Equal(t, []models.DocumentType{models.DocumentProposal, models.DocumentCarrierForm}, RequiredDocuments(false))
	assert.Equal(t, []models.DocumentType{models.DocumentProposal, models.DocumentCarrierForm, models.DocumentFinanceAgreement}, RequiredDocuments(true))
}

// ==========================
// Generate
// ==========================

func TestGenerate_NewDocument(t *testing.T) {
	f := setup(t, models.SubmissionQuoted)

	rec, err := f.svc.Generate(context.Background(), "sub-1", models.DocumentProposal, admin)
	require.NoError(t, err)
	assert.Equal(t, models.SignatureGenerated, rec.SignatureStatus)
	assert.Equal(t, 1, rec.Generation)
	assert.Contains(t, rec.URL, "https://files.example.test/sub-1/proposal-")
	require.Len(t, f.storage.names, 1)

	sub := f.submission(t)
	require.Len(t, sub.Documents, 1)
	assert.Equal(t, int64(1), sub.Version)
}

func TestGenerate_TransitionsFromExistingState(t *testing.T) {
	sentAt := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		existing models.DocumentRecord
	}{
		{"regenerate generated", models.DocumentRecord{DocumentType: models.DocumentProposal, SignatureStatus: models.SignatureGenerated, Generation: 1}},
		{"reset sent", models.DocumentRecord{DocumentType: models.DocumentProposal, SignatureStatus: models.SignatureSent, Generation: 1,
			SentForSignatureAt: &sentAt, EsignEnvelopeID: "env-1"}},
		{"reissue declined", models.DocumentRecord{DocumentType: models.DocumentProposal, SignatureStatus: models.SignatureDeclined, Generation: 1,
			SentForSignatureAt: &sentAt, DeclinedAt: &sentAt, EsignEnvelopeID: "env-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, models.SubmissionQuoted, tt.existing)
			rec, err := f.svc.Generate(context.Background(), "sub-1", models.DocumentProposal, admin)
			require.NoError(t, err)

			assert.Equal(t, models.SignatureGenerated, rec.SignatureStatus)
			assert.Equal(t, 2, rec.Generation)
			assert.Nil(t, rec.SentForSignatureAt)
			assert.Nil(t, rec.DeclinedAt)
			assert.Empty(t, rec.EsignEnvelopeID)
			assert.Len(t, f.submission(t).Documents, 1)
		})
	}
}

func TestGenerate_SignedIsRefused(t *testing.T) {
	f := setup(t, models.SubmissionQuoted, models.DocumentRecord{DocumentType: models.DocumentCarrierForm, SignatureStatus: models.SignatureSigned})

	_, err := f.svc.Generate(context.Background(), "sub-1", models.DocumentCarrierForm, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDocumentAlreadySigned))
	assert.Equal(t, 0, f.renderer.calls)
}

func TestGenerate_RequiresActiveQuote(t *testing.T) {
	for _, status := range []models.SubmissionStatus{models.SubmissionSubmitted, models.SubmissionRouted, models.SubmissionBound, models.SubmissionDeclined} {
		t.Run(string(status), func(t *testing.T) {
			f := setup(t, status)
			_, err := f.svc.Generate(context.Background(), "sub-1", models.DocumentProposal, admin)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition))
		})
	}
}

func TestGenerate_FinanceAgreementNeedsPlan(t *testing.T) {
	f := setup(t, models.SubmissionQuoted)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, "sub-1", models.DocumentFinanceAgreement, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	require.NoError(t, f.store.SaveFinancePlan(ctx, &models.FinancePlan{ID: "plan-1", QuoteID: "q-1"}))
	f.renderer.RenderFunc = func(_ context.Context, req RenderRequest) ([]byte, error) {
		require.NotNil(t, req.FinancePlan)
		assert.Equal(t, "plan-1", req.FinancePlan.ID)
		return []byte("%PDF"), nil
	}
	_, err = f.svc.Generate(ctx, "sub-1", models.DocumentFinanceAgreement, admin)
	require.NoError(t, err)
}

func TestGenerate_CollaboratorFailuresLeaveSubmissionUntouched(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
	}{
		{"renderer", func(f *fixture) {
			f.renderer.RenderFunc = func(context.Context, RenderRequest) ([]byte, error) { return nil, errors.New("timeout") }
		}},
		{"invalid pdf", func(f *fixture) {
			f.svc.validator = mockValidator{err: errors.New("missing header")}
		}},
		{"storage", func(f *fixture) {
			f.storage.UploadFunc = func(context.Context, string, string, []byte) (string, error) { return "", errors.New("bucket gone") }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, models.SubmissionQuoted)
			tt.mutate(f)

			_, err := f.svc.Generate(context.Background(), "sub-1", models.DocumentProposal, admin)
			require.Error(t, err)
			stdErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeCollaboratorFailed, stdErr.Code)
			assert.True(t, stdErr.Retryable)

			sub := f.submission(t)
			assert.Empty(t, sub.Documents)
			assert.Equal(t, int64(0), sub.Version)
		})
	}
}

func TestGenerate_UnknownType(t *testing.T) {
	f := setup(t, models.SubmissionQuoted)
	_, err := f.svc.Generate(context.Background(), "sub-1", "INVOICE", admin)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestGenerate_RetriesAfterConcurrentWrite(t *testing.T) {
	f := setup(t, models.SubmissionQuoted)
	ctx := context.Background()

	// another writer bumps the version while rendering is in flight
	f.renderer.RenderFunc = func(ctx context.Context, _ RenderRequest) ([]byte, error) {
		sub := f.submission(t)
		sub.Notes = append(sub.Notes, models.Note{ID: "n1", Text: "called client"})
		require.NoError(t, f.store.UpdateSubmission(ctx, sub, models.SubmissionQuoted))
		return []byte("%PDF"), nil
	}

	_, err := f.svc.Generate(ctx, "sub-1", models.DocumentProposal, admin)
	require.NoError(t, err)

	sub := f.submission(t)
	assert.Len(t, sub.Documents, 1)
	assert.Len(t, sub.Notes, 1)
	assert.Equal(t, int64(2), sub.Version)
}
