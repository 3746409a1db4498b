package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"submission-workflow/internal/models"
	"submission-workflow/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSubmission_OnlyOneConcurrentWriterWins(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.CreateSubmission(ctx, &models.Submission{ID: "s1", Status: models.SubmissionSubmitted}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := m.GetSubmission(ctx, "s1")
			if err != nil {
				return
			}
			sub.Status = models.SubmissionRouted
			if err := m.UpdateSubmission(ctx, sub, models.SubmissionSubmitted); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	got, err := m.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRouted, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestGetSubmission_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.CreateSubmission(ctx, &models.Submission{
		ID:        "s1",
		Documents: []models.DocumentRecord{{DocumentType: models.DocumentProposal}},
	}))

	a, _ := m.GetSubmission(ctx, "s1")
	a.Documents[0].SignatureStatus = models.SignatureSigned

	b, _ := m.GetSubmission(ctx, "s1")
	assert.Empty(t, b.Documents[0].SignatureStatus)
}

func TestFinancePlanLocking(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveFinancePlan(ctx, &models.FinancePlan{ID: "p1", QuoteID: "q1"}))
	require.NoError(t, m.LockFinancePlan(ctx, "q1", time.Now()))

	assert.ErrorIs(t, m.SaveFinancePlan(ctx, &models.FinancePlan{ID: "p2", QuoteID: "q1"}), store.ErrConflict)
	assert.ErrorIs(t, m.DeleteFinancePlan(ctx, "q1"), store.ErrConflict)
	assert.ErrorIs(t, m.LockFinancePlan(ctx, "missing", time.Now()), store.ErrNotFound)
}

func TestAppendPayment_SingleSettlingPayment(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.AppendPayment(ctx, &models.Payment{ID: "a", QuoteID: "q1"}))
	assert.ErrorIs(t, m.AppendPayment(ctx, &models.Payment{ID: "b", QuoteID: "q1"}), store.ErrDuplicate)

	got, err := m.ListPayments(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListSubmissions_FilterAndPage(t *testing.T) {
	ctx := context.Background()
	m := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Acme", "Beta", "Acme West"} {
		require.NoError(t, m.CreateSubmission(ctx, &models.Submission{
			ID:            name,
			AgencyID:      "ag",
			ClientContact: models.ClientContact{Name: name},
			Status:        models.SubmissionSubmitted,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := m.ListSubmissions(ctx, models.SubmissionFilter{AgencyID: "ag", Query: "acme"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme West", got[0].ID)

	got, err = m.ListSubmissions(ctx, models.SubmissionFilter{AgencyID: "ag", From: 1, Size: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Beta", got[0].ID)

	got, err = m.ListSubmissions(ctx, models.SubmissionFilter{AgencyID: "other"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
