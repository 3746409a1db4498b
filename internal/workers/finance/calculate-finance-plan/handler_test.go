// internal/workers/finance/calculate-finance-plan/handler_test.go
package calculatefinanceplan

import (
	"context"
	"testing"
	"time"

	"submission-workflow/internal/cache"
	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T, config *Config) *Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	return NewHandler(config, cache.NewFinanceCache(rdb, time.Minute, log), log)
}

func referenceInput() *Input {
	return &Input{
		QuoteID: "q-1",
		FinanceInput: models.FinanceInput{
			TotalAmountUSD:        10000,
			DownPaymentPercent:    20,
			TenureMonths:          12,
			AnnualInterestPercent: 8.5,
		},
	}
}

func TestExecute_CalculatesThenServesFromCache(t *testing.T) {
	h := newHandler(t, LoadConfig())

	first, err := h.Execute(context.Background(), referenceInput())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "q-1", first.QuoteID)
	assert.Equal(t, 2000.0, first.DownPaymentUSD)
	assert.Equal(t, 8000.0, first.PrincipalUSD)
	assert.InDelta(t, 697.76, first.MonthlyInstallmentUSD, 0.005)
	assert.Empty(t, first.Schedule)

	second, err := h.Execute(context.Background(), referenceInput())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.MonthlyInstallmentUSD, second.MonthlyInstallmentUSD)
}

func TestExecute_IncludesScheduleWhenConfigured(t *testing.T) {
	h := newHandler(t, &Config{Timeout: time.Second, IncludeSchedule: true})

	out, err := h.Execute(context.Background(), referenceInput())
	require.NoError(t, err)
	require.Len(t, out.Schedule, 12)
	assert.Equal(t, 0.0, out.Schedule[11].RemainingBalance)
}

func TestExecute_RejectsOutOfRangeInput(t *testing.T) {
	tests := []struct {
		name  string
		input models.FinanceInput
	}{
		{"zero tenure", models.FinanceInput{TotalAmountUSD: 1000, DownPaymentPercent: 10, TenureMonths: 0, AnnualInterestPercent: 5}},
		{"negative amount", models.FinanceInput{TotalAmountUSD: -1, DownPaymentPercent: 10, TenureMonths: 12, AnnualInterestPercent: 5}},
		{"down payment above 100", models.FinanceInput{TotalAmountUSD: 1000, DownPaymentPercent: 120, TenureMonths: 12, AnnualInterestPercent: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newHandler(t, LoadConfig()).Execute(context.Background(), &Input{FinanceInput: tt.input})
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFinanceInput), "got %v", err)
		})
	}
}
