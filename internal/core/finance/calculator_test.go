package finance

import (
	"encoding/json"
	"math"
	"testing"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Reference Schedule
// ==========================

func TestCalculate_ReferenceLoan(t *testing.T) {
	plan, err := Calculate(models.FinanceInput{
		TotalAmountUSD:        10000,
		DownPaymentPercent:    20,
		TenureMonths:          12,
		AnnualInterestPercent: 8.5,
	})
	require.NoError(t, err)

	assert.Equal(t, 2000.00, plan.DownPaymentUSD)
	assert.Equal(t, 8000.00, plan.PrincipalUSD)
	assert.InDelta(t, 0.007083, plan.MonthlyRate, 0.000001)
	assert.InDelta(t, 697.76, plan.MonthlyInstallmentUSD, 0.005)
	assert.Len(t, plan.Schedule, 12)
	assert.Equal(t, 0.0, plan.Schedule[11].RemainingBalance)
	assert.InDelta(t, 373.10, plan.TotalInterestUSD, 0.01)
	assert.InDelta(t, 10373.10, plan.TotalPayableUSD, 0.01)

	first := plan.Schedule[0]
	assert.Equal(t, 1, first.Month)
	assert.InDelta(t, 56.67, first.Interest, 0.001)
	assert.InDelta(t, 641.09, first.Principal, 0.01)
	assert.InDelta(t, first.Principal+first.Interest, first.TotalPayment, 0.011)
}

// ==========================
// Properties
// ==========================

func TestCalculate_PrincipalSumsToLoan(t *testing.T) {
	cases := []models.FinanceInput{
		{TotalAmountUSD: 10000, DownPaymentPercent: 20, TenureMonths: 12, AnnualInterestPercent: 8.5},
		{TotalAmountUSD: 250000, DownPaymentPercent: 10, TenureMonths: 360, AnnualInterestPercent: 6.25},
		{TotalAmountUSD: 1234.56, DownPaymentPercent: 0, TenureMonths: 7, AnnualInterestPercent: 29.99},
		{TotalAmountUSD: 999.99, DownPaymentPercent: 99, TenureMonths: 1, AnnualInterestPercent: 12},
		{TotalAmountUSD: 5000, DownPaymentPercent: 100, TenureMonths: 6, AnnualInterestPercent: 5},
		{TotalAmountUSD: 0, DownPaymentPercent: 50, TenureMonths: 3, AnnualInterestPercent: 4},
		// monthly rate of 1e-15 does not move 1+r
		{TotalAmountUSD: 10000, DownPaymentPercent: 20, TenureMonths: 12, AnnualInterestPercent: 1.2e-11},
		// (1+r)^n overflows float64
		{TotalAmountUSD: 10000, DownPaymentPercent: 20, TenureMonths: 360, AnnualInterestPercent: 1e6},
		{TotalAmountUSD: 10000, DownPaymentPercent: 20, TenureMonths: MaxTenureMonths, AnnualInterestPercent: 7},
	}

	for _, in := range cases {
		plan, err := Calculate(in)
		require.NoError(t, err)

		sum := 0.0
		for _, e := range plan.Schedule {
			sum += e.Principal
		}
		// each entry is rounded independently
		epsilon := 0.005*float64(len(plan.Schedule)) + 1e-9
		assert.InDelta(t, plan.PrincipalUSD, sum, epsilon, "input %+v", in)
		assert.Equal(t, 0.0, plan.Schedule[len(plan.Schedule)-1].RemainingBalance, "input %+v", in)
		assert.Len(t, plan.Schedule, in.TenureMonths)

		_, err = json.Marshal(plan)
		assert.NoError(t, err, "input %+v", in)
	}
}

func TestCalculate_TinyRateMatchesStraightLine(t *testing.T) {
	plan, err := Calculate(models.FinanceInput{
		TotalAmountUSD:        10000,
		DownPaymentPercent:    20,
		TenureMonths:          12,
		AnnualInterestPercent: 1.2e-11,
	})
	require.NoError(t, err)

	assert.Equal(t, 666.67, plan.MonthlyInstallmentUSD)
	assert.Equal(t, 0.0, plan.TotalInterestUSD)
	assert.Equal(t, 10000.0, plan.TotalPayableUSD)
}

func TestCalculate_ZeroInterestIsStraightLine(t *testing.T) {
	plan, err := Calculate(models.FinanceInput{
		TotalAmountUSD:        12000,
		DownPaymentPercent:    25,
		TenureMonths:          9,
		AnnualInterestPercent: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, 1000.0, plan.MonthlyInstallmentUSD)
	assert.InDelta(t, plan.PrincipalUSD, plan.MonthlyInstallmentUSD*float64(plan.TenureMonths), 0.01)
	assert.Equal(t, 0.0, plan.TotalInterestUSD)
	assert.Equal(t, 12000.0, plan.TotalPayableUSD)
	for _, e := range plan.Schedule {
		assert.Equal(t, 0.0, e.Interest)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	in := models.FinanceInput{TotalAmountUSD: 43210.77, DownPaymentPercent: 15, TenureMonths: 48, AnnualInterestPercent: 7.9}
	a, err := Calculate(in)
	require.NoError(t, err)
	b, err := Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// ==========================
// Invalid Input
// ==========================

func TestCalculate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   models.FinanceInput
	}{
		{"zero tenure", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: 0}},
		{"negative tenure", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: -3}},
		{"percent below zero", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: -1, TenureMonths: 12}},
		{"percent above hundred", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 100.01, TenureMonths: 12}},
		{"negative amount", models.FinanceInput{TotalAmountUSD: -1, DownPaymentPercent: 10, TenureMonths: 12}},
		{"negative interest", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: 12, AnnualInterestPercent: -2}},
		{"NaN amount", models.FinanceInput{TotalAmountUSD: math.NaN(), DownPaymentPercent: 10, TenureMonths: 12}},
		{"infinite interest", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: 12, AnnualInterestPercent: math.Inf(1)}},
		{"tenure above cap", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: MaxTenureMonths + 1}},
		{"tenure beyond allocation", models.FinanceInput{TotalAmountUSD: 100, DownPaymentPercent: 10, TenureMonths: 1 << 50}},
		{"interest overflows totals", models.FinanceInput{TotalAmountUSD: math.MaxFloat64, DownPaymentPercent: 0, TenureMonths: MaxTenureMonths, AnnualInterestPercent: 1200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Calculate(tt.in)
			assert.Nil(t, plan)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFinanceInput), "got %v", err)
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.01, Round2(1.005000001))
	assert.Equal(t, 0.0, Round2(-0.001))
	assert.Equal(t, 697.76, Round2(697.7582596807422))
}

func BenchmarkCalculate_30Year(b *testing.B) {
	in := models.FinanceInput{TotalAmountUSD: 500000, DownPaymentPercent: 20, TenureMonths: 360, AnnualInterestPercent: 6.5}
	for i := 0; i < b.N; i++ {
		_, _ = Calculate(in)
	}
}
