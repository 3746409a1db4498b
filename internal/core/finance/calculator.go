// Package finance computes amortizing loan schedules and manages the
// finance plan selected for a quote.
package finance

import (
	"fmt"
	"math"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/models"
)

// MaxTenureMonths bounds the schedule length a caller can request.
const MaxTenureMonths = 600

// Calculate builds a standard amortization schedule. It is pure and
// deterministic: values are accumulated at full precision and rounded to
// cents only when written to the plan.
func Calculate(in models.FinanceInput) (*models.FinancePlan, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	downPayment := in.TotalAmountUSD * in.DownPaymentPercent / 100
	principal := in.TotalAmountUSD - downPayment
	rate := in.AnnualInterestPercent / 100 / 12
	n := in.TenureMonths

	emi := installment(principal, rate, n)

	schedule := make([]models.AmortizationEntry, 0, n)
	balance := principal
	totalInterest := 0.0

	for month := 1; month <= n; month++ {
		interest := balance * rate
		principalPortion := emi - interest
		if month == n {
			// absorbs the drift accumulated by the fixed installment
			principalPortion = balance
		}
		balance -= principalPortion
		totalInterest += interest

		schedule = append(schedule, models.AmortizationEntry{
			Month:            month,
			Principal:        Round2(principalPortion),
			Interest:         Round2(interest),
			TotalPayment:     Round2(principalPortion + interest),
			RemainingBalance: Round2(balance),
		})
	}

	totalPayable := downPayment + principal + totalInterest
	if !finite(emi) || !finite(totalInterest) || !finite(totalPayable) {
		return nil, apperrors.NewInvalidFinanceInputError("financing terms produce a non-finite installment")
	}

	return &models.FinancePlan{
		TotalAmountUSD:        Round2(in.TotalAmountUSD),
		DownPaymentPercent:    in.DownPaymentPercent,
		DownPaymentUSD:        Round2(downPayment),
		PrincipalUSD:          Round2(principal),
		TenureMonths:          n,
		AnnualInterestPercent: in.AnnualInterestPercent,
		MonthlyRate:           rate,
		MonthlyInstallmentUSD: Round2(emi),
		TotalInterestUSD:      Round2(totalInterest),
		TotalPayableUSD:       Round2(totalPayable),
		Schedule:              schedule,
	}, nil
}

// installment returns the fixed monthly payment, P*r / (1 - (1+r)^-n).
// The discount term is taken through Log1p/Expm1 so that rates too small
// to move 1+r and rates large enough to overflow Pow both stay finite. A
// rate that vanishes entirely degrades to straight-line repayment.
func installment(principal, rate float64, n int) float64 {
	discount := -math.Expm1(-float64(n) * math.Log1p(rate))
	if rate == 0 || discount == 0 {
		return principal / float64(n)
	}
	return principal * rate / discount
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateInput(in models.FinanceInput) error {
	for name, v := range map[string]float64{
		"totalAmountUSD":        in.TotalAmountUSD,
		"downPaymentPercent":    in.DownPaymentPercent,
		"annualInterestPercent": in.AnnualInterestPercent,
	} {
		if !finite(v) {
			return apperrors.NewInvalidFinanceInputError(fmt.Sprintf("%s must be a finite number", name))
		}
	}

	switch {
	case in.TotalAmountUSD < 0:
		return apperrors.NewInvalidFinanceInputError("totalAmountUSD must not be negative")
	case in.DownPaymentPercent < 0 || in.DownPaymentPercent > 100:
		return apperrors.NewInvalidFinanceInputError("downPaymentPercent must be within [0, 100]")
	case in.TenureMonths <= 0:
		return apperrors.NewInvalidFinanceInputError("tenureMonths must be a positive integer")
	case in.TenureMonths > MaxTenureMonths:
		return apperrors.NewInvalidFinanceInputError(fmt.Sprintf("tenureMonths must not exceed %d", MaxTenureMonths))
	case in.AnnualInterestPercent < 0:
		return apperrors.NewInvalidFinanceInputError("annualInterestPercent must not be negative")
	}
	return nil
}

// Round2 rounds half away from zero to cents.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // no negative zero in output
	}
	return r
}
