package models

import "time"

// FinanceInput holds the terms of an amortizing loan request.
type FinanceInput struct {
	TotalAmountUSD        float64 `json:"totalAmountUSD"`
	DownPaymentPercent    float64 `json:"downPaymentPercent"`
	TenureMonths          int     `json:"tenureMonths"`
	AnnualInterestPercent float64 `json:"annualInterestPercent"`
}

// AmortizationEntry is one month of a schedule, rounded for display.
type AmortizationEntry struct {
	Month            int     `json:"month"`
	Principal        float64 `json:"principal"`
	Interest         float64 `json:"interest"`
	TotalPayment     float64 `json:"totalPayment"`
	RemainingBalance float64 `json:"remainingBalance"`
}

// FinancePlan is the financing selected for a quote. It is immutable once
// LockedAt is set.
type FinancePlan struct {
	ID                    string              `json:"id,omitempty"`
	QuoteID               string              `json:"quoteId,omitempty"`
	TotalAmountUSD        float64             `json:"totalAmountUSD"`
	DownPaymentPercent    float64             `json:"downPaymentPercent"`
	DownPaymentUSD        float64             `json:"downPaymentUSD"`
	PrincipalUSD          float64             `json:"principalUSD"`
	TenureMonths          int                 `json:"tenureMonths"`
	AnnualInterestPercent float64             `json:"annualInterestPercent"`
	MonthlyRate           float64             `json:"monthlyRate"`
	MonthlyInstallmentUSD float64             `json:"monthlyInstallmentUSD"`
	TotalInterestUSD      float64             `json:"totalInterestUSD"`
	TotalPayableUSD       float64             `json:"totalPayableUSD"`
	Schedule              []AmortizationEntry `json:"schedule"`
	LockedAt              *time.Time          `json:"lockedAt,omitempty"`
	CreatedBy             string              `json:"createdBy,omitempty"`
	CreatedAt             time.Time           `json:"createdAt,omitempty"`
}

func (p *FinancePlan) Locked() bool {
	return p != nil && p.LockedAt != nil
}
