// internal/workers/finance/calculate-finance-plan/models.go
package calculatefinanceplan

import "submission-workflow/internal/models"

type Input struct {
	QuoteID string `json:"quoteId,omitempty"`
	models.FinanceInput
}

type Output struct {
	QuoteID               string                     `json:"quoteId,omitempty"`
	DownPaymentUSD        float64                    `json:"downPaymentUSD"`
	PrincipalUSD          float64                    `json:"principalUSD"`
	MonthlyInstallmentUSD float64                    `json:"monthlyInstallmentUSD"`
	TotalInterestUSD      float64                    `json:"totalInterestUSD"`
	TotalPayableUSD       float64                    `json:"totalPayableUSD"`
	Schedule              []models.AmortizationEntry `json:"schedule,omitempty"`
	Cached                bool                       `json:"cached"`
}
