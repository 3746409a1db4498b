// internal/workers/finance/calculate-finance-plan/handler.go
package calculatefinanceplan

import (
	"context"
	"encoding/json"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "calculate-finance-plan"
)

// Calculator is satisfied by cache.FinanceCache.
type Calculator interface {
	Calculate(ctx context.Context, in models.FinanceInput) (*models.FinancePlan, bool, error)
}

type Handler struct {
	config       *Config
	calculator   Calculator
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, calculator Calculator, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		calculator:   calculator,
		logger:       l,
		errorHandler: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	// Validate the raw variables so a string tenure is reported as such
	// instead of as a decode failure.
	if err := validation.CheckFinance(validation.SchemaFinanceInput, []byte(job.Variables)); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewValidationError("invalid job variables: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
	}
}

// Execute computes the plan; range checks happen in the calculator and
// surface as INVALID_FINANCE_INPUT.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	plan, cached, err := h.calculator.Calculate(ctx, input.FinanceInput)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("finance plan calculated", map[string]interface{}{
		"quoteId":      input.QuoteID,
		"tenureMonths": plan.TenureMonths,
		"cached":       cached,
	})

	out := &Output{
		QuoteID:               input.QuoteID,
		DownPaymentUSD:        plan.DownPaymentUSD,
		PrincipalUSD:          plan.PrincipalUSD,
		MonthlyInstallmentUSD: plan.MonthlyInstallmentUSD,
		TotalInterestUSD:      plan.TotalInterestUSD,
		TotalPayableUSD:       plan.TotalPayableUSD,
		Cached:                cached,
	}
	if h.config.IncludeSchedule {
		out.Schedule = plan.Schedule
	}
	return out, nil
}
