package finance

import (
	"context"
	"errors"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store"

	"github.com/google/uuid"
)

// PlanStore is what PlanService needs from persistence.
type PlanStore interface {
	store.SubmissionStore
	store.QuoteStore
	store.FinancePlanStore
	store.PaymentStore
}

// PlanService attaches a finance plan to a quote and keeps it stable once
// signing or payment has started.
type PlanService struct {
	store  PlanStore
	hooks  *core.Hooks
	logger logger.Logger
	now    core.Clock
}

func NewPlanService(s PlanStore, hooks *core.Hooks, log logger.Logger) *PlanService {
	return &PlanService{store: s, hooks: hooks, logger: log, now: core.SystemClock}
}

// Select computes a plan for the quote's final amount and stores it,
// replacing an unlocked plan.
func (s *PlanService) Select(ctx context.Context, quoteID string, downPaymentPercent float64, tenureMonths int, annualInterestPercent float64, actor models.Actor) (*models.FinancePlan, error) {
	quote, err := s.editableQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	plan, err := Calculate(models.FinanceInput{
		TotalAmountUSD:        quote.FinalAmountUSD.InexactFloat64(),
		DownPaymentPercent:    downPaymentPercent,
		TenureMonths:          tenureMonths,
		AnnualInterestPercent: annualInterestPercent,
	})
	if err != nil {
		return nil, err
	}
	plan.ID = uuid.NewString()
	plan.QuoteID = quote.ID
	plan.CreatedBy = actor.ID
	plan.CreatedAt = s.now()

	if err := s.store.SaveFinancePlan(ctx, plan); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewFinancePlanLockedError(quoteID, "plan was locked concurrently")
		}
		return nil, core.StoreError("save finance plan", "finance plan", quoteID, err)
	}

	s.logger.Info("finance plan selected", map[string]interface{}{
		"quoteId":      quoteID,
		"planId":       plan.ID,
		"tenureMonths": tenureMonths,
		"actor":        actor.ID,
	})
	s.hooks.Emit(ctx, models.Event{
		Type:         models.EventFinancePlanSelected,
		SubmissionID: quote.SubmissionID,
		QuoteID:      quote.ID,
		ActorID:      actor.ID,
		Data: map[string]interface{}{
			"planId":                plan.ID,
			"monthlyInstallmentUSD": plan.MonthlyInstallmentUSD,
			"downPaymentUSD":        plan.DownPaymentUSD,
		},
	})
	return plan, nil
}

// Remove deletes the unlocked plan of a quote.
func (s *PlanService) Remove(ctx context.Context, quoteID string, actor models.Actor) error {
	if _, err := s.editableQuote(ctx, quoteID); err != nil {
		return err
	}
	if err := s.store.DeleteFinancePlan(ctx, quoteID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperrors.NewFinancePlanLockedError(quoteID, "plan is locked")
		}
		return core.StoreError("delete finance plan", "finance plan", quoteID, err)
	}
	s.logger.Info("finance plan removed", map[string]interface{}{"quoteId": quoteID, "actor": actor.ID})
	return nil
}

func (s *PlanService) Get(ctx context.Context, quoteID string) (*models.FinancePlan, error) {
	plan, err := s.store.GetFinancePlan(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("get finance plan", "finance plan", quoteID, err)
	}
	return plan, nil
}

// editableQuote loads the quote and rejects changes once the plan is frozen:
// a payment exists, the plan is locked, or the submission's documents are
// out for signature.
func (s *PlanService) editableQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", quoteID, err)
	}
	if quote.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("quote", string(quote.Status), "select finance plan")
	}

	existing, err := s.store.GetFinancePlan(ctx, quoteID)
	switch {
	case err == nil && existing.Locked():
		return nil, apperrors.NewFinancePlanLockedError(quoteID, "plan is locked")
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, core.StoreError("get finance plan", "finance plan", quoteID, err)
	}

	payments, err := s.store.ListPayments(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("list payments", "payment", quoteID, err)
	}
	if len(payments) > 0 {
		return nil, apperrors.NewFinancePlanLockedError(quoteID, "a payment was recorded")
	}

	sub, err := s.store.GetSubmission(ctx, quote.SubmissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", quote.SubmissionID, err)
	}
	for _, doc := range sub.Documents {
		if doc.SignatureStatus == models.SignatureSent || doc.SignatureStatus == models.SignatureSigned {
			return nil, apperrors.NewFinancePlanLockedError(quoteID, "documents were sent for signature")
		}
	}
	return quote, nil
}
