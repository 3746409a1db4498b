// Package quote manages carrier quotes: entry with derived totals, the
// posting and approval path, and the bind-related transitions driven by
// the submission lifecycle.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence the engine needs.
type Store interface {
	store.SubmissionStore
	store.QuoteStore
}

// EnterInput carries the carrier pricing of a new quote. The final amount
// is never accepted from callers.
type EnterInput struct {
	SubmissionID    string                `json:"submissionId"`
	CarrierID       string                `json:"carrierId"`
	CarrierQuoteUSD decimal.Decimal       `json:"carrierQuoteUSD"`
	FeeComponents   []models.FeeComponent `json:"feeComponents"`
}

type Engine struct {
	store  Store
	hooks  *core.Hooks
	logger logger.Logger
	now    core.Clock
}

func NewEngine(s Store, hooks *core.Hooks, log logger.Logger) *Engine {
	return &Engine{store: s, hooks: hooks, logger: log, now: core.SystemClock}
}

// Enter records a quote as ENTERED with FinalAmountUSD computed.
func (e *Engine) Enter(ctx context.Context, in EnterInput, actor models.Actor) (*models.Quote, error) {
	if err := validateEnter(in); err != nil {
		return nil, err
	}

	sub, err := e.store.GetSubmission(ctx, in.SubmissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", in.SubmissionID, err)
	}
	if sub.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "enter quote")
	}

	now := e.now()
	q := &models.Quote{
		ID:              uuid.NewString(),
		SubmissionID:    in.SubmissionID,
		CarrierID:       strings.TrimSpace(in.CarrierID),
		CarrierQuoteUSD: in.CarrierQuoteUSD,
		FeeComponents:   append([]models.FeeComponent(nil), in.FeeComponents...),
		FinalAmountUSD:  models.SumComponents(in.CarrierQuoteUSD, in.FeeComponents),
		Status:          models.QuoteEntered,
		PaymentStatus:   models.PaymentPending,
		EnteredBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateQuote(ctx, q); err != nil {
		return nil, core.StoreError("create quote", "quote", q.ID, err)
	}

	e.logger.Info("quote entered", map[string]interface{}{
		"quoteId":        q.ID,
		"submissionId":   q.SubmissionID,
		"carrierId":      q.CarrierID,
		"finalAmountUSD": q.FinalAmountUSD.StringFixed(2),
	})
	return q, nil
}

func validateEnter(in EnterInput) error {
	var problems []string
	if strings.TrimSpace(in.SubmissionID) == "" {
		problems = append(problems, "submissionId is required")
	}
	if strings.TrimSpace(in.CarrierID) == "" {
		problems = append(problems, "carrierId is required")
	}
	if in.CarrierQuoteUSD.IsNegative() {
		problems = append(problems, "carrierQuoteUSD must not be negative")
	}
	for i, c := range in.FeeComponents {
		if strings.TrimSpace(c.Name) == "" {
			problems = append(problems, fmt.Sprintf("feeComponents[%d].name is required", i))
		}
		if c.Kind != models.FeeKindFee && c.Kind != models.FeeKindTax {
			problems = append(problems, fmt.Sprintf("feeComponents[%d].kind must be FEE or TAX", i))
		}
		if c.AmountUSD.IsNegative() {
			problems = append(problems, fmt.Sprintf("feeComponents[%d].amountUSD must not be negative", i))
		}
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

// Post publishes an ENTERED quote. Posting an already POSTED quote returns
// it with alreadyApplied set.
func (e *Engine) Post(ctx context.Context, quoteID string, actor models.Actor) (*models.Quote, bool, error) {
	q, err := e.Get(ctx, quoteID)
	if err != nil {
		return nil, false, err
	}
	if q.Status == models.QuotePosted {
		return q, true, nil
	}
	q, err = e.apply(ctx, q, "post", models.QuotePosted, []models.QuoteStatus{models.QuoteEntered}, func(q *models.Quote) {
		at := e.now()
		q.PostedAt = &at
	})
	if err != nil {
		return nil, false, err
	}
	e.emit(ctx, q, models.EventQuotePosted, actor)
	return q, false, nil
}

// Approve moves POSTED to APPROVED.
func (e *Engine) Approve(ctx context.Context, quoteID string, actor models.Actor) (*models.Quote, error) {
	q, err := e.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	q, err = e.apply(ctx, q, "approve", models.QuoteApproved, []models.QuoteStatus{models.QuotePosted}, func(q *models.Quote) {
		at := e.now()
		q.ApprovedAt = &at
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, q, models.EventQuoteApproved, actor)
	return q, nil
}

// Decline closes a non-terminal quote.
func (e *Engine) Decline(ctx context.Context, quoteID, reason string, actor models.Actor) (*models.Quote, error) {
	q, err := e.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	q, err = e.apply(ctx, q, "decline", models.QuoteDeclined,
		[]models.QuoteStatus{models.QuoteEntered, models.QuotePosted, models.QuoteApproved, models.QuoteBindRequested},
		func(q *models.Quote) {
			at := e.now()
			q.DeclinedAt = &at
			q.DeclineReason = reason
		})
	if err != nil {
		return nil, err
	}
	e.logger.Info("quote declined", map[string]interface{}{"quoteId": q.ID, "actor": actor.ID, "reason": reason})
	return q, nil
}

// RequestBind moves APPROVED to BIND_REQUESTED.
func (e *Engine) RequestBind(ctx context.Context, q *models.Quote) (*models.Quote, error) {
	return e.apply(ctx, q, "request bind", models.QuoteBindRequested, []models.QuoteStatus{models.QuoteApproved}, nil)
}

// Bind moves BIND_REQUESTED to BOUND.
func (e *Engine) Bind(ctx context.Context, q *models.Quote) (*models.Quote, error) {
	return e.apply(ctx, q, "bind", models.QuoteBound, []models.QuoteStatus{models.QuoteBindRequested}, func(q *models.Quote) {
		at := e.now()
		q.BoundAt = &at
	})
}

// SetPaymentStatus refreshes the ledger projection. The status of the quote
// itself is untouched; lost races are retried against a fresh read.
func (e *Engine) SetPaymentStatus(ctx context.Context, quoteID string, status models.PaymentStatus) error {
	for attempt := 0; attempt < 3; attempt++ {
		q, err := e.Get(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.PaymentStatus == status {
			return nil
		}
		q.PaymentStatus = status
		q.UpdatedAt = e.now()
		err = e.store.UpdateQuote(ctx, q, q.Status)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return core.StoreError("update quote", "quote", quoteID, err)
		}
	}
	return apperrors.NewConcurrentModificationError("quote", quoteID)
}

func (e *Engine) Get(ctx context.Context, quoteID string) (*models.Quote, error) {
	q, err := e.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", quoteID, err)
	}
	return q, nil
}

func (e *Engine) ListBySubmission(ctx context.Context, submissionID string) ([]*models.Quote, error) {
	if _, err := e.store.GetSubmission(ctx, submissionID); err != nil {
		return nil, core.StoreError("get submission", "submission", submissionID, err)
	}
	quotes, err := e.store.ListQuotesBySubmission(ctx, submissionID)
	if err != nil {
		return nil, core.StoreError("list quotes", "quote", submissionID, err)
	}
	return quotes, nil
}

// apply performs one guarded transition on a copy of q.
func (e *Engine) apply(ctx context.Context, q *models.Quote, op string, to models.QuoteStatus, from []models.QuoteStatus, mutate func(*models.Quote)) (*models.Quote, error) {
	if !contains(from, q.Status) {
		return nil, apperrors.NewInvalidTransitionError("quote", string(q.Status), op)
	}
	next := q.Clone()
	expected := next.Status
	next.Status = to
	next.UpdatedAt = e.now()
	if mutate != nil {
		mutate(next)
	}
	if err := e.store.UpdateQuote(ctx, next, expected); err != nil {
		return nil, core.StoreError("update quote", "quote", q.ID, err)
	}
	e.logger.Debug("quote transitioned", map[string]interface{}{
		"quoteId": q.ID,
		"from":    string(expected),
		"to":      string(to),
	})
	return next, nil
}

func (e *Engine) emit(ctx context.Context, q *models.Quote, eventType models.EventType, actor models.Actor) {
	e.hooks.Emit(ctx, models.Event{
		Type:         eventType,
		SubmissionID: q.SubmissionID,
		QuoteID:      q.ID,
		Status:       string(q.Status),
		ActorID:      actor.ID,
		Data:         map[string]interface{}{"finalAmountUSD": q.FinalAmountUSD.StringFixed(2)},
	})
}

func contains(set []models.QuoteStatus, s models.QuoteStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
