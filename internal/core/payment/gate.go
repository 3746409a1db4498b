// Package payment guards and records payments against a quote.
package payment

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

// CaptureRequest is sent to the payment processor. IdempotencyKey is the
// payment id so a retried capture is not charged twice.
type CaptureRequest struct {
	IdempotencyKey string             `json:"idempotencyKey"`
	QuoteID        string             `json:"quoteId"`
	PaymentType    models.PaymentType `json:"paymentType"`
	AmountUSD      decimal.Decimal    `json:"amountUSD"`
	PaymentMethod  string             `json:"paymentMethod"`
}

// Capturer takes the money and returns the processor reference.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (string, error)
}

// StatusProjector writes the derived payment status back onto the quote.
type StatusProjector interface {
	SetPaymentStatus(ctx context.Context, quoteID string, status models.PaymentStatus) error
}

type Store interface {
	store.SubmissionStore
	store.QuoteStore
	store.FinancePlanStore
	store.PaymentStore
}

type Gate struct {
	store     Store
	capturer  Capturer
	projector StatusProjector
	hooks     *core.Hooks
	logger    logger.Logger
	now       core.Clock
}

func NewGate(s Store, capturer Capturer, projector StatusProjector, hooks *core.Hooks, log logger.Logger) *Gate {
	return &Gate{store: s, capturer: capturer, projector: projector, hooks: hooks, logger: log, now: core.SystemClock}
}

// IsPaymentAllowed is true once every required document is signed.
func IsPaymentAllowed(sub *models.Submission) bool {
	return sub != nil && sub.EsignCompleted
}

// DeriveStatus computes the payment status of a quote from its ledger. A
// quote is PAID by a FULL payment of the final amount or by the down
// payment of its finance plan.
func DeriveStatus(q *models.Quote, plan *models.FinancePlan, payments []models.Payment) models.PaymentStatus {
	for _, p := range payments {
		switch p.PaymentType {
		case models.PaymentFull:
			if p.AmountUSD.Equal(q.FinalAmountUSD) {
				return models.PaymentPaid
			}
		case models.PaymentDownPayment:
			if plan != nil && p.FinancePlanID == plan.ID && p.AmountUSD.Equal(downPayment(plan)) {
				return models.PaymentPaid
			}
		}
	}
	return models.PaymentPending
}

func downPayment(plan *models.FinancePlan) decimal.Decimal {
	return decimal.NewFromFloat(plan.DownPaymentUSD).Round(2)
}

// PaymentStatus returns the ledger-derived status of a quote.
func (g *Gate) PaymentStatus(ctx context.Context, quoteID string) (models.PaymentStatus, error) {
	q, err := g.store.GetQuote(ctx, quoteID)
	if err != nil {
		return "", core.StoreError("get quote", "quote", quoteID, err)
	}
	plan, payments, err := g.ledger(ctx, quoteID)
	if err != nil {
		return "", err
	}
	return DeriveStatus(q, plan, payments), nil
}

// ListPayments returns the ledger of a quote.
func (g *Gate) ListPayments(ctx context.Context, quoteID string) ([]models.Payment, error) {
	if _, err := g.store.GetQuote(ctx, quoteID); err != nil {
		return nil, core.StoreError("get quote", "quote", quoteID, err)
	}
	payments, err := g.store.ListPayments(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("list payments", "payment", quoteID, err)
	}
	return payments, nil
}

// RecordPayment validates, captures and appends a payment, then locks the
// finance plan and refreshes the quote's payment status.
func (g *Gate) RecordPayment(ctx context.Context, req models.PaymentRequest, actor models.Actor) (*models.Payment, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	q, err := g.store.GetQuote(ctx, req.QuoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", req.QuoteID, err)
	}
	sub, err := g.store.GetSubmission(ctx, q.SubmissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", q.SubmissionID, err)
	}
	if !IsPaymentAllowed(sub) {
		return nil, apperrors.NewPaymentLockedError(sub.ID)
	}
	if sub.ActiveQuoteID != q.ID {
		return nil, apperrors.NewValidationError(fmt.Sprintf("quote %s is not the active quote of submission %s", q.ID, sub.ID))
	}
	if q.Status != models.QuoteApproved && q.Status != models.QuoteBindRequested {
		return nil, apperrors.NewInvalidTransitionError("quote", string(q.Status), "record payment")
	}

	plan, payments, err := g.ledger(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	if DeriveStatus(q, plan, payments) == models.PaymentPaid || len(payments) > 0 {
		return nil, apperrors.NewPaymentAlreadyRecordedError(q.ID)
	}

	if err := checkAmount(req, q, plan); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:            uuid.NewString(),
		QuoteID:       q.ID,
		PaymentType:   req.PaymentType,
		AmountUSD:     req.AmountUSD,
		PaymentMethod: req.PaymentMethod,
		RecordedBy:    actor.ID,
	}
	if req.PaymentType == models.PaymentDownPayment {
		payment.FinancePlanID = plan.ID
	}

	ref, err := g.capturer.Capture(ctx, CaptureRequest{
		IdempotencyKey: payment.ID,
		QuoteID:        q.ID,
		PaymentType:    req.PaymentType,
		AmountUSD:      req.AmountUSD,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		return nil, apperrors.NewCollaboratorError("payments", err)
	}
	payment.CaptureReference = ref
	payment.CreatedAt = g.now()

	if err := g.store.AppendPayment(ctx, payment); err != nil {
		g.logger.Error("captured payment was not recorded", map[string]interface{}{
			"quoteId":          q.ID,
			"captureReference": ref,
			"error":            err.Error(),
		})
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.NewPaymentAlreadyRecordedError(q.ID)
		}
		return nil, core.StoreError("append payment", "payment", payment.ID, err)
	}

	if plan != nil {
		if err := g.store.LockFinancePlan(ctx, q.ID, payment.CreatedAt); err != nil {
			g.logger.Warn("finance plan lock failed", map[string]interface{}{"quoteId": q.ID, "error": err.Error()})
		}
	}
	status := DeriveStatus(q, plan, append(payments, *payment))
	if err := g.projector.SetPaymentStatus(ctx, q.ID, status); err != nil {
		g.logger.Warn("payment status projection failed", map[string]interface{}{"quoteId": q.ID, "error": err.Error()})
	}

	g.logger.Info("payment recorded", map[string]interface{}{
		"quoteId":     q.ID,
		"paymentId":   payment.ID,
		"paymentType": string(payment.PaymentType),
		"amountUSD":   payment.AmountUSD.StringFixed(2),
		"status":      string(status),
	})
	g.hooks.SubmissionChanged(ctx, sub, models.EventPaymentRecorded, actor, map[string]interface{}{
		"paymentId":     payment.ID,
		"paymentType":   string(payment.PaymentType),
		"amountUSD":     payment.AmountUSD.StringFixed(2),
		"paymentStatus": string(status),
	})
	return payment, nil
}

func (g *Gate) ledger(ctx context.Context, quoteID string) (*models.FinancePlan, []models.Payment, error) {
	plan, err := g.store.GetFinancePlan(ctx, quoteID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, core.StoreError("get finance plan", "finance plan", quoteID, err)
	}
	payments, err := g.store.ListPayments(ctx, quoteID)
	if err != nil {
		return nil, nil, core.StoreError("list payments", "payment", quoteID, err)
	}
	return plan, payments, nil
}

func validateRequest(req models.PaymentRequest) error {
	var problems []string
	if strings.TrimSpace(req.QuoteID) == "" {
		problems = append(problems, "quoteId is required")
	}
	if req.PaymentType != models.PaymentFull && req.PaymentType != models.PaymentDownPayment {
		problems = append(problems, "paymentType must be FULL or DOWN_PAYMENT")
	}
	if req.AmountUSD.IsNegative() {
		problems = append(problems, "amountUSD must not be negative")
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		problems = append(problems, "paymentMethod is required")
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func checkAmount(req models.PaymentRequest, q *models.Quote, plan *models.FinancePlan) error {
	switch req.PaymentType {
	case models.PaymentFull:
		if !req.AmountUSD.Equal(q.FinalAmountUSD) {
			return apperrors.NewAmountMismatchError(q.FinalAmountUSD.StringFixed(2), req.AmountUSD.String())
		}
	case models.PaymentDownPayment:
		if plan == nil {
			return apperrors.NewNotFoundError("finance plan", q.ID)
		}
		if req.FinancePlanID != plan.ID {
			return apperrors.NewNotFoundError("finance plan", req.FinancePlanID)
		}
		expected := downPayment(plan)
		if !req.AmountUSD.Equal(expected) {
			return apperrors.NewAmountMismatchError(expected.StringFixed(2), req.AmountUSD.String())
		}
	}
	return nil
}
