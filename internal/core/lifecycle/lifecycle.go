// Package lifecycle drives a submission from intake to a bound policy. The
// transition table is fixed:
//
//	SUBMITTED -> ROUTED -> QUOTED -> BIND_REQUESTED -> BOUND
//	any non-terminal -> DECLINED
//
// Every write is a guarded update on (status, version); a lost race
// surfaces as CONCURRENT_MODIFICATION.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/core/payment"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store"

	"github.com/google/uuid"
)

const maxNoteAttempts = 3

type Store interface {
	store.SubmissionStore
	store.QuoteStore
	store.FinancePlanStore
	store.PaymentStore
}

// QuoteTransitions is the part of the quote engine the lifecycle drives.
type QuoteTransitions interface {
	RequestBind(ctx context.Context, q *models.Quote) (*models.Quote, error)
	Bind(ctx context.Context, q *models.Quote) (*models.Quote, error)
	Decline(ctx context.Context, quoteID, reason string, actor models.Actor) (*models.Quote, error)
}

// Searcher answers listing queries from the read-side index.
type Searcher interface {
	SearchSubmissions(ctx context.Context, filter models.SubmissionFilter) (*models.SubmissionPage, error)
}

// CreateInput is an agency's intake request.
type CreateInput struct {
	AgencyID      string               `json:"agencyId"`
	ClientContact models.ClientContact `json:"clientContact"`
	Payload       json.RawMessage      `json:"payload"`
}

type Service struct {
	store    Store
	quotes   QuoteTransitions
	searcher Searcher
	hooks    *core.Hooks
	logger   logger.Logger
	now      core.Clock
}

// NewService wires the lifecycle. searcher may be nil, in which case
// Search reads from the store.
func NewService(s Store, quotes QuoteTransitions, searcher Searcher, hooks *core.Hooks, log logger.Logger) *Service {
	return &Service{store: s, quotes: quotes, searcher: searcher, hooks: hooks, logger: log, now: core.SystemClock}
}

// ==========================
// Intake and reads
// ==========================

func (s *Service) Create(ctx context.Context, in CreateInput, actor models.Actor) (*models.Submission, error) {
	agencyID := in.AgencyID
	if actor.IsAgency() {
		agencyID = actor.AgencyID
	}
	var problems []string
	if strings.TrimSpace(agencyID) == "" {
		problems = append(problems, "agencyId is required")
	}
	if strings.TrimSpace(in.ClientContact.Name) == "" {
		problems = append(problems, "clientContact.name is required")
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		problems = append(problems, "payload must be valid JSON")
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError(strings.Join(problems, "; "))
	}

	now := s.now()
	sub := &models.Submission{
		ID:            uuid.NewString(),
		AgencyID:      agencyID,
		ClientContact: in.ClientContact,
		Payload:       in.Payload,
		Status:        models.SubmissionSubmitted,
		Documents:     []models.DocumentRecord{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, core.StoreError("create submission", "submission", sub.ID, err)
	}

	s.logger.Info("submission created", map[string]interface{}{"submissionId": sub.ID, "agencyId": agencyID, "actor": actor.ID})
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionCreated, actor, nil)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", id, err)
	}
	return sub, nil
}

// Search lists submissions. Results from the index are eventually
// consistent with the store.
func (s *Service) Search(ctx context.Context, filter models.SubmissionFilter) (*models.SubmissionPage, error) {
	if filter.Size <= 0 || filter.Size > 100 {
		filter.Size = 20
	}
	if filter.From < 0 {
		filter.From = 0
	}
	if s.searcher != nil {
		page, err := s.searcher.SearchSubmissions(ctx, filter)
		if err == nil {
			return page, nil
		}
		s.logger.Warn("search index unavailable, reading from store", map[string]interface{}{"error": err.Error()})
	}
	subs, err := s.store.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, core.StoreError("list submissions", "submission", "", err)
	}
	return &models.SubmissionPage{Submissions: subs, Total: int64(len(subs))}, nil
}

// AddNote appends an admin remark without changing status.
func (s *Service) AddNote(ctx context.Context, id, text string, actor models.Actor) (*models.Submission, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("note text is required")
	}
	for attempt := 1; ; attempt++ {
		sub, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.now()
		sub.Notes = append(sub.Notes, models.Note{ID: uuid.NewString(), Text: text, AuthorID: actor.ID, CreatedAt: now})
		sub.UpdatedAt = now
		err = s.store.UpdateSubmission(ctx, sub, sub.Status)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxNoteAttempts {
			return nil, core.StoreError("update submission", "submission", id, err)
		}
	}
}

// ==========================
// Transitions
// ==========================

// Route moves SUBMITTED to ROUTED.
func (s *Service) Route(ctx context.Context, id string, actor models.Actor) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub, err = s.transition(ctx, sub, "route", models.SubmissionRouted, func(next *models.Submission) {
		at := s.now()
		next.RoutedAt = &at
	}, models.SubmissionSubmitted)
	if err != nil {
		return nil, err
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionRouted, actor, nil)
	return sub, nil
}

// AttachQuote moves ROUTED to QUOTED once a posted quote of this submission
// exists and makes it the active quote. It is a no-op when already QUOTED.
func (s *Service) AttachQuote(ctx context.Context, id, quoteID string, actor models.Actor) (*models.Submission, bool, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if sub.Status == models.SubmissionQuoted {
		return sub, true, nil
	}
	if sub.Status != models.SubmissionRouted {
		return nil, false, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "attach quote")
	}
	if _, err := s.offeredQuote(ctx, sub, quoteID, "attach quote"); err != nil {
		return nil, false, err
	}

	sub, err = s.transition(ctx, sub, "attach quote", models.SubmissionQuoted, func(next *models.Submission) {
		at := s.now()
		next.QuotedAt = &at
		next.ActiveQuoteID = quoteID
	}, models.SubmissionRouted)
	if err != nil {
		return nil, false, err
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionQuoted, actor, map[string]interface{}{"quoteId": quoteID})
	return sub, false, nil
}

// SelectQuote switches the active quote while QUOTED. Documents rendered
// for the previous quote are dropped; that is refused once any of them has
// gone out for signature.
func (s *Service) SelectQuote(ctx context.Context, id, quoteID string, actor models.Actor) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionQuoted {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "select quote")
	}
	if sub.ActiveQuoteID == quoteID {
		return sub, nil
	}
	if _, err := s.offeredQuote(ctx, sub, quoteID, "select quote"); err != nil {
		return nil, err
	}
	for _, doc := range sub.Documents {
		if doc.SignatureStatus == models.SignatureSent || doc.SignatureStatus == models.SignatureSigned {
			return nil, apperrors.NewInvalidDocumentStateError(string(doc.DocumentType), string(doc.SignatureStatus))
		}
	}

	sub, err = s.transition(ctx, sub, "select quote", models.SubmissionQuoted, func(next *models.Submission) {
		next.ActiveQuoteID = quoteID
		next.Documents = []models.DocumentRecord{}
	}, models.SubmissionQuoted)
	if err != nil {
		return nil, err
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionQuoted, actor, map[string]interface{}{"quoteId": quoteID})
	return sub, nil
}

func (s *Service) offeredQuote(ctx context.Context, sub *models.Submission, quoteID, op string) (*models.Quote, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", quoteID, err)
	}
	if q.SubmissionID != sub.ID {
		return nil, apperrors.NewValidationError(fmt.Sprintf("quote %s belongs to another submission", quoteID))
	}
	if q.Status != models.QuotePosted && q.Status != models.QuoteApproved {
		return nil, apperrors.NewInvalidTransitionError("quote", string(q.Status), op)
	}
	return q, nil
}

// RequestBind moves QUOTED to BIND_REQUESTED. The active quote must be
// APPROVED; signatures and payment are checked at approval.
func (s *Service) RequestBind(ctx context.Context, id string, actor models.Actor) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionQuoted {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "request bind")
	}
	q, err := s.activeQuote(ctx, sub)
	if err != nil {
		return nil, err
	}
	if q.Status != models.QuoteApproved {
		return nil, apperrors.NewGateNotSatisfiedError(apperrors.GateQuoteApproval)
	}

	before := sub
	sub, err = s.transition(ctx, sub, "request bind", models.SubmissionBindRequested, func(next *models.Submission) {
		at := s.now()
		next.BindRequested = true
		next.BindRequestedAt = &at
		next.BindRequestedBy = actor.ID
	}, models.SubmissionQuoted)
	if err != nil {
		return nil, err
	}

	if _, err := s.quotes.RequestBind(ctx, q); err != nil {
		s.compensate(ctx, sub, before, "request bind", err)
		return nil, err
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventBindRequested, actor, nil)
	return sub, nil
}

// ApproveBind moves BIND_REQUESTED to BOUND once e-signature is complete and
// the active quote is paid, then binds the quote. If the quote cannot be
// bound the submission is put back to BIND_REQUESTED.
func (s *Service) ApproveBind(ctx context.Context, id string, actor models.Actor) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionBindRequested {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "approve bind")
	}
	q, err := s.activeQuote(ctx, sub)
	if err != nil {
		return nil, err
	}

	var unmet []string
	if !sub.EsignCompleted {
		unmet = append(unmet, apperrors.GateEsign)
	}
	status, err := s.paymentStatus(ctx, q)
	if err != nil {
		return nil, err
	}
	if status != models.PaymentPaid {
		unmet = append(unmet, apperrors.GatePayment)
	}
	if len(unmet) > 0 {
		return nil, apperrors.NewGateNotSatisfiedError(unmet...)
	}
	if q.Status != models.QuoteBindRequested {
		return nil, apperrors.NewInvalidTransitionError("quote", string(q.Status), "bind")
	}

	before := sub
	sub, err = s.transition(ctx, sub, "approve bind", models.SubmissionBound, func(next *models.Submission) {
		at := s.now()
		next.BindApproved = true
		next.BindApprovedAt = &at
		next.BindApprovedBy = actor.ID
	}, models.SubmissionBindRequested)
	if err != nil {
		return nil, err
	}

	if _, err := s.quotes.Bind(ctx, q); err != nil {
		s.compensate(ctx, sub, before, "approve bind", err)
		return nil, err
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionBound, actor, nil)
	return sub, nil
}

// Decline closes a non-terminal submission. The active quote is declined
// on a best-effort basis.
func (s *Service) Decline(ctx context.Context, id, reason string, actor models.Actor) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub, err = s.transition(ctx, sub, "decline", models.SubmissionDeclined, func(next *models.Submission) {
		at := s.now()
		next.DeclinedAt = &at
		next.DeclineReason = reason
	}, models.SubmissionSubmitted, models.SubmissionRouted, models.SubmissionQuoted, models.SubmissionBindRequested)
	if err != nil {
		return nil, err
	}

	if sub.ActiveQuoteID != "" {
		if _, err := s.quotes.Decline(ctx, sub.ActiveQuoteID, reason, actor); err != nil {
			s.logger.Warn("active quote not declined", map[string]interface{}{
				"submissionId": id,
				"quoteId":      sub.ActiveQuoteID,
				"error":        err.Error(),
			})
		}
	}
	s.hooks.SubmissionChanged(ctx, sub, models.EventSubmissionDeclined, actor, map[string]interface{}{"reason": reason})
	return sub, nil
}

// ==========================
// Helpers
// ==========================

// transition applies one guarded status change to a copy of sub.
func (s *Service) transition(ctx context.Context, sub *models.Submission, op string, to models.SubmissionStatus, mutate func(*models.Submission), from ...models.SubmissionStatus) (*models.Submission, error) {
	allowed := false
	for _, f := range from {
		if sub.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), op)
	}

	next := sub.Clone()
	next.Status = to
	if mutate != nil {
		mutate(next)
	}
	next.UpdatedAt = s.now()
	if err := s.store.UpdateSubmission(ctx, next, sub.Status); err != nil {
		return nil, core.StoreError("update submission", "submission", sub.ID, err)
	}

	s.logger.Info("submission transitioned", map[string]interface{}{
		"submissionId": sub.ID,
		"operation":    op,
		"from":         string(sub.Status),
		"to":           string(to),
		"version":      next.Version,
	})
	return next, nil
}

// compensate restores the pre-transition snapshot after the paired quote
// update failed.
func (s *Service) compensate(ctx context.Context, current, before *models.Submission, op string, cause error) {
	restored := before.Clone()
	restored.Version = current.Version
	restored.UpdatedAt = s.now()
	if err := s.store.UpdateSubmission(ctx, restored, current.Status); err != nil {
		s.logger.Error("compensation failed, submission and quote disagree", map[string]interface{}{
			"submissionId": current.ID,
			"operation":    op,
			"status":       string(current.Status),
			"cause":        cause.Error(),
			"error":        err.Error(),
		})
		return
	}
	s.logger.Warn("submission transition compensated", map[string]interface{}{
		"submissionId": current.ID,
		"operation":    op,
		"restored":     string(before.Status),
		"cause":        cause.Error(),
	})
}

func (s *Service) activeQuote(ctx context.Context, sub *models.Submission) (*models.Quote, error) {
	if sub.ActiveQuoteID == "" {
		return nil, apperrors.NewNotFoundError("active quote", sub.ID)
	}
	q, err := s.store.GetQuote(ctx, sub.ActiveQuoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", sub.ActiveQuoteID, err)
	}
	return q, nil
}

func (s *Service) paymentStatus(ctx context.Context, q *models.Quote) (models.PaymentStatus, error) {
	plan, err := s.store.GetFinancePlan(ctx, q.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", core.StoreError("get finance plan", "finance plan", q.ID, err)
	}
	payments, err := s.store.ListPayments(ctx, q.ID)
	if err != nil {
		return "", core.StoreError("list payments", "payment", q.ID, err)
	}
	return payment.DeriveStatus(q, plan, payments), nil
}
