// Package documents renders, validates and stores the artifacts a submission
// needs for signature, and tracks them on the submission.
package documents

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
)

const maxWriteAttempts = 3

// RenderRequest is the structured data handed to the renderer.
type RenderRequest struct {
	DocumentType models.DocumentType `json:"documentType"`
	Submission   *models.Submission  `json:"submission"`
	Quote        *models.Quote       `json:"quote"`
	FinancePlan  *models.FinancePlan `json:"financePlan,omitempty"`
}

// Renderer turns structured data into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// PDFValidator rejects bytes that are not a well-formed PDF.
type PDFValidator interface {
	Validate(data []byte) error
}

// ObjectStorage persists bytes and returns a retrievable URL.
type ObjectStorage interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

type Store interface {
	store.SubmissionStore
	store.QuoteStore
	store.FinancePlanStore
}

type Service struct {
	store     Store
	renderer  Renderer
	validator PDFValidator
	storage   ObjectStorage
	hooks     *core.Hooks
	logger    logger.Logger
	now       core.Clock
}

func NewService(s Store, renderer Renderer, validator PDFValidator, storage ObjectStorage, hooks *core.Hooks, log logger.Logger) *Service {
	return &Service{
		store:     s,
		renderer:  renderer,
		validator: validator,
		storage:   storage,
		hooks:     hooks,
		logger:    log,
		now:       core.SystemClock,
	}
}

// RequiredDocuments lists what must be signed before payment:
// PROPOSAL and CARRIER_FORM always, FINANCE_AGREEMENT with a plan.
func RequiredDocuments(hasFinancePlan bool) []models.DocumentType {
	required := []models.DocumentType{models.DocumentProposal, models.DocumentCarrierForm}
	if hasFinancePlan {
		required = append(required, models.DocumentFinanceAgreement)
	}
	return required
}

// HasFinancePlan reports whether a plan exists for the quote.
func HasFinancePlan(ctx context.Context, plans store.FinancePlanStore, quoteID string) (bool, error) {
	if quoteID == "" {
		return false, nil
	}
	_, err := plans.GetFinancePlan(ctx, quoteID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, core.StoreError("get finance plan", "finance plan", quoteID, err)
	}
}

// Generate renders the document, uploads it and records it as GENERATED.
// A SENT document is reset, a DECLINED one re-issued, a SIGNED one refused.
// Collaborator failures leave the submission untouched.
func (s *Service) Generate(ctx context.Context, submissionID string, docType models.DocumentType, actor models.Actor) (*models.DocumentRecord, error) {
	if !docType.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown document type %q", docType))
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", submissionID, err)
	}
	if err := checkGeneratable(sub, docType); err != nil {
		return nil, err
	}

	quote, err := s.store.GetQuote(ctx, sub.ActiveQuoteID)
	if err != nil {
		return nil, core.StoreError("get quote", "quote", sub.ActiveQuoteID, err)
	}
	plan, err := s.store.GetFinancePlan(ctx, quote.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, core.StoreError("get finance plan", "finance plan", quote.ID, err)
	}
	if docType == models.DocumentFinanceAgreement && plan == nil {
		return nil, apperrors.NewNotFoundError("finance plan", quote.ID)
	}

	data, err := s.renderer.Render(ctx, RenderRequest{DocumentType: docType, Submission: sub, Quote: quote, FinancePlan: plan})
	if err != nil {
		return nil, apperrors.NewCollaboratorError("renderer", err)
	}
	if s.validator != nil {
		if err := s.validator.Validate(data); err != nil {
			return nil, apperrors.NewCollaboratorError("renderer", fmt.Errorf("invalid pdf: %w", err))
		}
	}

	fileName := fmt.Sprintf("%s-%s.pdf", strings.ToLower(string(docType)), uuid.NewString()[:8])
	url, err := s.storage.Upload(ctx, submissionID+"/"+fileName, "application/pdf", data)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("storage", err)
	}

	record, sub, err := s.writeGenerated(ctx, sub, docType, fileName, url)
	if err != nil {
		return nil, err
	}

	s.logger.Info("document generated", map[string]interface{}{
		"submissionId": submissionID,
		"documentType": string(docType),
		"generation":   record.Generation,
		"actor":        actor.ID,
	})
	s.hooks.SubmissionChanged(ctx, sub, models.EventDocumentGenerated, actor, map[string]interface{}{
		"documentType": string(docType),
		"url":          url,
	})
	return record, nil
}

// List returns the documents recorded on a submission.
func (s *Service) List(ctx context.Context, submissionID string) ([]models.DocumentRecord, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", submissionID, err)
	}
	return sub.Documents, nil
}

func checkGeneratable(sub *models.Submission, docType models.DocumentType) error {
	if (sub.Status != models.SubmissionQuoted && sub.Status != models.SubmissionBindRequested) || sub.ActiveQuoteID == "" {
		return apperrors.NewInvalidTransitionError("submission", string(sub.Status), "generate document")
	}
	if doc := sub.Document(docType); doc != nil && doc.SignatureStatus == models.SignatureSigned {
		return apperrors.NewDocumentAlreadySignedError(string(docType))
	}
	return nil
}

// writeGenerated applies the record change under the version guard,
// re-reading the submission when a concurrent writer got there first.
func (s *Service) writeGenerated(ctx context.Context, sub *models.Submission, docType models.DocumentType, fileName, url string) (*models.DocumentRecord, *models.Submission, error) {
	for attempt := 1; ; attempt++ {
		next := sub.Clone()
		now := s.now()
		record := next.Document(docType)
		if record == nil {
			next.Documents = append(next.Documents, models.DocumentRecord{DocumentType: docType})
			record = &next.Documents[len(next.Documents)-1]
		}
		record.SignatureStatus = models.SignatureGenerated
		record.FileName = fileName
		record.URL = url
		record.Generation++
		record.GeneratedAt = now
		record.SentForSignatureAt = nil
		record.SignedAt = nil
		record.DeclinedAt = nil
		record.EsignEnvelopeID = ""
		next.UpdatedAt = now

		err := s.store.UpdateSubmission(ctx, next, sub.Status)
		if err == nil {
			out := *next.Document(docType)
			return &out, next, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxWriteAttempts {
			return nil, nil, core.StoreError("update submission", "submission", sub.ID, err)
		}

		id := sub.ID
		sub, err = s.store.GetSubmission(ctx, id)
		if err != nil {
			return nil, nil, core.StoreError("get submission", "submission", id, err)
		}
		if err := checkGeneratable(sub, docType); err != nil {
			return nil, nil, err
		}
	}
}
