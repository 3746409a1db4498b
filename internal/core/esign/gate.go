// Package esign sends a submission's required documents for signature and
// folds provider callbacks back into the document records.
package esign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core"
	"submission-workflow/internal/core/documents"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store"
)

const maxEventAttempts = 3

type EnvelopeDocument struct {
	DocumentType models.DocumentType `json:"documentType"`
	FileName     string              `json:"fileName"`
	URL          string              `json:"url"`
}

type EnvelopeRequest struct {
	SubmissionID string               `json:"submissionId"`
	Signer       models.ClientContact `json:"signer"`
	Documents    []EnvelopeDocument   `json:"documents"`
}

// Provider opens a signing envelope for a set of documents.
type Provider interface {
	CreateEnvelope(ctx context.Context, req EnvelopeRequest) (*models.EnvelopeRef, error)
}

// Deduper remembers webhook deliveries. Claim returns false when the key was
// already claimed.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Store interface {
	store.SubmissionStore
	store.FinancePlanStore
}

// SignatureEvent is a provider callback. An empty DocumentType targets every
// SENT document; an empty EnvelopeID skips the envelope check.
type SignatureEvent struct {
	SubmissionID string                  `json:"submissionId"`
	DocumentType models.DocumentType     `json:"documentType,omitempty"`
	Outcome      models.SignatureOutcome `json:"outcome"`
	EnvelopeID   string                  `json:"envelopeId,omitempty"`
}

// dedupeKey binds the event to the generation and envelope of every
// document it can touch, so a re-issued and re-sent document is never
// mistaken for a redelivery of the previous round.
func (e SignatureEvent) dedupeKey(sub *models.Submission) string {
	parts := []string{e.SubmissionID, string(e.DocumentType), string(e.Outcome), e.EnvelopeID}
	for _, doc := range sub.Documents {
		if e.DocumentType != "" && doc.DocumentType != e.DocumentType {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s@%d/%s", doc.DocumentType, doc.Generation, doc.EsignEnvelopeID))
	}
	return strings.Join(parts, ":")
}

// EventResult reports what a callback changed.
type EventResult struct {
	Applied        []models.DocumentType `json:"applied"`
	Ignored        []models.DocumentType `json:"ignored"`
	Duplicate      bool                  `json:"duplicate"`
	EsignCompleted bool                  `json:"esignCompleted"`
}

type Gate struct {
	store    Store
	provider Provider
	deduper  Deduper
	hooks    *core.Hooks
	logger   logger.Logger
	now      core.Clock
}

// NewGate builds the gate. deduper may be nil.
func NewGate(s Store, provider Provider, deduper Deduper, hooks *core.Hooks, log logger.Logger) *Gate {
	return &Gate{store: s, provider: provider, deduper: deduper, hooks: hooks, logger: log, now: core.SystemClock}
}

// IsComplete reports whether every required document is SIGNED.
func IsComplete(sub *models.Submission, hasFinancePlan bool) bool {
	for _, t := range documents.RequiredDocuments(hasFinancePlan) {
		doc := sub.Document(t)
		if doc == nil || doc.SignatureStatus != models.SignatureSigned {
			return false
		}
	}
	return true
}

// SendForSignature opens one envelope for all required documents and marks
// them SENT under the shared envelope id.
func (g *Gate) SendForSignature(ctx context.Context, submissionID string, actor models.Actor) (*models.EnvelopeRef, error) {
	sub, err := g.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", submissionID, err)
	}
	required, err := g.readyForSending(ctx, sub)
	if err != nil {
		return nil, err
	}

	req := EnvelopeRequest{SubmissionID: sub.ID, Signer: sub.ClientContact}
	for _, t := range required {
		doc := sub.Document(t)
		req.Documents = append(req.Documents, EnvelopeDocument{DocumentType: t, FileName: doc.FileName, URL: doc.URL})
	}
	ref, err := g.provider.CreateEnvelope(ctx, req)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("esign", err)
	}

	for attempt := 1; ; attempt++ {
		next := sub.Clone()
		now := g.now()
		for _, t := range required {
			doc := next.Document(t)
			doc.SignatureStatus = models.SignatureSent
			doc.SentForSignatureAt = &now
			doc.EsignEnvelopeID = ref.EnvelopeID
		}
		next.UpdatedAt = now

		err = g.store.UpdateSubmission(ctx, next, sub.Status)
		if err == nil {
			sub = next
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxEventAttempts {
			g.orphaned(ref, err)
			return nil, core.StoreError("update submission", "submission", submissionID, err)
		}
		if sub, err = g.store.GetSubmission(ctx, submissionID); err != nil {
			return nil, core.StoreError("get submission", "submission", submissionID, err)
		}
		if required, err = g.readyForSending(ctx, sub); err != nil {
			g.orphaned(ref, err)
			return nil, err
		}
	}

	g.logger.Info("documents sent for signature", map[string]interface{}{
		"submissionId": submissionID,
		"envelopeId":   ref.EnvelopeID,
		"documents":    len(required),
		"actor":        actor.ID,
	})
	g.hooks.SubmissionChanged(ctx, sub, models.EventDocumentsSent, actor, map[string]interface{}{
		"envelopeId": ref.EnvelopeID,
		"signingUrl": ref.SigningURL,
	})
	return ref, nil
}

func (g *Gate) readyForSending(ctx context.Context, sub *models.Submission) ([]models.DocumentType, error) {
	if (sub.Status != models.SubmissionQuoted && sub.Status != models.SubmissionBindRequested) || sub.ActiveQuoteID == "" {
		return nil, apperrors.NewInvalidTransitionError("submission", string(sub.Status), "send for signature")
	}
	hasPlan, err := documents.HasFinancePlan(ctx, g.store, sub.ActiveQuoteID)
	if err != nil {
		return nil, err
	}
	required := documents.RequiredDocuments(hasPlan)

	var missing []string
	for _, t := range required {
		if sub.Document(t) == nil {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewDocumentsNotReadyError(missing)
	}
	for _, t := range required {
		if doc := sub.Document(t); doc.SignatureStatus != models.SignatureGenerated {
			return nil, apperrors.NewInvalidDocumentStateError(string(t), string(doc.SignatureStatus))
		}
	}
	return required, nil
}

func (g *Gate) orphaned(ref *models.EnvelopeRef, cause error) {
	g.logger.Warn("envelope created but not recorded", map[string]interface{}{
		"envelopeId": ref.EnvelopeID,
		"error":      cause.Error(),
	})
}

// HandleSignatureEvent applies a provider outcome. Repeats are no-ops and
// only deliveries that changed a document stay deduplicated;
// stale events (conflicting outcome, unsent document, foreign envelope) are
// logged and ignored. Lost write races are retried against a fresh read.
func (g *Gate) HandleSignatureEvent(ctx context.Context, ev SignatureEvent) (*EventResult, error) {
	if !ev.Outcome.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown outcome %q", ev.Outcome))
	}
	if ev.DocumentType != "" && !ev.DocumentType.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown document type %q", ev.DocumentType))
	}

	if g.deduper == nil {
		return g.applyEvent(ctx, ev)
	}

	sub, err := g.store.GetSubmission(ctx, ev.SubmissionID)
	if err != nil {
		return nil, core.StoreError("get submission", "submission", ev.SubmissionID, err)
	}
	key := ev.dedupeKey(sub)
	first, err := g.deduper.Claim(ctx, key)
	if err != nil {
		g.logger.Warn("webhook dedupe unavailable", map[string]interface{}{"error": err.Error()})
		return g.applyEvent(ctx, ev)
	}
	if !first {
		return &EventResult{Duplicate: true}, nil
	}

	// Only a delivery that changed something keeps its key. An ignored event
	// may be valid once a concurrent send commits, so its redelivery must
	// be evaluated again.
	result, err := g.applyEvent(ctx, ev)
	if err != nil || len(result.Applied) == 0 {
		if rerr := g.deduper.Release(ctx, key); rerr != nil {
			g.logger.Warn("webhook dedupe release failed", map[string]interface{}{"error": rerr.Error()})
		}
	}
	return result, err
}

func (g *Gate) applyEvent(ctx context.Context, ev SignatureEvent) (*EventResult, error) {
	actor := models.SystemActor("esign-webhook")

	for attempt := 1; ; attempt++ {
		sub, err := g.store.GetSubmission(ctx, ev.SubmissionID)
		if err != nil {
			return nil, core.StoreError("get submission", "submission", ev.SubmissionID, err)
		}

		next := sub.Clone()
		result := g.fold(next, ev)
		if len(result.Applied) == 0 {
			result.EsignCompleted = sub.EsignCompleted
			return result, nil
		}

		hasPlan, err := documents.HasFinancePlan(ctx, g.store, next.ActiveQuoteID)
		if err != nil {
			return nil, err
		}
		newlyComplete := false
		if !next.EsignCompleted && IsComplete(next, hasPlan) {
			at := g.now()
			next.EsignCompleted = true
			next.EsignCompletedAt = &at
			newlyComplete = true
		}
		next.UpdatedAt = g.now()

		err = g.store.UpdateSubmission(ctx, next, sub.Status)
		if errors.Is(err, store.ErrConflict) && attempt < maxEventAttempts {
			g.logger.Debug("signature event lost race, retrying", map[string]interface{}{
				"submissionId": ev.SubmissionID,
				"attempt":      attempt,
			})
			continue
		}
		if err != nil {
			return nil, core.StoreError("update submission", "submission", ev.SubmissionID, err)
		}

		result.EsignCompleted = next.EsignCompleted
		g.logger.Info("signature event applied", map[string]interface{}{
			"submissionId":   ev.SubmissionID,
			"outcome":        string(ev.Outcome),
			"applied":        len(result.Applied),
			"esignCompleted": next.EsignCompleted,
		})
		if ev.Outcome == models.OutcomeDeclined {
			g.hooks.SubmissionChanged(ctx, next, models.EventDocumentDeclined, actor, map[string]interface{}{
				"documents": result.Applied,
			})
		}
		if newlyComplete {
			g.hooks.SubmissionChanged(ctx, next, models.EventEsignCompleted, actor, nil)
		}
		return result, nil
	}
}

// fold mutates sub in place and reports which documents changed.
func (g *Gate) fold(sub *models.Submission, ev SignatureEvent) *EventResult {
	result := &EventResult{}
	now := g.now()

	var targets []*models.DocumentRecord
	if ev.DocumentType != "" {
		doc := sub.Document(ev.DocumentType)
		if doc == nil {
			g.ignore(ev, ev.DocumentType, "document does not exist")
			result.Ignored = append(result.Ignored, ev.DocumentType)
			return result
		}
		targets = append(targets, doc)
	} else {
		for i := range sub.Documents {
			if sub.Documents[i].SignatureStatus == models.SignatureSent {
				targets = append(targets, &sub.Documents[i])
			}
		}
	}

	for _, doc := range targets {
		switch {
		case doc.SignatureStatus == models.SignatureGenerated:
			g.ignore(ev, doc.DocumentType, "document was not sent")
			result.Ignored = append(result.Ignored, doc.DocumentType)
		case ev.EnvelopeID != "" && doc.EsignEnvelopeID != ev.EnvelopeID:
			g.ignore(ev, doc.DocumentType, "envelope does not match")
			result.Ignored = append(result.Ignored, doc.DocumentType)
		case doc.SignatureStatus == models.SignatureSent:
			if ev.Outcome == models.OutcomeSigned {
				doc.SignatureStatus = models.SignatureSigned
				doc.SignedAt = &now
			} else {
				doc.SignatureStatus = models.SignatureDeclined
				doc.DeclinedAt = &now
			}
			result.Applied = append(result.Applied, doc.DocumentType)
		case string(doc.SignatureStatus) == string(ev.Outcome):
			// repeat delivery
		default:
			g.ignore(ev, doc.DocumentType, "conflicting outcome for a terminal document")
			result.Ignored = append(result.Ignored, doc.DocumentType)
		}
	}
	return result
}

func (g *Gate) ignore(ev SignatureEvent, docType models.DocumentType, reason string) {
	g.logger.Warn("stale signature event ignored", map[string]interface{}{
		"submissionId": ev.SubmissionID,
		"documentType": string(docType),
		"outcome":      string(ev.Outcome),
		"envelopeId":   ev.EnvelopeID,
		"reason":       reason,
	})
}
