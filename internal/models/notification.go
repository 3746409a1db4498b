// internal/models/notification.go
package models

import "time"

// EventType names a domain event emitted after a successful state change.
type EventType string

const (
	EventSubmissionCreated   EventType = "submission.created"
	EventSubmissionRouted    EventType = "submission.routed"
	EventSubmissionQuoted    EventType = "submission.quoted"
	EventBindRequested       EventType = "submission.bind_requested"
	EventSubmissionBound     EventType = "submission.bound"
	EventSubmissionDeclined  EventType = "submission.declined"
	EventDocumentGenerated   EventType = "document.generated"
	EventDocumentsSent       EventType = "esign.sent"
	EventEsignCompleted      EventType = "esign.completed"
	EventDocumentDeclined    EventType = "esign.declined"
	EventQuotePosted         EventType = "quote.posted"
	EventQuoteApproved       EventType = "quote.approved"
	EventPaymentRecorded     EventType = "payment.recorded"
	EventFinancePlanSelected EventType = "finance.plan_selected"
)

// Event is published fire-and-forget; delivery failure never rolls back
// the change that produced it.
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	SubmissionID string                 `json:"submissionId,omitempty"`
	QuoteID      string                 `json:"quoteId,omitempty"`
	AgencyID     string                 `json:"agencyId,omitempty"`
	Status       string                 `json:"status,omitempty"`
	ActorID      string                 `json:"actorId,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
}

// Notification channel results.
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
