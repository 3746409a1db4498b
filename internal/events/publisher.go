// Package events delivers domain events to the notification queue and to
// the workflow engine.
package events

import (
	"context"
	"errors"
	"fmt"

	"submission-workflow/internal/common/metrics"
	"submission-workflow/internal/core"
	"submission-workflow/internal/models"
)

// JSONPublisher is satisfied by messaging.Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, queue, messageID string, v interface{}) error
}

// QueuePublisher writes every event to one durable queue.
type QueuePublisher struct {
	publisher JSONPublisher
	queue     string
}

var _ core.EventPublisher = (*QueuePublisher)(nil)

func NewQueuePublisher(p JSONPublisher, queue string) *QueuePublisher {
	return &QueuePublisher{publisher: p, queue: queue}
}

func (q *QueuePublisher) Publish(ctx context.Context, event models.Event) error {
	err := q.publisher.PublishJSON(ctx, q.queue, event.ID, event)
	record("queue", err)
	return err
}

func record(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventDeliveries.WithLabelValues(sink, result).Inc()
}

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey, messageID string, variables interface{}) error
}

// workflowMessages are the events a submission process waits on, keyed to
// the BPMN message name.
var workflowMessages = map[models.EventType]string{
	models.EventSubmissionQuoted:   "submission-quoted",
	models.EventBindRequested:      "bind-requested",
	models.EventEsignCompleted:     "esign-completed",
	models.EventDocumentDeclined:   "esign-declined",
	models.EventPaymentRecorded:    "payment-recorded",
	models.EventSubmissionBound:    "submission-bound",
	models.EventSubmissionDeclined: "submission-declined",
}

// WorkflowPublisher correlates selected events with the submission's
// process instance, using the submission ID as correlation key.
type WorkflowPublisher struct {
	messages MessagePublisher
}

var _ core.EventPublisher = (*WorkflowPublisher)(nil)

func NewWorkflowPublisher(m MessagePublisher) *WorkflowPublisher {
	return &WorkflowPublisher{messages: m}
}

// MessageName returns the BPMN message for an event type.
func MessageName(t models.EventType) (string, bool) {
	name, ok := workflowMessages[t]
	return name, ok
}

func (w *WorkflowPublisher) Publish(ctx context.Context, event models.Event) error {
	name, ok := workflowMessages[event.Type]
	if !ok || event.SubmissionID == "" {
		return nil
	}
	vars := map[string]interface{}{
		"submissionId": event.SubmissionID,
		"status":       event.Status,
		"eventType":    string(event.Type),
	}
	if event.QuoteID != "" {
		vars["quoteId"] = event.QuoteID
	}
	for k, v := range event.Data {
		vars[k] = v
	}
	err := w.messages.PublishMessage(ctx, name, event.SubmissionID, event.ID, vars)
	record("workflow", err)
	if err != nil {
		return fmt.Errorf("publish workflow message %s: %w", name, err)
	}
	return nil
}

// Multi fans an event out to every publisher. All publishers are tried;
// their errors are joined.
type Multi []core.EventPublisher

func (m Multi) Publish(ctx context.Context, event models.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
