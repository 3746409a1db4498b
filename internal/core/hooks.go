// Package core holds what the submission workflow services share: the
// post-change hooks and the clock.
package core

import (
	"context"
	"time"

	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/metrics"
	"submission-workflow/internal/models"

	"github.com/google/uuid"
)

// EventPublisher delivers domain events (queue, workflow engine, ...).
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// SubmissionIndexer keeps the read-side search index current.
type SubmissionIndexer interface {
	IndexSubmission(ctx context.Context, submission *models.Submission) error
}

// Clock returns the current time. Services default to time.Now in UTC.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

// Hooks runs the side effects that follow a committed change. Failures are
// logged and never surface to the caller.
type Hooks struct {
	Publisher EventPublisher
	Indexer   SubmissionIndexer
	Logger    logger.Logger
	// Async detaches delivery from the request. Tests leave it off.
	Async   bool
	Timeout time.Duration
}

// NoHooks discards every event.
func NoHooks() *Hooks {
	return &Hooks{Logger: logger.NewNoOpLogger()}
}

// SubmissionChanged indexes the submission and publishes an event about it.
func (h *Hooks) SubmissionChanged(ctx context.Context, s *models.Submission, eventType models.EventType, actor models.Actor, data map[string]interface{}) {
	if h == nil {
		return
	}
	snapshot := s.Clone()
	event := models.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		SubmissionID: s.ID,
		QuoteID:      s.ActiveQuoteID,
		AgencyID:     s.AgencyID,
		Status:       string(s.Status),
		ActorID:      actor.ID,
		Data:         data,
		OccurredAt:   time.Now().UTC(),
	}
	h.run(ctx, func(ctx context.Context) {
		h.index(ctx, snapshot)
		h.publish(ctx, event)
	})
}

// Emit publishes an event that is not tied to a submission snapshot.
func (h *Hooks) Emit(ctx context.Context, event models.Event) {
	if h == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	h.run(ctx, func(ctx context.Context) { h.publish(ctx, event) })
}

func (h *Hooks) run(ctx context.Context, fn func(context.Context)) {
	timeout := h.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if !h.Async {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		fn(ctx)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (h *Hooks) index(ctx context.Context, s *models.Submission) {
	if h.Indexer == nil {
		return
	}
	if err := h.Indexer.IndexSubmission(ctx, s); err != nil {
		h.log().Warn("submission indexing failed", map[string]interface{}{
			"submissionId": s.ID,
			"error":        err.Error(),
		})
	}
}

func (h *Hooks) publish(ctx context.Context, event models.Event) {
	metrics.SubmissionEvents.WithLabelValues(string(event.Type)).Inc()
	if h.Publisher == nil {
		return
	}
	if err := h.Publisher.Publish(ctx, event); err != nil {
		h.log().Warn("event publish failed", map[string]interface{}{
			"eventType":    string(event.Type),
			"submissionId": event.SubmissionID,
			"error":        err.Error(),
		})
	}
}

func (h *Hooks) log() logger.Logger {
	if h.Logger == nil {
		return logger.NewNoOpLogger()
	}
	return h.Logger
}
