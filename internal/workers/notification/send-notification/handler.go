// internal/workers/notification/send-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"
	"submission-workflow/internal/notification"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

type Notifier interface {
	Notify(ctx context.Context, event models.Event) (*notification.Result, error)
}

type Handler struct {
	config       *Config
	notifier     Notifier
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		notifier:     notifier,
		logger:       l,
		errorHandler: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

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

// Execute sends the client notification for an event type. Unknown event
// types complete with status "disabled"; channel failures are retryable.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	eventType := models.EventType(strings.TrimSpace(input.EventType))
	if eventType == "" {
		return nil, apperrors.NewValidationError("eventType is required")
	}
	if strings.TrimSpace(input.SubmissionID) == "" {
		return nil, apperrors.NewValidationError("submissionId is required")
	}
	if !notification.Supports(eventType) {
		h.logger.Warn("no template for event type", map[string]interface{}{"eventType": input.EventType})
	}

	result, err := h.notifier.Notify(ctx, models.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		SubmissionID: input.SubmissionID,
		QuoteID:      input.QuoteID,
		ActorID:      TaskType,
		Data:         input.Data,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, apperrors.NewCollaboratorError("notification", err)
	}

	return &Output{
		NotificationID: result.NotificationID,
		Status:         result.Status,
		SentAt:         result.SentAt,
	}, nil
}
