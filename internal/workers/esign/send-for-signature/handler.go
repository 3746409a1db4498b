// internal/workers/esign/send-for-signature/handler.go
package sendforsignature

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "send-for-signature"
)

type Sender interface {
	SendForSignature(ctx context.Context, submissionID string, actor models.Actor) (*models.EnvelopeRef, error)
}

type Handler struct {
	config       *Config
	sender       Sender
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, sender Sender, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sender:       sender,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	id := strings.TrimSpace(input.SubmissionID)
	if id == "" {
		return nil, apperrors.NewValidationError("submissionId is required")
	}

	ref, err := h.sender.SendForSignature(ctx, id, models.SystemActor(TaskType))
	if err != nil {
		return nil, err
	}
	return &Output{
		SubmissionID: id,
		EnvelopeID:   ref.EnvelopeID,
		SigningURL:   ref.SigningURL,
		SentAt:       time.Now().UTC().Format(time.RFC3339),
	}, nil
}
