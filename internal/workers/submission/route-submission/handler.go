// internal/workers/submission/route-submission/handler.go
package routesubmission

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "route-submission"
)

// Router is the lifecycle operation this worker drives.
type Router interface {
	Route(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
}

type Handler struct {
	config       *Config
	router       Router
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, router Router, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		router:       router,
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

// Execute routes a SUBMITTED submission to underwriting. A submission that
// was already routed completes the job unchanged so broker redeliveries
// are harmless.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	id := strings.TrimSpace(input.SubmissionID)
	if id == "" {
		return nil, apperrors.NewValidationError("submissionId is required")
	}

	sub, err := h.router.Route(ctx, id, models.SystemActor(TaskType))
	if apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition) {
		current, getErr := h.router.Get(ctx, id)
		if getErr == nil && current.Status == models.SubmissionRouted {
			h.logger.Info("submission already routed", map[string]interface{}{"submissionId": id})
			sub, err = current, nil
		}
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("submission routed", map[string]interface{}{
		"submissionId": sub.ID,
		"status":       string(sub.Status),
	})
	return &Output{
		SubmissionID: sub.ID,
		Status:       string(sub.Status),
		AgencyID:     sub.AgencyID,
		Version:      sub.Version,
	}, nil
}
