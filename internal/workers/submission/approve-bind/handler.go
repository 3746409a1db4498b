// internal/workers/submission/approve-bind/handler.go
package approvebind

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
	TaskType = "approve-bind"
)

type Binder interface {
	ApproveBind(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
}

type Handler struct {
	config       *Config
	binder       Binder
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, binder Binder, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		binder:       binder,
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

	sub, err := h.binder.ApproveBind(ctx, id, models.SystemActor(TaskType))
	if err == nil {
		h.logger.Info("submission bound", map[string]interface{}{
			"submissionId": sub.ID,
			"quoteId":      sub.ActiveQuoteID,
		})
		return &Output{
			SubmissionID: sub.ID,
			Bound:        true,
			Status:       string(sub.Status),
			QuoteID:      sub.ActiveQuoteID,
			UnmetGates:   []string{},
		}, nil
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeGateNotSatisfied:
		if !h.config.ReportGates {
			return nil, err
		}
		gates := unmetGates(err)
		h.logger.Info("bind gates not satisfied", map[string]interface{}{
			"submissionId": id,
			"gates":        gates,
		})
		return &Output{
			SubmissionID: id,
			Status:       string(models.SubmissionBindRequested),
			UnmetGates:   gates,
		}, nil
	case apperrors.ErrCodeInvalidTransition:
		// a redelivered job after a successful bind
		current, getErr := h.binder.Get(ctx, id)
		if getErr == nil && current.Status == models.SubmissionBound {
			return &Output{
				SubmissionID: id,
				Bound:        true,
				Status:       string(current.Status),
				QuoteID:      current.ActiveQuoteID,
				UnmetGates:   []string{},
			}, nil
		}
	}
	return nil, err
}

func unmetGates(err error) []string {
	stdErr, ok := apperrors.As(err)
	if !ok {
		return nil
	}
	gates, _ := stdErr.Metadata["gates"].([]string)
	return gates
}
