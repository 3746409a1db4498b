// internal/workers/documents/generate-document/handler.go
package generatedocument

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
	TaskType = "generate-document"
)

type Generator interface {
	Generate(ctx context.Context, submissionID string, docType models.DocumentType, actor models.Actor) (*models.DocumentRecord, error)
}

type Handler struct {
	config       *Config
	generator    Generator
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, generator Generator, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		generator:    generator,
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

// Execute generates each requested document in order and stops at the
// first failure. Documents generated before the failure stay recorded; a
// retried job simply issues them again.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	id := strings.TrimSpace(input.SubmissionID)
	if id == "" {
		return nil, apperrors.NewValidationError("submissionId is required")
	}
	types, err := documentTypes(input)
	if err != nil {
		return nil, err
	}

	output := &Output{SubmissionID: id, Documents: make([]GeneratedDocument, 0, len(types))}
	actor := models.SystemActor(TaskType)
	for _, t := range types {
		record, err := h.generator.Generate(ctx, id, t, actor)
		if err != nil {
			return nil, err
		}
		output.Documents = append(output.Documents, GeneratedDocument{
			DocumentType: record.DocumentType,
			FileName:     record.FileName,
			URL:          record.URL,
			Generation:   record.Generation,
		})
	}

	h.logger.Info("documents generated", map[string]interface{}{
		"submissionId": id,
		"count":        len(output.Documents),
	})
	return output, nil
}

func documentTypes(input *Input) ([]models.DocumentType, error) {
	raw := input.DocumentTypes
	if input.DocumentType != "" {
		raw = append([]string{input.DocumentType}, raw...)
	}
	if len(raw) == 0 {
		return nil, apperrors.NewValidationError("documentType or documentTypes is required")
	}

	seen := make(map[models.DocumentType]bool, len(raw))
	out := make([]models.DocumentType, 0, len(raw))
	for _, r := range raw {
		t := models.DocumentType(strings.ToUpper(strings.TrimSpace(r)))
		if !t.Valid() {
			return nil, apperrors.NewValidationError("unknown document type " + r)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
