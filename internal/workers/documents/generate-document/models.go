// internal/workers/documents/generate-document/models.go
package generatedocument

import "submission-workflow/internal/models"

type Input struct {
	SubmissionID  string   `json:"submissionId"`
	DocumentType  string   `json:"documentType,omitempty"`
	DocumentTypes []string `json:"documentTypes,omitempty"`
}

type Output struct {
	SubmissionID string              `json:"submissionId"`
	Documents    []GeneratedDocument `json:"documents"`
}

type GeneratedDocument struct {
	DocumentType models.DocumentType `json:"documentType"`
	FileName     string              `json:"fileName"`
	URL          string              `json:"url"`
	Generation   int                 `json:"generation"`
}
