// internal/workers/submission/approve-bind/models.go
package approvebind

type Input struct {
	SubmissionID string `json:"submissionId"`
}

type Output struct {
	SubmissionID string   `json:"submissionId"`
	Bound        bool     `json:"bound"`
	Status       string   `json:"status"`
	QuoteID      string   `json:"quoteId,omitempty"`
	UnmetGates   []string `json:"unmetGates"`
}
