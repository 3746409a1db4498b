// internal/workers/esign/send-for-signature/models.go
package sendforsignature

type Input struct {
	SubmissionID string `json:"submissionId"`
}

type Output struct {
	SubmissionID string `json:"submissionId"`
	EnvelopeID   string `json:"envelopeId"`
	SigningURL   string `json:"signingUrl,omitempty"`
	SentAt       string `json:"sentAt"`
}
