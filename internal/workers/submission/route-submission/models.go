// internal/workers/submission/route-submission/models.go
package routesubmission

type Input struct {
	SubmissionID string `json:"submissionId"`
}

type Output struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
	AgencyID     string `json:"agencyId"`
	Version      int64  `json:"version"`
}
