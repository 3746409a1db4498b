// internal/workers/notification/send-notification/models.go
package sendnotification

type Input struct {
	EventType    string                 `json:"eventType"`
	SubmissionID string                 `json:"submissionId"`
	QuoteID      string                 `json:"quoteId,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	SentAt         string `json:"sentAt"`
}
