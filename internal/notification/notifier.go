// Package notification turns submission events into client emails and SMS.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/messaging"
	"submission-workflow/internal/models"

	"github.com/google/uuid"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// SubmissionReader resolves the client contact of an event.
type SubmissionReader interface {
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
}

type template struct {
	subject string
	body    string
	// sms also goes out by text message when SMS is enabled
	sms bool
}

var templates = map[models.EventType]template{
	models.EventSubmissionQuoted: {
		subject: "Your quote is ready",
		body:    "Hello {{name}}, a quote is available for submission {{submissionId}}.",
	},
	models.EventDocumentsSent: {
		subject: "Documents ready for signature",
		body:    "Hello {{name}}, please sign the documents for submission {{submissionId}}: {{signingUrl}}",
		sms:     true,
	},
	models.EventPaymentRecorded: {
		subject: "Payment received",
		body:    "Hello {{name}}, we received your {{paymentType}} payment of USD {{amountUSD}} for submission {{submissionId}}.",
	},
	models.EventSubmissionBound: {
		subject: "Your policy is bound",
		body:    "Hello {{name}}, submission {{submissionId}} is bound. Coverage is in force.",
		sms:     true,
	},
	models.EventSubmissionDeclined: {
		subject: "Submission declined",
		body:    "Hello {{name}}, submission {{submissionId}} was declined. {{reason}}",
		sms:     true,
	},
}

// Result mirrors what the notification job reports back.
type Result struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	SentAt         string `json:"sentAt"`
}

type Notifier struct {
	cfg         Config
	submissions SubmissionReader
	email       EmailSender
	sms         SMSSender
	logger      logger.Logger
}

func NewNotifier(cfg Config, submissions SubmissionReader, email EmailSender, sms SMSSender, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:         cfg,
		submissions: submissions,
		email:       email,
		sms:         sms,
		logger:      log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// Supports reports whether an event type has a client notification.
func Supports(t models.EventType) bool {
	_, ok := templates[t]
	return ok
}

// Notify sends the client notification for event. Events without a
// template, and clients without contact details, yield StatusDisabled.
// A send failure is returned so the caller can retry.
func (n *Notifier) Notify(ctx context.Context, event models.Event) (*Result, error) {
	result := &Result{
		NotificationID: uuid.NewString(),
		Status:         models.StatusDisabled,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}

	tmpl, ok := templates[event.Type]
	if !ok || event.SubmissionID == "" {
		return result, nil
	}

	sub, err := n.submissions.GetSubmission(ctx, event.SubmissionID)
	if err != nil {
		n.logger.Warn("recipient not found", map[string]interface{}{
			"submissionId": event.SubmissionID,
			"error":        err.Error(),
		})
		return result, nil
	}
	contact := sub.ClientContact

	data := map[string]interface{}{
		"name":         contact.Name,
		"submissionId": event.SubmissionID,
		"quoteId":      event.QuoteID,
	}
	for k, v := range event.Data {
		data[k] = v
	}
	subject := renderTemplate(tmpl.subject, data)
	body := renderTemplate(tmpl.body, data)

	sent := false
	if n.cfg.EmailEnabled && n.email != nil && contact.Email != "" {
		if _, err := n.email.SendEmail(ctx, contact.Email, subject, body); err != nil {
			result.Status = models.StatusFailed
			return result, fmt.Errorf("send email: %w", err)
		}
		sent = true
	}
	if tmpl.sms && n.cfg.SMSEnabled && n.sms != nil && contact.Phone != "" {
		if _, err := n.sms.SendSMS(ctx, contact.Phone, body); err != nil {
			result.Status = models.StatusFailed
			return result, fmt.Errorf("send sms: %w", err)
		}
		sent = true
	}

	if sent {
		result.Status = models.StatusSent
		n.logger.Info("notification sent", map[string]interface{}{
			"eventType":    string(event.Type),
			"submissionId": event.SubmissionID,
		})
	}
	return result, nil
}

// HandleMessage is the queue consumer entry point.
func (n *Notifier) HandleMessage(ctx context.Context, body []byte) error {
	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, messaging.ErrDiscard)
	}
	_, err := n.Notify(ctx, event)
	return err
}

// renderTemplate substitutes {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return strings.TrimSpace(result)
}
