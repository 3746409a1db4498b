package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/metrics"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Signature"

// webhookPayload accepts the outcome under either "outcome" or "status".
type webhookPayload struct {
	esign.SignatureEvent
	Status models.SignatureOutcome `json:"status,omitempty"`
}

// verifySignature checks the hex HMAC-SHA256 of body. An optional "sha256="
// prefix is accepted.
func verifySignature(secret string, body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// signWebhook computes the header value a provider would send.
func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) signatureWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.SignatureWebhooks.WithLabelValues("rejected").Inc()
		respondError(c, apperrors.NewValidationError("unreadable request body"))
		return
	}
	if s.opts.WebhookSecret != "" && !verifySignature(s.opts.WebhookSecret, body, c.GetHeader(signatureHeader)) {
		metrics.SignatureWebhooks.WithLabelValues("unauthorized").Inc()
		respondError(c, apperrors.NewUnauthorizedError("invalid webhook signature"))
		return
	}
	if err := validation.Check(validation.SchemaSignatureEvent, body); err != nil {
		metrics.SignatureWebhooks.WithLabelValues("rejected").Inc()
		respondError(c, err)
		return
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.SignatureWebhooks.WithLabelValues("rejected").Inc()
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	ev := payload.SignatureEvent
	if ev.Outcome == "" {
		ev.Outcome = payload.Status
	}

	result, err := s.services.Signatures.HandleSignatureEvent(c.Request.Context(), ev)
	if err != nil {
		metrics.SignatureWebhooks.WithLabelValues("error").Inc()
		respondError(c, err)
		return
	}
	switch {
	case result.Duplicate:
		metrics.SignatureWebhooks.WithLabelValues("duplicate").Inc()
	case len(result.Applied) == 0:
		metrics.SignatureWebhooks.WithLabelValues("ignored").Inc()
	default:
		metrics.SignatureWebhooks.WithLabelValues("applied").Inc()
	}
	respond(c, http.StatusOK, result)
}
