package api

import (
	"encoding/json"
	"net/http"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
)

// PaymentLedger is the payments of one quote with the derived status.
type PaymentLedger struct {
	QuoteID       string               `json:"quoteId"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Payments      []models.Payment     `json:"payments"`
}

func (s *Server) recordPayment(c *gin.Context) {
	body, err := readValidated(c, validation.SchemaPaymentRequest)
	if err != nil {
		respondError(c, err)
		return
	}
	var req models.PaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	if _, err := s.accessibleQuote(c, req.QuoteID); err != nil {
		respondError(c, err)
		return
	}
	payment, err := s.services.Payments.RecordPayment(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, payment)
}

func (s *Server) listPayments(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := s.accessibleQuote(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	payments, err := s.services.Payments.ListPayments(ctx, q.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	status, err := s.services.Payments.PaymentStatus(ctx, q.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	respond(c, http.StatusOK, PaymentLedger{QuoteID: q.ID, PaymentStatus: status, Payments: payments})
}
