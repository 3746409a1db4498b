package api

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
)

type selectPlanRequest struct {
	DownPaymentPercent    float64 `json:"downPaymentPercent"`
	TenureMonths          int     `json:"tenureMonths"`
	AnnualInterestPercent float64 `json:"annualInterestPercent"`
}

// readFinanceTerms is readValidated for finance bodies, whose range errors
// surface as INVALID_FINANCE_INPUT.
func readFinanceTerms(c *gin.Context, schema string) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable request body")
	}
	if err := validation.CheckFinance(schema, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Server) calculateFinance(c *gin.Context) {
	body, err := readFinanceTerms(c, validation.SchemaFinanceInput)
	if err != nil {
		respondError(c, err)
		return
	}
	var in models.FinanceInput
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(c, apperrors.NewInvalidFinanceInputError(err.Error()))
		return
	}
	plan, cached, err := s.services.Calculator.Calculate(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMeta(c, http.StatusOK, plan, &Meta{Cached: &cached})
}

func (s *Server) getFinancePlan(c *gin.Context) {
	q, err := s.accessibleQuote(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	plan, err := s.services.FinancePlans.Get(c.Request.Context(), q.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, plan)
}

func (s *Server) selectFinancePlan(c *gin.Context) {
	body, err := readFinanceTerms(c, validation.SchemaFinancePlan)
	if err != nil {
		respondError(c, err)
		return
	}
	var req selectPlanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, apperrors.NewInvalidFinanceInputError(err.Error()))
		return
	}
	q, err := s.accessibleQuote(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	plan, err := s.services.FinancePlans.Select(c.Request.Context(), q.ID,
		req.DownPaymentPercent, req.TenureMonths, req.AnnualInterestPercent, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, plan)
}

func (s *Server) removeFinancePlan(c *gin.Context) {
	q, err := s.accessibleQuote(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.services.FinancePlans.Remove(c.Request.Context(), q.ID, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
