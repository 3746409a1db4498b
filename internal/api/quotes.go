package api

import (
	"encoding/json"
	"net/http"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/core/quote"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
)

// PostedQuote is the response of a post: the quote and the submission it
// was attached to.
type PostedQuote struct {
	Quote      *models.Quote      `json:"quote"`
	Submission *models.Submission `json:"submission,omitempty"`
}

// accessibleQuote loads a quote through its submission's agency. Agencies
// cannot see quotes that have not been posted yet.
func (s *Server) accessibleQuote(c *gin.Context, id string) (*models.Quote, error) {
	q, err := s.services.Quotes.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	actor := actorFrom(c)
	if actor.IsAdmin() {
		return q, nil
	}
	if q.Status == models.QuoteEntered {
		return nil, apperrors.NewNotFoundError("quote", id)
	}
	if _, err := s.accessibleSubmission(c, q.SubmissionID); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.NewNotFoundError("quote", id)
		}
		return nil, err
	}
	return q, nil
}

func (s *Server) enterQuote(c *gin.Context) {
	body, err := readValidated(c, validation.SchemaQuoteEntry)
	if err != nil {
		respondError(c, err)
		return
	}
	var in quote.EnterInput
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	q, err := s.services.Quotes.Enter(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, q)
}

func (s *Server) getQuote(c *gin.Context) {
	q, err := s.accessibleQuote(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, q)
}

// postQuote offers the quote to the agency. The first posted quote moves a
// ROUTED submission to QUOTED; later ones leave the active quote alone.
func (s *Server) postQuote(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)

	q, already, err := s.services.Quotes.Post(ctx, c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	out := PostedQuote{Quote: q}
	sub, _, err := s.services.Submissions.AttachQuote(ctx, q.SubmissionID, q.ID, actor)
	switch {
	case err == nil:
		out.Submission = sub
	case apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition):
		s.logger.Debug("posted quote not attached", map[string]interface{}{
			"quoteId":      q.ID,
			"submissionId": q.SubmissionID,
			"reason":       err.Error(),
		})
	default:
		respondError(c, err)
		return
	}
	respondMeta(c, http.StatusOK, out, &Meta{AlreadyApplied: already})
}

func (s *Server) approveQuote(c *gin.Context) {
	q, err := s.services.Quotes.Approve(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, q)
}

func (s *Server) declineQuote(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}
	q, err := s.services.Quotes.Decline(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, q)
}
