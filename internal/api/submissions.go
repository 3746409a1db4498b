package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/validation"
	"submission-workflow/internal/core/lifecycle"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type noteRequest struct {
	Text string `json:"text"`
}

type selectQuoteRequest struct {
	QuoteID string `json:"quoteId"`
}

// readValidated reads the body and checks it against a schema.
func readValidated(c *gin.Context, schema string) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable request body")
	}
	if err := validation.Check(schema, body); err != nil {
		return nil, err
	}
	return body, nil
}

func bindJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// accessibleSubmission loads a submission the actor may see. Agencies get
// NOT_FOUND for other agencies' submissions.
func (s *Server) accessibleSubmission(c *gin.Context, id string) (*models.Submission, error) {
	sub, err := s.services.Submissions.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !actorFrom(c).CanAccess(sub.AgencyID) {
		return nil, apperrors.NewNotFoundError("submission", id)
	}
	return sub, nil
}

func (s *Server) createSubmission(c *gin.Context) {
	body, err := readValidated(c, validation.SchemaSubmissionCreate)
	if err != nil {
		respondError(c, err)
		return
	}
	var in lifecycle.CreateInput
	if err := json.Unmarshal(body, &in); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	sub, err := s.services.Submissions.Create(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, sub)
}

func (s *Server) getSubmission(c *gin.Context) {
	sub, err := s.accessibleSubmission(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) listSubmissions(c *gin.Context) {
	filter := models.SubmissionFilter{
		AgencyID: c.Query("agencyId"),
		Status:   models.SubmissionStatus(strings.ToUpper(c.Query("status"))),
		Query:    c.Query("q"),
		Size:     defaultPageSize,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(c, apperrors.NewValidationError("unknown status "+c.Query("status")))
		return
	}
	if v := c.Query("from"); v != "" {
		from, err := strconv.Atoi(v)
		if err != nil || from < 0 {
			respondError(c, apperrors.NewValidationError("from must be a non-negative integer"))
			return
		}
		filter.From = from
	}
	if v := c.Query("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			respondError(c, apperrors.NewValidationError("size must be a positive integer"))
			return
		}
		filter.Size = min(size, maxPageSize)
	}

	actor := actorFrom(c)
	if actor.IsAgency() {
		filter.AgencyID = actor.AgencyID
	}

	page, err := s.services.Submissions.Search(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMeta(c, http.StatusOK, page.Submissions, &Meta{Total: &page.Total})
}

func (s *Server) listSubmissionQuotes(c *gin.Context) {
	sub, err := s.accessibleSubmission(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	quotes, err := s.services.Quotes.ListBySubmission(c.Request.Context(), sub.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if actorFrom(c).IsAgency() {
		// entered quotes are not visible until posted
		visible := quotes[:0]
		for _, q := range quotes {
			if q.Status != models.QuoteEntered {
				visible = append(visible, q)
			}
		}
		quotes = visible
	}
	respond(c, http.StatusOK, quotes)
}

func (s *Server) routeSubmission(c *gin.Context) {
	sub, err := s.services.Submissions.Route(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) selectQuote(c *gin.Context) {
	var req selectQuoteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.QuoteID == "" {
		respondError(c, apperrors.NewValidationError("quoteId is required"))
		return
	}
	if _, err := s.accessibleSubmission(c, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	sub, err := s.services.Submissions.SelectQuote(c.Request.Context(), c.Param("id"), req.QuoteID, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) requestBind(c *gin.Context) {
	if _, err := s.accessibleSubmission(c, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	sub, err := s.services.Submissions.RequestBind(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) approveBind(c *gin.Context) {
	sub, err := s.services.Submissions.ApproveBind(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) declineSubmission(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}
	sub, err := s.services.Submissions.Decline(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) addNote(c *gin.Context) {
	var req noteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	sub, err := s.services.Submissions.AddNote(c.Request.Context(), c.Param("id"), req.Text, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, sub)
}

func (s *Server) listDocuments(c *gin.Context) {
	sub, err := s.accessibleSubmission(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	docs, err := s.services.Documents.List(c.Request.Context(), sub.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, docs)
}

func (s *Server) generateDocument(c *gin.Context) {
	docType := models.DocumentType(strings.ToUpper(strings.ReplaceAll(c.Param("type"), "-", "_")))
	record, err := s.services.Documents.Generate(c.Request.Context(), c.Param("id"), docType, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, record)
}

func (s *Server) sendForSignature(c *gin.Context) {
	ref, err := s.services.Signatures.SendForSignature(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, ref)
}
