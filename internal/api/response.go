package api

import (
	"net/http"
	"time"

	apperrors "submission-workflow/internal/common/errors"

	"github.com/gin-gonic/gin"
)

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	Total     *int64    `json:"total,omitempty"`
	Cached    *bool     `json:"cached,omitempty"`
	// AlreadyApplied marks an idempotent call that changed nothing.
	AlreadyApplied bool `json:"alreadyApplied,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	respondMeta(c, status, data, &Meta{})
}

func respondMeta(c *gin.Context, status int, data interface{}, meta *Meta) {
	meta.Timestamp = time.Now().UTC()
	meta.RequestID = c.GetString(requestIDKey)
	c.JSON(status, SuccessResponse{Success: true, Data: data, Meta: meta})
}

// respondError writes the error envelope. Internal errors hide their cause.
func respondError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	body := APIError{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
		Meta:    stdErr.Metadata,
	}
	if status >= http.StatusInternalServerError && stdErr.Code == apperrors.ErrCodeInternal {
		body.Details = ""
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Error: body})
}
