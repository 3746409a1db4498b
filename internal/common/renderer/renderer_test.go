package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"submission-workflow/internal/common/config"
	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/core/documents"
	"submission-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_PostsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render", r.URL.Path)
		var req documents.RenderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.DocumentProposal, req.DocumentType)
		assert.Equal(t, "sub-1", req.Submission.ID)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 body"))
	}))
	defer srv.Close()

	c := NewClient(commonhttp.NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL}))
	data, err := c.Render(context.Background(), documents.RenderRequest{
		DocumentType: models.DocumentProposal,
		Submission:   &models.Submission{ID: "sub-1"},
		Quote:        &models.Quote{ID: "q-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(data))
}

func TestRender_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"empty body", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(commonhttp.NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL}))
			_, err := c.Render(context.Background(), documents.RenderRequest{DocumentType: models.DocumentCarrierForm})
			assert.Error(t, err)
		})
	}
}

func TestPDFValidator_RejectsGarbage(t *testing.T) {
	v := NewPDFValidator()
	assert.Error(t, v.Validate(nil))
	assert.Error(t, v.Validate([]byte("this is not a pdf document")))
}
