// Package renderer produces broker documents through the document rendering
// service and checks the returned bytes are a well-formed PDF.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/core/documents"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Client calls POST /render with the documents.RenderRequest as body and
// expects application/pdf back.
type Client struct {
	http *commonhttp.Client
}

var _ documents.Renderer = (*Client)(nil)

func NewClient(c *commonhttp.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Render(ctx context.Context, req documents.RenderRequest) ([]byte, error) {
	body, err := c.http.PostRaw(ctx, "/render", req)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.DocumentType, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("render %s: empty document", req.DocumentType)
	}
	return body, nil
}

var disableConfigDir sync.Once

// PDFValidator runs pdfcpu's relaxed validation over rendered output.
type PDFValidator struct {
	conf *model.Configuration
}

var _ documents.PDFValidator = (*PDFValidator)(nil)

func NewPDFValidator() *PDFValidator {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFValidator{conf: conf}
}

func (v *PDFValidator) Validate(data []byte) error {
	if len(data) == 0 {
		return errors.New("pdf: empty document")
	}
	if err := api.Validate(bytes.NewReader(data), v.conf); err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	return nil
}
