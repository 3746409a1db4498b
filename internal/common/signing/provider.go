// Package signing is the client of the e-signature provider.
package signing

import (
	"context"
	"errors"
	"fmt"

	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/models"
)

type Client struct {
	http *commonhttp.Client
}

var _ esign.Provider = (*Client)(nil)

func NewClient(c *commonhttp.Client) *Client {
	return &Client{http: c}
}

// CreateEnvelope opens one envelope covering every document of the request.
// The submission ID is sent as the idempotency key so a retried send does
// not produce a second envelope on the provider side.
func (c *Client) CreateEnvelope(ctx context.Context, req esign.EnvelopeRequest) (*models.EnvelopeRef, error) {
	if len(req.Documents) == 0 {
		return nil, errors.New("envelope has no documents")
	}
	var ref models.EnvelopeRef
	headers := map[string]string{"Idempotency-Key": "envelope:" + req.SubmissionID}
	if err := c.http.PostJSON(ctx, "/envelopes", headers, req, &ref); err != nil {
		return nil, fmt.Errorf("create envelope: %w", err)
	}
	if ref.EnvelopeID == "" {
		return nil, errors.New("create envelope: provider returned no envelope id")
	}
	return &ref, nil
}
