// Package payments is the client of the payment capture service.
package payments

import (
	"context"
	"errors"
	"fmt"

	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/core/payment"
)

type captureResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type Client struct {
	http *commonhttp.Client
}

var _ payment.Capturer = (*Client)(nil)

func NewClient(c *commonhttp.Client) *Client {
	return &Client{http: c}
}

// Capture charges the payment method. The request's idempotency key is
// forwarded so the processor collapses retries.
func (c *Client) Capture(ctx context.Context, req payment.CaptureRequest) (string, error) {
	var resp captureResponse
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if err := c.http.PostJSON(ctx, "/captures", headers, req, &resp); err != nil {
		return "", fmt.Errorf("capture payment: %w", err)
	}
	if resp.Status != "" && resp.Status != "CAPTURED" {
		return "", fmt.Errorf("capture payment: status %s", resp.Status)
	}
	if resp.Reference == "" {
		return "", errors.New("capture payment: processor returned no reference")
	}
	return resp.Reference, nil
}
