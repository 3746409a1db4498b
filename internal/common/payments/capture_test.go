package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"submission-workflow/internal/common/config"
	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/core/payment"
	"submission-workflow/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, body string) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captures", r.URL.Path)
		assert.Equal(t, "pay:q-1", r.Header.Get("Idempotency-Key"))

		var req payment.CaptureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, decimal.RequireFromString("1234.50").Equal(req.AmountUSD))
		assert.Equal(t, models.PaymentFull, req.PaymentType)

		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(commonhttp.NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL}))
}

func captureRequest() payment.CaptureRequest {
	return payment.CaptureRequest{
		IdempotencyKey: "pay:q-1",
		QuoteID:        "q-1",
		PaymentType:    models.PaymentFull,
		AmountUSD:      decimal.RequireFromString("1234.50"),
		PaymentMethod:  "card",
	}
}

func TestCapture(t *testing.T) {
	ref, err := newClient(t, `{"reference":"ch_123","status":"CAPTURED"}`).Capture(context.Background(), captureRequest())
	require.NoError(t, err)
	assert.Equal(t, "ch_123", ref)
}

func TestCapture_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"declined", `{"reference":"ch_1","status":"DECLINED"}`},
		{"no reference", `{"status":"CAPTURED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(t, tt.body).Capture(context.Background(), captureRequest())
			assert.Error(t, err)
		})
	}
}
