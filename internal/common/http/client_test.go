package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"submission-workflow/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_SendsKeyAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "x", in["name"])

		_, _ = w.Write([]byte(`{"id":"t-1"}`))
	}))
	defer srv.Close()

	c := NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL + "/", APIKey: "k-1", Timeout: 2000})
	var out struct {
		ID string `json:"id"`
	}
	err := c.PostJSON(context.Background(), "/v1/things", map[string]string{"Idempotency-Key": "idem-1"},
		map[string]string{"name": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "t-1", out.ID)
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL})
	err := c.PostJSON(context.Background(), "/", nil, struct{}{}, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestPostRaw_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	body, err := NewServiceClient(config.ServiceEndpoint{BaseURL: srv.URL}).PostRaw(context.Background(), "/render", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))
}
