package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, handler http.HandlerFunc, publicBase string) *MinioStorage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewMinioStorage(config.MinioConfig{
		Endpoint:      srv.URL,
		AccessKey:     "minio",
		SecretKey:     "minio123",
		Bucket:        "docs",
		Region:        "us-east-1",
		PublicBaseURL: publicBase,
	}, logger.NewTestLogger(t))
	require.NoError(t, err)
	return s
}

func TestUpload_PutsObjectAndReturnsURL(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	s := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			gotType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}, "https://files.example.com/")

	url, err := s.Upload(context.Background(), "sub-1/proposal-1a2b3c4d.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, "/docs/sub-1/proposal-1a2b3c4d.pdf", gotPath)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF", string(gotBody))
	assert.Equal(t, "https://files.example.com/docs/sub-1/proposal-1a2b3c4d.pdf", url)
}

func TestUpload_ServerError(t *testing.T) {
	s := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, "")

	_, err := s.Upload(context.Background(), "sub-1/x.pdf", "application/pdf", []byte("%PDF"))
	assert.Error(t, err)
}

func TestObjectURL_FallsBackToEndpoint(t *testing.T) {
	s := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {}, "")
	assert.Contains(t, s.ObjectURL("sub 1/a.pdf"), "/docs/sub%201/a.pdf")
	assert.Contains(t, s.ObjectURL("a.pdf"), "http://127.0.0.1")
}
