package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "submission-workflow/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{config: &ClientConfig{
		RequestTimeout: time.Second,
		RetryConfig:    &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}}
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, IsRetryableError(errors.New("context deadline exceeded")))
	assert.False(t, IsRetryableError(errors.New("rpc error: code = InvalidArgument")))
}

func TestExecuteWithRetry_RetriesTransient(t *testing.T) {
	attempts := 0
	out, err := testClient().ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("unavailable")
		}
		return "ok", nil
	}, "publish")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithRetry_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
		check    func(t *testing.T, err error)
	}{
		{"transient exhausts retries", errors.New("connection reset by peer"), 3, func(t *testing.T, err error) {
			stdErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeCollaboratorFailed, stdErr.Code)
			assert.True(t, stdErr.Retryable)
		}},
		{"permanent fails fast", errors.New("invalid argument"), 1, func(t *testing.T, err error) {
			stdErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.False(t, stdErr.Retryable)
		}},
		{"duplicate message is success", errors.New("message with id already exists"), 1, func(t *testing.T, err error) {
			assert.NoError(t, err)
		}},
		{"not found", errors.New("process instance not found"), 1, func(t *testing.T, err error) {
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			_, err := testClient().ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
				attempts++
				return nil, tt.err
			}, "op")
			assert.Equal(t, tt.attempts, attempts)
			tt.check(t, err)
		})
	}
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	c := testClient()
	c.config.RetryConfig.BaseDelay = time.Second
	c.config.RetryConfig.MaxDelay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
		return nil, errors.New("timeout")
	}, "op")
	assert.ErrorIs(t, err, context.Canceled)
}
