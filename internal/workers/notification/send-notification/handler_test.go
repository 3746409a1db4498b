// internal/workers/notification/send-notification/handler_test.go
package sendnotification

import (
	"context"
	"errors"
	"testing"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"
	"submission-workflow/internal/notification"
	"submission-workflow/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	args := m.Called(ctx, to, subject, body)
	return args.String(0), args.Error(1)
}

func newHandler(t *testing.T, email notification.EmailSender) *Handler {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.CreateSubmission(context.Background(), &models.Submission{
		ID:            "sub-1",
		AgencyID:      "agency-1",
		Status:        models.SubmissionQuoted,
		ClientContact: models.ClientContact{Name: "Jane", Email: "jane@example.com"},
	}))
	log := logger.NewTestLogger(t)
	n := notification.NewNotifier(notification.Config{EmailEnabled: true}, st, email, nil, log)
	return NewHandler(LoadConfig(), n, log)
}

func TestExecute_SendsTemplatedEmail(t *testing.T) {
	email := new(MockEmailSender)
	email.On("SendEmail", mock.Anything, "jane@example.com", mock.AnythingOfType("string"), mock.MatchedBy(func(body string) bool {
		return body != ""
	})).Return("msg-1", nil).Once()

	out, err := newHandler(t, email).Execute(context.Background(), &Input{
		EventType:    string(models.EventSubmissionQuoted),
		SubmissionID: "sub-1",
		QuoteID:      "q-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, out.Status)
	assert.NotEmpty(t, out.NotificationID)
	email.AssertExpectations(t)
}

func TestExecute_UnknownEventIsDisabled(t *testing.T) {
	email := new(MockEmailSender)
	out, err := newHandler(t, email).Execute(context.Background(), &Input{
		EventType:    "quote.posted",
		SubmissionID: "sub-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisabled, out.Status)
	email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_ChannelFailureIsRetryable(t *testing.T) {
	email := new(MockEmailSender)
	email.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("throttled"))

	_, err := newHandler(t, email).Execute(context.Background(), &Input{
		EventType:    string(models.EventSubmissionBound),
		SubmissionID: "sub-1",
	})
	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeCollaboratorFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestExecute_RequiresEventAndSubmission(t *testing.T) {
	h := newHandler(t, new(MockEmailSender))
	for _, in := range []Input{{SubmissionID: "sub-1"}, {EventType: "submission.bound"}} {
		_, err := h.Execute(context.Background(), &in)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
	}
}
