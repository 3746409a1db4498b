// internal/workers/documents/generate-document/handler_test.go
package generatedocument

import (
	"context"
	"errors"
	"testing"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, submissionID string, docType models.DocumentType, actor models.Actor) (*models.DocumentRecord, error) {
	args := m.Called(ctx, submissionID, docType, actor)
	if r, ok := args.Get(0).(*models.DocumentRecord); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func record(t models.DocumentType, name string) *models.DocumentRecord {
	return &models.DocumentRecord{
		DocumentType:    t,
		SignatureStatus: models.SignatureGenerated,
		FileName:        name,
		URL:             "https://files.example.test/sub-1/" + name,
		Generation:      1,
	}
}

func TestExecute_GeneratesEachTypeOnce(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, "sub-1", models.DocumentProposal, models.SystemActor(TaskType)).
		Return(record(models.DocumentProposal, "proposal-1.pdf"), nil).Once()
	gen.On("Generate", mock.Anything, "sub-1", models.DocumentCarrierForm, mock.Anything).
		Return(record(models.DocumentCarrierForm, "carrier_form-1.pdf"), nil).Once()

	h := NewHandler(LoadConfig(), gen, logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{
		SubmissionID:  "sub-1",
		DocumentType:  "proposal",
		DocumentTypes: []string{"CARRIER_FORM", "PROPOSAL"},
	})
	require.NoError(t, err)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, models.DocumentProposal, out.Documents[0].DocumentType)
	assert.Equal(t, "carrier_form-1.pdf", out.Documents[1].FileName)
	gen.AssertExpectations(t)
}

func TestExecute_InputValidation(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{"no submission", Input{DocumentType: "PROPOSAL"}},
		{"no document type", Input{SubmissionID: "sub-1"}},
		{"unknown type", Input{SubmissionID: "sub-1", DocumentTypes: []string{"INVOICE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			_, err := NewHandler(LoadConfig(), gen, logger.NewTestLogger(t)).Execute(context.Background(), &tt.input)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed), "got %v", err)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, "sub-1", models.DocumentProposal, mock.Anything).
		Return(nil, apperrors.NewCollaboratorError("renderer", errors.New("timeout")))

	h := NewHandler(LoadConfig(), gen, logger.NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{
		SubmissionID:  "sub-1",
		DocumentTypes: []string{"PROPOSAL", "CARRIER_FORM"},
	})
	stdErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.True(t, stdErr.Retryable)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}
