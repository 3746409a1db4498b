package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_WrappedLookup(t *testing.T) {
	base := NewConcurrentModificationError("submission", "sub-1")
	wrapped := fmt.Errorf("route submission: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConcurrentModification, got.Code)
	assert.True(t, HasCode(wrapped, ErrCodeConcurrentModification))
	assert.False(t, HasCode(wrapped, ErrCodeNotFound))
	assert.True(t, stderrors.Is(wrapped, &StandardError{Code: ErrCodeConcurrentModification}))
	assert.Equal(t, ErrCodeConcurrentModification, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	plain := stderrors.New("disk on fire")
	n := Normalize(plain)
	assert.Equal(t, ErrCodeInternal, n.Code)
	assert.ErrorIs(t, n, plain)

	gate := NewGateNotSatisfiedError(GateEsign, GatePayment)
	assert.Same(t, gate, Normalize(gate))
}

func TestGateNotSatisfied_Metadata(t *testing.T) {
	err := NewGateNotSatisfiedError(GateEsign, GatePayment)
	assert.Equal(t, []string{"esign", "payment"}, err.Metadata["gates"])
	assert.Contains(t, err.Error(), "esign, payment")
}

func TestCollaboratorError_Unwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewCollaboratorError("renderer", cause)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "renderer", err.Metadata["collaborator"])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeInvalidTransition, http.StatusConflict},
		{ErrCodeConcurrentModification, http.StatusConflict},
		{ErrCodeDocumentAlreadySigned, http.StatusConflict},
		{ErrCodeGateNotSatisfied, http.StatusUnprocessableEntity},
		{ErrCodeAmountMismatch, http.StatusUnprocessableEntity},
		{ErrCodePaymentLocked, http.StatusUnprocessableEntity},
		{ErrCodeInvalidFinanceInput, http.StatusBadRequest},
		{ErrCodeCollaboratorFailed, http.StatusBadGateway},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	stdErr := NewDocumentsNotReadyError([]string{"PROPOSAL"})
	bpmn := ConvertToBPMNError(stdErr)

	assert.Equal(t, "DOCUMENTS_NOT_READY", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "DOCUMENTS_NOT_READY", vars["errorCode"])
	assert.Equal(t, []string{"PROPOSAL"}, vars["missing"])

	assert.Equal(t, 3, ConvertToBPMNError(NewCollaboratorError("storage", stderrors.New("x"))).Retries)
	assert.Equal(t, "INFRASTRUCTURE", GetErrorCategory(ErrCodeDatabaseError))
	assert.Equal(t, "DOCUMENT", GetErrorCategory(ErrCodeInvalidDocumentState))
}
