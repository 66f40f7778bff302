package errors_test

import (
	"errors"
	"testing"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	err := apperrors.New(apperrors.CodeValidation, "bad field", cause)

	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "bad field")
	assert.Contains(t, err.Error(), "boom")
}

func TestAppErrorIsMatchesOnCode(t *testing.T) {
	a := apperrors.New(apperrors.CodeCircuitOpen, "open", nil)
	b := apperrors.New(apperrors.CodeCircuitOpen, "different message", nil)

	assert.True(t, errors.Is(a, b))
}

func TestCodeExtraction(t *testing.T) {
	err := apperrors.NotFound("missing", nil)

	code, ok := apperrors.Code(err)
	assert.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, code)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := apperrors.Wrap(cause, "dlq write failed")

	assert.ErrorIs(t, err, cause)
}
