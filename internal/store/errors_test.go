package store

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrInvalidInput.WithCause(cause)

	assert.Equal(t, http.StatusBadRequest, err.HTTPCode())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_WithMessage(t *testing.T) {
	err := ErrNotFound.WithMessage("trainer not found")

	assert.Equal(t, "trainer not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPCode())
}

func TestSentinels_WrapWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("put engagement: %w", ErrAlreadyExists)
	assert.ErrorIs(t, wrapped, ErrAlreadyExists)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestError_IsMatchesMessageVariants(t *testing.T) {
	err := fmt.Errorf("get post: %w", ErrNotFound.WithMessage("post not found"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHelpers(t *testing.T) {
	notFound := NotFound("trainer")
	assert.Equal(t, "trainer not found", notFound.Error())
	assert.ErrorIs(t, notFound, ErrNotFound)

	dup := Duplicate("user")
	assert.Equal(t, http.StatusConflict, dup.HTTPCode())
	assert.ErrorIs(t, dup, ErrAlreadyExists)
}
