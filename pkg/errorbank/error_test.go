package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   codes.Code
	}{
		{"validation", Validation("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"bad request", BadRequest("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"unauthorized", Unauthorized("who"), http.StatusUnauthorized, codes.Unauthenticated},
		{"conflict", Conflict("dup"), http.StatusConflict, codes.AlreadyExists},
		{"not found", NotFound("gone"), http.StatusNotFound, codes.NotFound},
		{"unprocessable", Unprocessable("nope"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{"internal", Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.code, tt.err.GRPCCode())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := From(cause)

	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, From(nil))
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	inner := NotFound("order not found with id: 42")
	wrapped := fmt.Errorf("lookup: %w", inner)

	assert.Same(t, inner, From(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Internal("failed to load order", WithCause(errors.New("timeout")), WithDetail("id", "abc"))

	assert.Equal(t, "failed to load order: timeout", err.Error())
	assert.Equal(t, "failed to load order", err.Message())
	assert.Equal(t, map[string]any{"id": "abc"}, err.Details())
}
