package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without internal",
			err:  New(http.StatusNotFound, "not_found", "Node not found"),
			want: "not_found: Node not found",
		},
		{
			name: "with internal",
			err:  ErrDatabase.WithInternal(errors.New("connection refused")),
			want: "database_error: Database operation failed (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := ErrInternal.WithInternal(inner)
	assert.Equal(t, inner, errors.Unwrap(err))
	assert.True(t, errors.Is(err, inner))
}

func TestError_WithMessage_CopiesNotMutates(t *testing.T) {
	err := ErrNotFound.WithMessage("snapshot not found")
	assert.Equal(t, "snapshot not found", err.Message)
	assert.Equal(t, "Resource not found", ErrNotFound.Message, "sentinel must not be mutated")
	assert.Equal(t, ErrNotFound.HTTPStatus, err.HTTPStatus)
	assert.Equal(t, ErrNotFound.Code, err.Code)
}

func TestError_WithDetails(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]any{"field": "uid"})
	require.NotNil(t, err.Details)
	assert.Equal(t, "uid", err.Details["field"])
	assert.Nil(t, ErrValidation.Details)
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantStatus int
		wantCode   string
	}{
		{"ErrUnauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"ErrInvalidToken", ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{"ErrForbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"ErrNotFound", ErrNotFound, http.StatusNotFound, "not_found"},
		{"ErrConflict", ErrConflict, http.StatusConflict, "conflict"},
		{"ErrBadRequest", ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"ErrValidation", ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
		{"ErrInternal", ErrInternal, http.StatusInternalServerError, "internal_error"},
		{"ErrDatabase", ErrDatabase, http.StatusInternalServerError, "database_error"},
		{"ErrStorageUnavailable", ErrStorageUnavailable, http.StatusServiceUnavailable, "storage_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.wantCode, tt.err.Code)
		})
	}
}

func TestToHTTPError(t *testing.T) {
	status, body := ToHTTPError(ErrConflict.WithMessage("edge exists under another tenant"))
	assert.Equal(t, http.StatusConflict, status)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "conflict", errObj["code"])
	assert.Equal(t, "edge exists under another tenant", errObj["message"])

	status, body = ToHTTPError(errors.New("plain error"))
	assert.Equal(t, http.StatusInternalServerError, status)
	errObj = body["error"].(map[string]any)
	assert.Equal(t, "internal_error", errObj["code"])
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("node", "n:alpha")
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, "node 'n:alpha' not found", err.Message)
}
