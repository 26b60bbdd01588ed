package apperror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "response must have an error object")
	return errObj
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	handler := HTTPErrorHandler(slog.Default())
	c, rec := newTestContext(http.MethodGet)

	handler(ErrNotFound.WithMessage("node 'n:alpha' not found"), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	errObj := decodeErrorBody(t, rec)
	assert.Equal(t, "not_found", errObj["code"])
	assert.Equal(t, "node 'n:alpha' not found", errObj["message"])
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	handler := HTTPErrorHandler(slog.Default())

	tests := []struct {
		status   int
		wantCode string
	}{
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusBadRequest, "bad_request"},
		{http.StatusConflict, "conflict"},
		{http.StatusUnprocessableEntity, "validation_error"},
		{http.StatusServiceUnavailable, "storage_unavailable"},
	}

	for _, tt := range tests {
		c, rec := newTestContext(http.MethodGet)
		handler(echo.NewHTTPError(tt.status, "oops"), c)

		assert.Equal(t, tt.status, rec.Code)
		errObj := decodeErrorBody(t, rec)
		assert.Equal(t, tt.wantCode, errObj["code"])
		assert.Equal(t, "oops", errObj["message"])
	}
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	handler := HTTPErrorHandler(slog.Default())
	c, rec := newTestContext(http.MethodGet)

	handler(assert.AnError, c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := decodeErrorBody(t, rec)
	assert.Equal(t, "internal_error", errObj["code"])
	// Internal detail must not leak to the client
	assert.Equal(t, "An internal error occurred", errObj["message"])
}

func TestHTTPErrorHandler_Head(t *testing.T) {
	handler := HTTPErrorHandler(slog.Default())
	c, rec := newTestContext(http.MethodHead)

	handler(ErrNotFound, c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	handler := HTTPErrorHandler(slog.Default())
	c, rec := newTestContext(http.MethodGet)

	require.NoError(t, c.NoContent(http.StatusOK))
	handler(ErrInternal, c)

	// Handler must not overwrite an already committed response
	assert.Equal(t, http.StatusOK, rec.Code)
}
