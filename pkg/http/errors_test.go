package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { pkghttp.WriteBadRequest(w, "msg") }, http.StatusBadRequest, "bad_request"},
		{"unauthorized", func(w http.ResponseWriter) { pkghttp.WriteUnauthorized(w, "msg") }, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", func(w http.ResponseWriter) { pkghttp.WriteForbidden(w, "msg") }, http.StatusForbidden, "forbidden"},
		{"not found", func(w http.ResponseWriter) { pkghttp.WriteNotFound(w, "msg") }, http.StatusNotFound, "not_found"},
		{"conflict", func(w http.ResponseWriter) { pkghttp.WriteConflict(w, "msg") }, http.StatusConflict, "conflict"},
		{"too many requests", func(w http.ResponseWriter) { pkghttp.WriteTooManyRequests(w, "msg") }, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"internal", func(w http.ResponseWriter) { pkghttp.WriteInternalError(w, "msg") }, http.StatusInternalServerError, "internal_error"},
		{"custom", func(w http.ResponseWriter) { pkghttp.WriteError(w, http.StatusTeapot, "teapot", "msg") }, http.StatusTeapot, "teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, "msg", resp.Message)
			assert.Empty(t, resp.Details)
			assert.NotContains(t, w.Body.String(), "details")
		})
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", "Please check your input and try again.", "name is required")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"error":"validation_error","message":"Please check your input and try again.","details":"name is required"}`,
		w.Body.String())
}

func TestWriteRateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	pkghttp.WriteRateLimited(w, "Too many failed attempts. Please try again in 30 seconds.", 30, &until)

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp["error"])
	assert.Equal(t, "Too many failed attempts. Please try again in 30 seconds.", resp["message"])
	assert.Equal(t, float64(30), resp["remaining_seconds"])
	assert.Equal(t, "2026-01-02T03:04:05Z", resp["locked_until"])
}

func TestWriteRateLimited_NoCountdown(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteRateLimited(w, "Too many requests", 0, nil)

	assert.Equal(t, 429, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "locked_until")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, 201, map[string]string{"id": "abc"})

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"abc"}`, w.Body.String())
}
