package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareUnderTest(t *testing.T) (*ErrorMiddleware, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewErrorMiddleware(NewErrorHandler(logger, false), logger), &buf
}

func TestErrorMiddleware_PanicRecovery(t *testing.T) {
	tests := []struct {
		name    string
		panicWith interface{}
	}{
		{name: "panics with string", panicWith: "boom"},
		{name: "panics with error", panicWith: assert.AnError},
		{name: "panics with integer", panicWith: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, buf := newMiddlewareUnderTest(t)
			handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.panicWith)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc/variance", nil))

			assert.Equal(t, http.StatusInternalServerError, w.Code)

			var problem ProblemDetails
			require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
			assert.Equal(t, TypeInternal, problem.Type)
			assert.Equal(t, "Internal Server Error", problem.Title)

			assert.Contains(t, buf.String(), "panic recovered")
		})
	}
}

func TestErrorMiddleware_PassesThroughBody(t *testing.T) {
	mw, _ := newMiddlewareUnderTest(t)

	var seen string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"old_file":"a.xlsx"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"old_file":"a.xlsx"}`, seen)
}

func TestErrorMiddleware_LogsFailedRequestBody(t *testing.T) {
	mw, buf := newMiddlewareUnderTest(t)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
	}))

	body := `{"line_item":"Revenue","token":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/sessions/abc/drill-down", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	logged := buf.String()
	assert.Contains(t, logged, "http request")
	assert.Contains(t, logged, "request_body")
	assert.Contains(t, logged, "Revenue")
	assert.Contains(t, logged, "[REDACTED]")
	assert.NotContains(t, logged, "hunter2")
	assert.Contains(t, logged, `"level":"WARN"`)
}

func TestErrorMiddleware_SuccessLogsNoBody(t *testing.T) {
	mw, buf := newMiddlewareUnderTest(t)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"old_file":"a.xlsx"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	logged := buf.String()
	assert.Contains(t, logged, "http request")
	assert.NotContains(t, logged, "request_body")
	assert.Contains(t, logged, `"level":"INFO"`)
}

func TestSanitizeRequestBody(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  []string
		avoid []string
	}{
		{
			name:  "redacts credential fields",
			body:  `{"api_key":"k-123","period":"Q1 2024"}`,
			want:  []string{"[REDACTED]", "Q1 2024"},
			avoid: []string{"k-123"},
		},
		{
			name: "non-json returned unchanged",
			body: "old=a.xlsx&new=b.xlsx",
			want: []string{"old=a.xlsx&new=b.xlsx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeRequestBody(tt.body)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, a := range tt.avoid {
				assert.NotContains(t, got, a)
			}
		})
	}
}
