package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHandler_ServeHTTP(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		checks   map[string]Checker
		wantCode int
		wantData map[string]any
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			wantData: map[string]any{"status": "ok"},
		},
		{
			name:     "all healthy",
			checks:   map[string]Checker{"postgres": ok, "redis": ok},
			wantCode: http.StatusOK,
			wantData: map[string]any{"status": "ok", "postgres": "ok", "redis": "ok"},
		},
		{
			name:     "redis down",
			checks:   map[string]Checker{"postgres": ok, "redis": down},
			wantCode: http.StatusServiceUnavailable,
			wantData: map[string]any{"status": "degraded", "postgres": "ok", "redis": "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(newNoopLogger(), tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp response.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantData, resp.Data)
		})
	}
}
