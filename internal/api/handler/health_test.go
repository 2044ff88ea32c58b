package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
)

func TestHealthHandler_Check(t *testing.T) {
	ok := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("dial tcp: connection refused") })

	tests := []struct {
		name           string
		components     map[string]Pinger
		wantStatus     int
		wantBody       string
		wantComponents map[string]string
	}{
		{"依存なし", nil, http.StatusOK, "ok", nil},
		{"全て正常", map[string]Pinger{"postgres": ok, "redis": ok}, http.StatusOK, "ok",
			map[string]string{"postgres": "ok", "redis": "ok"}},
		{"一部停止", map[string]Pinger{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "degraded",
			map[string]string{"postgres": "ok", "redis": "unavailable"}},
		{"nilは無視する", map[string]Pinger{"redis": nil}, http.StatusOK, "ok", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTestEcho()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := NewHealthHandler(clock.NewFixed(handlerNow), tt.components)

			require.NoError(t, h.Check(c))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, "2026-03-02T08:00:00Z", resp.Timestamp)
			assert.Equal(t, tt.wantComponents, resp.Components)
		})
	}
}
