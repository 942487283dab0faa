package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		db       Pinger
		extra    map[string]Pinger
		status   string
		expected map[string]string
	}{
		{
			name:     "no database",
			status:   "healthy",
			expected: map[string]string{"database": "not configured"},
		},
		{
			name:     "database up",
			db:       ok,
			status:   "healthy",
			expected: map[string]string{"database": "healthy"},
		},
		{
			name:   "redis down",
			db:     ok,
			extra:  map[string]Pinger{"redis": down},
			status: "unhealthy",
			expected: map[string]string{
				"database": "healthy",
				"redis":    "unhealthy: connection refused",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(tt.db)
			for name, p := range tt.extra {
				h.Register(name, p)
			}

			got := h.Check(context.Background())

			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.expected, got.Checks)
		})
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	h := NewHealthChecker(PingFunc(func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
}
