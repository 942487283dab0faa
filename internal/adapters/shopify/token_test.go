package shopify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

func TestTokenSource_CachesUntilExpiry(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/oauth/access_token", r.URL.Path)

		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client_credentials", req.GrantType)
		assert.Equal(t, "key", req.ClientID)
		assert.Equal(t, "secret", req.ClientSecret)

		if exchanges.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"access_token":"first"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"second"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AccessToken = ""
	ts := NewTokenSource(cfg, http.DefaultClient)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	now = now.Add(TokenTTL - time.Minute)
	tok, err = ts.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)
	assert.Equal(t, int32(1), exchanges.Load())

	now = now.Add(2 * time.Minute)
	tok, err = ts.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestTokenSource_StaticTokenSkipsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected token exchange")
	}))
	defer srv.Close()

	ts := NewTokenSource(testConfig(srv.URL), http.DefaultClient)
	tok, err := ts.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "static-token", tok)
}

func TestTokenSource_InvalidateForcesExchange(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AccessToken = ""
	ts := NewTokenSource(cfg, http.DefaultClient)

	_, err := ts.Token(t.Context())
	require.NoError(t, err)
	ts.Invalidate()
	_, err = ts.Token(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int32(2), exchanges.Load())
}

func TestTokenSource_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode domain.ErrorCode
	}{
		{name: "bad credentials", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`, wantCode: domain.ErrorCodeBackendRejected},
		{name: "shopify down", status: http.StatusServiceUnavailable, body: ``, wantCode: domain.ErrorCodeBackendTransient},
		{name: "missing token", status: http.StatusOK, body: `{}`, wantCode: domain.ErrorCodeBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.AccessToken = ""

			_, err := NewTokenSource(cfg, http.DefaultClient).Token(t.Context())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.GetErrorCode(err))
		})
	}
}
