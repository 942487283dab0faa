package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// TokenSource exchanges app credentials for an Admin API access token and
// caches it for TokenTTL
type TokenSource struct {
	httpClient ports.HTTPClient
	now        func() time.Time
	cfg        Config
	token      string
	expiry     time.Time
	mu         sync.Mutex
}

// NewTokenSource creates a token source
func NewTokenSource(cfg Config, httpClient ports.HTTPClient) *TokenSource {
	return &TokenSource{
		cfg:        cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or expired
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if ts.cfg.AccessToken != "" {
		return ts.cfg.AccessToken, nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiry) {
		return ts.token, nil
	}

	body, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     ts.cfg.APIKey,
		ClientSecret: ts.cfg.APISecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		ts.cfg.baseURL()+"/admin/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeBackendTransient, "token request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeBackendTransient, "read token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("token exchange", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil || tr.AccessToken == "" {
		return "", domain.NewDomainError(domain.ErrorCodeBackendRejected, "token response missing access_token")
	}

	ts.token = tr.AccessToken
	ts.expiry = ts.now().Add(TokenTTL)
	return ts.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiry = time.Time{}
}
