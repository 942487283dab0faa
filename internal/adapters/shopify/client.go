// Package shopify places subscription orders through the Shopify Admin REST API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
)

const backendName = "shopify"

// Client implements ports.OrderBackend for Shopify
type Client struct {
	httpClient ports.HTTPClient
	logger     ports.Logger
	tokens     *TokenSource
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*response]
	cfg        Config
}

var _ ports.OrderBackend = (*Client)(nil)

type response struct {
	header http.Header
	body   []byte
}

// NewClient creates a Shopify order backend
func NewClient(cfg Config, httpClient ports.HTTPClient, logger ports.Logger) *Client {
	defaults := DefaultConfig(cfg.Store, cfg.APIKey, cfg.APISecret)
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaults.APIVersion
	}
	if cfg.Country == "" {
		cfg.Country = defaults.Country
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = defaults.Timeouts
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		tokens:     NewTokenSource(cfg, httpClient),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        backendName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// rejections are the caller's problem, not the backend's health
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetriable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				ports.String("backend", name),
				ports.String("from", from.String()),
				ports.String("to", to.String()))
		},
	})

	return c
}

// PlaceOrder creates one paid, unfulfilled order for the request
func (c *Client) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	start := time.Now()
	placed, err := c.placeOrder(ctx, req)

	status := "created"
	switch {
	case err == nil:
	case domain.IsRetriable(err):
		status = "transient"
	default:
		status = "rejected"
	}
	observability.RecordBackendOrder(backendName, status, time.Since(start).Seconds())

	return placed, err
}

func (c *Client) placeOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	payload, err := buildOrder(req, c.cfg.Country)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	c.logger.Info("placing shopify order",
		ports.String("subscription_id", req.SubscriptionID),
		ports.Time("shipping_date", req.ShippingDate),
		ports.String("idempotency_key", req.IdempotencyKey))

	resp, err := c.execute(ctx, http.MethodPost, c.apiURL("/orders.json"), body, false)
	if err != nil {
		return nil, err
	}

	var created orderEnvelope
	if err := json.Unmarshal(resp.body, &created); err != nil || created.Order.ID == 0 {
		// the order may exist; reconciliation will pick it up
		return nil, domain.NewDomainError(domain.ErrorCodeBackendTransient, "unreadable order response").
			WithDetail("subscription_id", req.SubscriptionID)
	}

	return &domain.PlacedOrder{
		BackendOrderID:  strconv.FormatInt(created.Order.ID, 10),
		BackendOrderRef: created.Order.Name,
	}, nil
}

// ListOrders pages through orders created at or after since and keeps the
// ones carrying subscription attributes
func (c *Client) ListOrders(ctx context.Context, since time.Time) ([]domain.BackendOrder, error) {
	query := url.Values{}
	query.Set("status", "any")
	query.Set("limit", "250")
	query.Set("created_at_min", since.UTC().Format(time.RFC3339))
	query.Set("fields", "id,name,created_at,note_attributes,shipping_address")
	next := c.apiURL("/orders.json") + "?" + query.Encode()

	orders := make([]domain.BackendOrder, 0)
	for next != "" {
		resp, err := c.execute(ctx, http.MethodGet, next, nil, true)
		if err != nil {
			return nil, err
		}

		var page ordersEnvelope
		if err := json.Unmarshal(resp.body, &page); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeBackendTransient, "decode orders page", err)
		}
		for _, o := range page.Orders {
			if bo, ok := o.toBackendOrder(); ok {
				orders = append(orders, bo)
			}
		}

		next = nextPageURL(resp.header.Get("Link"))
	}
	return orders, nil
}

func (c *Client) apiURL(path string) string {
	return c.cfg.baseURL() + "/admin/api/" + c.cfg.APIVersion + path
}

// execute runs one logical request through the circuit breaker
func (c *Client) execute(ctx context.Context, method, target string, body []byte, idempotent bool) (*response, error) {
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.doWithRetry(ctx, method, target, body, idempotent)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.WrapError(domain.ErrorCodeBackendTransient, "order backend circuit open", err)
	}
	return resp, err
}

// doWithRetry retries throttled and unauthorized responses, which Shopify
// guarantees were not processed. Other failures are retried only for
// idempotent requests, since a lost order response may hide a created order.
func (c *Client) doWithRetry(ctx context.Context, method, target string, body []byte, idempotent bool) (*response, error) {
	ctx, cancel := c.cfg.Timeouts.ExternalAPIContext(ctx)
	defer cancel()

	refreshed := false
	retries := 0
	for {
		resp, status, err := c.do(ctx, method, target, body)
		if err == nil && status >= 200 && status < 300 {
			return resp, nil
		}

		retry := false
		var delay time.Duration
		switch {
		case err != nil:
			retry = idempotent
			delay = c.cfg.Backoff.NextDelay(retries)
		case status == http.StatusUnauthorized && !refreshed && c.cfg.AccessToken == "":
			// a fresh token does not count against MaxRetries
			c.tokens.Invalidate()
			refreshed = true
			continue
		case status == http.StatusTooManyRequests:
			retry = true
			delay = retryAfter(resp.header, c.cfg.Backoff.NextDelay(retries))
		case status >= 500:
			retry = idempotent
			delay = c.cfg.Backoff.NextDelay(retries)
		}

		if err == nil {
			err = statusError(method+" "+stripQuery(target), status, resp.body)
		}
		if !retry || retries >= c.cfg.MaxRetries {
			return nil, err
		}
		retries++

		c.logger.Warn("retrying order backend request",
			ports.String("method", method),
			ports.Int("retry", retries),
			ports.Duration("delay", delay),
			ports.Err(err))

		if err := resilience.Sleep(ctx, delay); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeBackendTransient, "retry aborted", err)
		}
	}
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*response, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, domain.WrapError(domain.ErrorCodeBackendTransient, "rate limiter wait", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	attemptCtx, cancel := c.cfg.Timeouts.RetryAttemptContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrorCodeBackendTransient, "order backend unreachable", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrorCodeBackendTransient, "read response body", err)
	}

	return &response{header: httpResp.Header, body: raw}, httpResp.StatusCode, nil
}

// statusError classifies a non-2xx response. 429 and 5xx are transient.
func statusError(op string, status int, body []byte) error {
	code := domain.ErrorCodeBackendRejected
	if status == http.StatusTooManyRequests || status >= 500 {
		code = domain.ErrorCodeBackendTransient
	}

	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return domain.NewDomainError(code, fmt.Sprintf("%s returned %d", op, status)).
		WithDetail("status", status).
		WithDetail("body", snippet)
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

// nextPageURL extracts the rel="next" target from a Link header
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, s := range segments[1:] {
			if strings.TrimSpace(s) == `rel="next"` {
				isNext = true
			}
		}
		if !isNext {
			continue
		}
		target := strings.TrimSpace(segments[0])
		return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
	}
	return ""
}

func stripQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
