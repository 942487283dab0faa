package shopify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/pkg/resilience"
)

type noBackoff struct{}

func (noBackoff) NextDelay(int) time.Duration { return 0 }

func testConfig(baseURL string) Config {
	cfg := DefaultConfig("test.myshopify.com", "key", "secret")
	cfg.BaseURL = baseURL
	cfg.AccessToken = "static-token"
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	cfg.Backoff = noBackoff{}
	cfg.Timeouts = resilience.TestTimeoutConfig()
	return cfg
}

func newTestClient(cfg Config) *Client {
	return NewClient(cfg, http.DefaultClient, ports.NopLogger{})
}

func orderRequest() *domain.OrderRequest {
	shipping := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	return &domain.OrderRequest{
		ShippingDate:   shipping,
		SubscriptionID: "sub-1",
		Product:        "Milk 1L",
		VariantID:      "4455",
		DeliveryDays:   "Mon,Thu",
		IdempotencyKey: domain.OrderIdempotencyKey("sub-1", shipping),
		Quantity:       2,
		Customer: domain.Customer{
			ID:      "cust-1",
			Name:    "Asha Rao",
			Email:   "asha@example.com",
			Contact: "9999999999",
		},
		Address: domain.Address{
			Name:    "Asha Rao",
			Line1:   "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			Pincode: "560001",
		},
	}
}

func writeCreated(w http.ResponseWriter, id int64, name string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"order":{"id":%d,"name":%q}}`, id, name)
}

func TestPlaceOrder_SendsSubscriptionPayload(t *testing.T) {
	var got orderEnvelope
	var token string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/"+DefaultAPIVersion+"/orders.json", r.URL.Path)
		token = r.Header.Get("X-Shopify-Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCreated(w, 5001, "#1001")
	}))
	defer srv.Close()

	placed, err := newTestClient(testConfig(srv.URL)).PlaceOrder(t.Context(), orderRequest())
	require.NoError(t, err)

	assert.Equal(t, "5001", placed.BackendOrderID)
	assert.Equal(t, "#1001", placed.BackendOrderRef)
	assert.Equal(t, "static-token", token)

	assert.Equal(t, "paid", got.Order.FinancialStatus)
	require.Len(t, got.Order.LineItems, 1)
	assert.Equal(t, int64(4455), got.Order.LineItems[0].VariantID)
	assert.Equal(t, 2, got.Order.LineItems[0].Quantity)
	assert.Equal(t, "sub-1", got.Order.attribute(attrSubscriptionID))
	assert.Equal(t, "2026-03-05T00:00:00.000Z", got.Order.attribute(attrShippingDate))
	assert.Equal(t, "Mon,Thu", got.Order.attribute(attrFrequency))
	assert.Equal(t, "sub-sub-1-2026-03-05", got.Order.attribute(attrIdempotencyKey))
	require.NotNil(t, got.Order.ShippingAddress)
	assert.Equal(t, "9999999999", got.Order.ShippingAddress.Phone)
	assert.Equal(t, "India", got.Order.ShippingAddress.Country)
	assert.Equal(t, "Asha", got.Order.Customer.FirstName)
	assert.Equal(t, "Rao", got.Order.Customer.LastName)
}

func TestPlaceOrder_NonNumericVariantRejectedWithoutCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	req := orderRequest()
	req.VariantID = "gid://shopify/ProductVariant/x"

	_, err := newTestClient(testConfig(srv.URL)).PlaceOrder(t.Context(), req)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeBackendRejected))
	assert.Zero(t, calls.Load())
}

func TestPlaceOrder_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantCode  domain.ErrorCode
	}{
		{
			name:      "throttled then created",
			statuses:  []int{http.StatusTooManyRequests, http.StatusCreated},
			wantCalls: 2,
		},
		{
			name:      "throttled past retry limit",
			statuses:  []int{429, 429, 429, 429, 429},
			wantCalls: 4,
			wantCode:  domain.ErrorCodeBackendTransient,
		},
		{
			name:      "validation error is not retried",
			statuses:  []int{http.StatusUnprocessableEntity},
			wantCalls: 1,
			wantCode:  domain.ErrorCodeBackendRejected,
		},
		{
			name:      "server error on create is not retried",
			statuses:  []int{http.StatusInternalServerError, http.StatusCreated},
			wantCalls: 1,
			wantCode:  domain.ErrorCodeBackendTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				status := tt.statuses[len(tt.statuses)-1]
				if n < len(tt.statuses) {
					status = tt.statuses[n]
				}
				if status == http.StatusCreated {
					writeCreated(w, 7, "#7")
					return
				}
				if status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "0")
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"errors":"nope"}`))
			}))
			defer srv.Close()

			placed, err := newTestClient(testConfig(srv.URL)).PlaceOrder(t.Context(), orderRequest())

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "7", placed.BackendOrderID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.GetErrorCode(err))
			assert.Nil(t, placed)
		})
	}
}

func TestPlaceOrder_RefreshesTokenOnUnauthorized(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/oauth/access_token" {
			n := exchanges.Add(1)
			fmt.Fprintf(w, `{"access_token":"token-%d"}`, n)
			return
		}
		if r.Header.Get("X-Shopify-Access-Token") == "token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeCreated(w, 9, "#9")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AccessToken = ""
	cfg.MaxRetries = 0

	placed, err := newTestClient(cfg).PlaceOrder(t.Context(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, "9", placed.BackendOrderID)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestPlaceOrder_UnauthorizedTwiceIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/oauth/access_token" {
			_, _ = w.Write([]byte(`{"access_token":"revoked"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AccessToken = ""

	_, err := newTestClient(cfg).PlaceOrder(t.Context(), orderRequest())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeBackendRejected))
}

func TestPlaceOrder_CircuitOpensAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	client := newTestClient(cfg)

	for i := 0; i < 2; i++ {
		_, err := client.PlaceOrder(t.Context(), orderRequest())
		require.Error(t, err)
	}

	_, err := client.PlaceOrder(t.Context(), orderRequest())
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPlaceOrder_RejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 1
	client := newTestClient(cfg)

	for i := 0; i < 3; i++ {
		_, err := client.PlaceOrder(t.Context(), orderRequest())
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeBackendRejected))
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestListOrders_FollowsPaginationAndSkipsForeignOrders(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var srvURL string
	var pages atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		pages.Add(1)
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page_info") == "" {
			assert.Equal(t, "2026-03-01T00:00:00Z", r.URL.Query().Get("created_at_min"))
			assert.Equal(t, "any", r.URL.Query().Get("status"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/%s/orders.json?limit=250&page_info=p2>; rel="next"`, srvURL, DefaultAPIVersion))
			_, _ = w.Write([]byte(`{"orders":[
				{"id":1,"name":"#1","created_at":"2026-03-02T10:00:00+05:30",
				 "note_attributes":[{"name":"SubscriptionId","value":"sub-1"},{"name":"ShippingDate","value":"2026-03-05T00:00:00.000Z"}],
				 "shipping_address":{"first_name":"Asha","city":"Bengaluru","zip":"560001"}},
				{"id":2,"name":"#2","note_attributes":[]}
			]}`))
			return
		}

		_, _ = w.Write([]byte(`{"orders":[
			{"id":3,"name":"#3","note_attributes":[{"name":"SubscriptionId","value":"sub-2"},{"name":"ShippingDate","value":"2026-03-09T00:00:00.000Z"}]}
		]}`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	orders, err := newTestClient(testConfig(srv.URL)).ListOrders(t.Context(), since)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int32(2), pages.Load())

	assert.Equal(t, "1", orders[0].BackendOrderID)
	assert.Equal(t, "sub-1", orders[0].SubscriptionID)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), orders[0].ShippingDate)
	assert.Equal(t, time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), orders[0].CreatedAt)
	assert.Equal(t, "560001", orders[0].Address.Pincode)

	assert.Equal(t, "sub-2", orders[1].SubscriptionID)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), orders[1].ShippingDate)
}

func TestListOrders_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer srv.Close()

	orders, err := newTestClient(testConfig(srv.URL)).ListOrders(t.Context(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{name: "empty", link: "", want: ""},
		{
			name: "next only",
			link: `<https://s.myshopify.com/admin/api/2026-01/orders.json?page_info=abc>; rel="next"`,
			want: "https://s.myshopify.com/admin/api/2026-01/orders.json?page_info=abc",
		},
		{
			name: "previous and next",
			link: `<https://s/orders.json?page_info=a>; rel="previous", <https://s/orders.json?page_info=b>; rel="next"`,
			want: "https://s/orders.json?page_info=b",
		},
		{
			name: "previous only",
			link: `<https://s/orders.json?page_info=a>; rel="previous"`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextPageURL(tt.link))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, 5*time.Second, retryAfter(h, 5*time.Second))

	h.Set("Retry-After", "2.0")
	assert.Equal(t, 2*time.Second, retryAfter(h, 5*time.Second))

	h.Set("Retry-After", "soon")
	assert.Equal(t, 5*time.Second, retryAfter(h, 5*time.Second))
}
