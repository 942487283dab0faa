package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	outboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_http_requests_total",
		Help: "Outbound HTTP requests by client, status code and method",
	}, []string{"client", "code", "method"})

	outboundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbound_http_request_duration_seconds",
		Help:    "Outbound HTTP request latency by client and method",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"client", "method"})
)

// ClientConfig tunes the pooled transport behind an outbound API client
type ClientConfig struct {
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// OrderBackendConfig suits a single commerce API host. The backend enforces
// its own request rate, so a handful of connections is plenty.
func OrderBackendConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       8,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// NewClient builds an http.Client whose requests are counted and timed
// under the given client label. timeout bounds a single request.
func NewClient(name string, cfg ClientConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
	}

	labels := prometheus.Labels{"client": name}
	instrumented := promhttp.InstrumentRoundTripperCounter(
		outboundRequests.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(outboundDuration.MustCurryWith(labels), transport),
	)

	return &http.Client{
		Transport: instrumented,
		Timeout:   timeout,
	}
}
