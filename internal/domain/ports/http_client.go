package ports

import (
	"net/http"
)

// HTTPClient is the slice of *http.Client the order backend adapters use.
// Tests swap in an httptest server client or a stub RoundTripper.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
