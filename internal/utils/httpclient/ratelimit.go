package httpclient

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport delays requests so that no more than the configured
// number per second reach the wrapped transport
type RateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base with a limiter allowing a burst of 1
func NewRateLimitedTransport(base http.RoundTripper, requestsPerSecond float64) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// RoundTrip waits for the limiter, honouring request cancellation
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
