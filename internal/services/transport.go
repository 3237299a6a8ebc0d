package services

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport delays outgoing requests so they never exceed a fixed rate.
type RateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base with a limiter allowing perSecond requests per second.
// A non-positive rate returns base unchanged.
func NewRateLimitedTransport(base http.RoundTripper, perSecond float64) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if perSecond <= 0 {
		return base
	}
	return &RateLimitedTransport{base: base, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
