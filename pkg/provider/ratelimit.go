package provider

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport paces outbound requests against a shared
// *rate.Limiter before delegating to the wrapped RoundTripper. Used to cap
// an Instance's call rate against its upstream independently of the retry
// budget the Dispatcher applies on top.
type rateLimitedTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// WithRateLimit returns a shallow copy of client whose Transport paces
// requests against limiter. A nil limiter returns client unchanged.
func WithRateLimit(client *http.Client, limiter *rate.Limiter) *http.Client {
	if limiter == nil {
		return client
	}
	cp := *client
	cp.Transport = &rateLimitedTransport{limiter: limiter, base: client.Transport}
	return &cp
}

// NewLimiter is a small convenience wrapper so callers configuring an
// Instance don't need their own golang.org/x/time/rate import just to build
// one: requestsPerSecond <= 0 disables limiting (returns nil).
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
