package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewLimiter_NonPositiveRateDisables(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 1))
	assert.Nil(t, NewLimiter(-1, 1))
}

func TestNewLimiter_DefaultsBurstToOne(t *testing.T) {
	l := NewLimiter(5, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestWithRateLimit_NilLimiterReturnsClientUnchanged(t *testing.T) {
	client := &http.Client{}
	assert.Same(t, client, WithRateLimit(client, nil))
}

func TestWithRateLimit_PacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := rate.NewLimiter(rate.Limit(2), 1)
	client := WithRateLimit(&http.Client{}, limiter)

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestWithRateLimit_PreservesExistingBaseTransport(t *testing.T) {
	base := &http.Transport{}
	client := WithRateLimit(&http.Client{Transport: base}, rate.NewLimiter(rate.Inf, 1))
	wrapped, ok := client.Transport.(*rateLimitedTransport)
	require.True(t, ok)
	assert.Same(t, base, wrapped.base)
}
