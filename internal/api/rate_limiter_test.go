package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLimiter(rps, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(rps, burst)
	rl.now = clock.now
	rl.lastSweep.Store(clock.t.UnixNano())
	return rl, clock
}

func TestRateLimiter_SweepDropsIdleClients(t *testing.T) {
	rl, clock := newClockedLimiter(1, 2)

	for i := 0; i < 50; i++ {
		rl.getLimiter(fmt.Sprintf("10.0.1.%d", i))
	}
	require.Equal(t, 50, rl.Clients())

	clock.advance(defaultRateLimitIdleTTL - time.Minute)
	rl.getLimiter("10.0.1.7")

	clock.advance(2 * time.Minute)
	dropped := rl.Sweep(clock.now())

	assert.Equal(t, 49, dropped)
	assert.Equal(t, 1, rl.Clients(), "recently used client is kept")
	_, ok := rl.buckets.Load("10.0.1.7")
	assert.True(t, ok)
}

func TestRateLimiter_SweepRunsFromRequests(t *testing.T) {
	rl, clock := newClockedLimiter(1, 2)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, call(fmt.Sprintf("10.0.2.%d:4000", i)))
	}
	require.Equal(t, 20, rl.Clients())

	// within the sweep interval nothing is dropped
	clock.advance(defaultRateLimitSweep / 2)
	call("10.0.3.1:4000")
	assert.Equal(t, 21, rl.Clients())

	clock.advance(defaultRateLimitIdleTTL + defaultRateLimitSweep)
	assert.Equal(t, http.StatusOK, call("10.0.3.2:4000"))
	assert.Equal(t, 1, rl.Clients(), "only the caller that triggered the sweep remains")
}

func TestRateLimiter_EvictedClientStartsWithFullBurst(t *testing.T) {
	rl, clock := newClockedLimiter(1, 2)

	lim := rl.getLimiter("10.0.4.1")
	require.True(t, lim.AllowN(clock.now(), 2))
	require.False(t, lim.AllowN(clock.now(), 1))

	clock.advance(defaultRateLimitIdleTTL + time.Second)
	rl.Sweep(clock.now())
	assert.Equal(t, 0, rl.Clients())

	fresh := rl.getLimiter("10.0.4.1")
	assert.NotSame(t, lim, fresh)
	assert.True(t, fresh.AllowN(clock.now(), 2))
}
