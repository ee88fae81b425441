package api

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimitIdleTTL = 10 * time.Minute
	defaultRateLimitSweep   = time.Minute
)

// clientBucket is one client's token bucket and when it was last used
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimiter keeps one token bucket per client. Buckets idle for longer
// than the idle TTL are dropped by a sweep that piggybacks on requests.
type RateLimiter struct {
	buckets *xsync.Map[string, *clientBucket]
	limit   rate.Limit
	burst   int

	idleTTL   time.Duration
	sweepEach time.Duration
	lastSweep atomic.Int64
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with bursts of up to burst requests
func NewRateLimiter(rps, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	rl := &RateLimiter{
		buckets:   xsync.NewMap[string, *clientBucket](),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleTTL:   defaultRateLimitIdleTTL,
		sweepEach: defaultRateLimitSweep,
		now:       time.Now,
	}
	rl.lastSweep.Store(rl.now().UnixNano())
	return rl
}

// getLimiter returns the bucket of client, creating it on first use
func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	now := rl.now()
	rl.maybeSweep(now)

	b, ok := rl.buckets.Load(client)
	if !ok {
		b, _ = rl.buckets.LoadOrStore(client, &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)})
	}
	b.lastSeen.Store(now.UnixNano())
	return b.limiter
}

// maybeSweep runs Sweep at most once per sweep interval across all callers
func (rl *RateLimiter) maybeSweep(now time.Time) {
	last := rl.lastSweep.Load()
	if now.UnixNano()-last < rl.sweepEach.Nanoseconds() {
		return
	}
	if rl.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		rl.Sweep(now)
	}
}

// Sweep drops buckets idle since before now minus the idle TTL and
// returns how many it dropped
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.idleTTL).UnixNano()
	dropped := 0
	rl.buckets.Range(func(client string, b *clientBucket) bool {
		if b.lastSeen.Load() >= cutoff {
			return true
		}
		rl.buckets.Compute(client, func(old *clientBucket, loaded bool) (*clientBucket, xsync.ComputeOp) {
			// recheck under the bucket lock, a request may have touched it
			if !loaded || old.lastSeen.Load() >= cutoff {
				return old, xsync.CancelOp
			}
			dropped++
			return nil, xsync.DeleteOp
		})
		return true
	})
	return dropped
}

// Clients returns the number of tracked clients
func (rl *RateLimiter) Clients() int {
	return rl.buckets.Size()
}

// clientKey identifies the caller by host, ignoring the source port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientKey(r))
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"limit": float64(limiter.Limit()),
					"burst": limiter.Burst(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
