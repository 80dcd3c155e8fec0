package mid

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/ardanlabs/crossledger/business/web/errs"
	"github.com/ardanlabs/crossledger/foundation/web"
	"golang.org/x/time/rate"
)

// maxVisitors bounds the number of remote hosts tracked at once.
const maxVisitors = 10_000

// RateLimiter hands out a token bucket per remote host.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter allowing perSecond requests per host
// with bursts of up to burst requests.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.visitors[host]; exists {
		return l
	}

	if len(rl.visitors) >= maxVisitors {
		rl.visitors = make(map[string]*rate.Limiter)
	}

	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[host] = l
	return l
}

// RateLimit rejects requests from a host that exceeded its budget. A nil
// limiter lets everything through.
func RateLimit(rl *RateLimiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if rl == nil {
				return handler(ctx, w, r)
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !rl.limiter(host).Allow() {
				return errs.NewTrusted(errors.New("rate limit exceeded"), http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
