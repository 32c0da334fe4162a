package request

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"intake/pkg/requestcontext"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10_000

// RateLimiter hands out a token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per client with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether the client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.evictIdle(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.idle {
			delete(rl.clients, key)
		}
	}
}

// RateLimit rejects bursts of requests from one client with 429.
// A nil limiter disables the middleware.
func RateLimit(rl *RateLimiter, m *Metrics) func(http.Handler) http.Handler {
	return RateLimitWith(rl, m, writeRejection(`{"error":"too_many_requests","error_description":"too many submissions, retry shortly"}`))
}

// RateLimitWith is RateLimit with a caller-owned 429 body. Retry-After is set
// before reject runs.
func RateLimitWith(rl *RateLimiter, m *Metrics, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := requestcontext.ClientIP(r.Context())
			if client == "" {
				client = r.RemoteAddr
			}
			if !rl.Allow(client) {
				if m != nil {
					m.IncRateLimited(r.URL.Path)
				}
				retryAfter := time.Second
				if rl.limit > 0 {
					retryAfter = time.Duration(float64(time.Second) / float64(rl.limit))
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(max(retryAfter.Seconds(), 1))))
				reject(w, r, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
