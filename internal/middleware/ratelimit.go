package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RunCost is what a request that starts an IDA run takes from the bucket.
// A trigger or retry keeps idat busy for minutes, a read does not.
const RunCost = 5

// TokenBucket refills continuously at refillRate tokens per second.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastSeen   time.Time
}

func NewTokenBucket(capacity, refillRate int, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastSeen:   now,
	}
}

// Take removes cost tokens. When there are not enough it returns how long
// until there will be.
func (tb *TokenBucket) Take(cost int, now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastSeen).Seconds(); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	}
	tb.lastSeen = now

	c := float64(cost)
	if c > tb.capacity {
		// never block a request the bucket can't hold at all
		c = tb.capacity
	}
	if tb.tokens >= c {
		tb.tokens -= c
		return true, 0
	}
	if tb.refillRate <= 0 {
		return false, time.Minute
	}
	wait := (c - tb.tokens) / tb.refillRate
	return false, time.Duration(wait * float64(time.Second))
}

func (tb *TokenBucket) idle(now time.Time, d time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastSeen) > d
}

// RateLimiter keeps one bucket per tenant and client address.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate int
	now        func() time.Time
}

func NewRateLimiter(capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

func (rl *RateLimiter) Take(key string, cost int) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = NewTokenBucket(rl.capacity, rl.refillRate, now)
		rl.buckets[key] = b
	}
	rl.mu.Unlock()
	return b.Take(cost, now)
}

// Prune drops buckets not touched for idleFor.
func (rl *RateLimiter) Prune(idleFor time.Duration) int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, b := range rl.buckets {
		if b.idle(now, idleFor) {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

// RunPruner prunes idle buckets every interval until ctx is done.
func (rl *RateLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(2 * interval)
		}
	}
}

// requestCost: POST /v1/{tenant}/diffs and .../retry start a run
func requestCost(r *http.Request) int {
	if r.Method != http.MethodPost {
		return 1
	}
	p := strings.TrimSuffix(r.URL.Path, "/")
	if strings.HasSuffix(p, "/diffs") || strings.HasSuffix(p, "/retry") {
		return RunCost
	}
	return 1
}

// tenantFromPath reads {tenant} out of /v1/{tenant}/...; the chi URL param
// is not resolved yet at this point of the chain.
func tenantFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/")
	if !ok {
		return ""
	}
	tenant, _, _ := strings.Cut(rest, "/")
	return tenant
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware limits per tenant + client IP. The pruning goroutine
// stops with ctx.
func RateLimitMiddleware(ctx context.Context, capacity, refillRate int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(capacity, refillRate)
	go limiter.RunPruner(ctx, 5*time.Minute)
	return limiter.Middleware
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tenant := GetTenantFromContext(r.Context())
		if tenant == "" {
			tenant = tenantFromPath(r.URL.Path)
		}
		key := tenant + ":" + clientAddr(r)

		if ok, wait := rl.Take(key, requestCost(r)); !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
