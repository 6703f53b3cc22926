package httpmw

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// per-IP token bucket. Buckets refill continuously; an entry idle for longer
// than the window gets pruned on the next sweep.
type ipLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	rate     float64 // tokens per second
	window   time.Duration
	lastGC   time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newIPLimiter(max int, window time.Duration) *ipLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &ipLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(max),
		rate:     float64(max) / window.Seconds(),
		window:   window,
		lastGC:   time.Now(),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastGC) > l.window {
		for k, b := range l.buckets {
			if now.Sub(b.last) > l.window {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[ip] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimitPerIP allows max requests per window from one IP, 429 after that.
// Expects RealIP middleware before it in the chain.
func RateLimitPerIP(max int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newIPLimiter(max, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
			if !limiter.allow(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests, please try again later."}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
