package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter allows limit requests per key in each fixed window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*window
	now     func() time.Time
	lastGC  time.Time
}

func NewRateLimiter(limit int, w time.Duration) *RateLimiter {
	if w <= 0 {
		w = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  w,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts a request for key. A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.gc(now)

	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.clients[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

func (rl *RateLimiter) gc(now time.Time) {
	if now.Sub(rl.lastGC) < rl.window {
		return
	}
	rl.lastGC = now
	for key, w := range rl.clients {
		if now.Sub(w.start) >= rl.window {
			delete(rl.clients, key)
		}
	}
}

// RateLimit limits every request per client IP.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return limitByIP(limiter, "rate limit exceeded")
}
