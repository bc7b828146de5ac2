package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// EndpointRateLimiter applies tighter limits to individual routes, keyed by
// method and gin route pattern. It is configured before serving and read-only
// afterwards.
type EndpointRateLimiter struct {
	limiters map[string]*RateLimiter
}

func NewEndpointRateLimiter() *EndpointRateLimiter {
	return &EndpointRateLimiter{limiters: make(map[string]*RateLimiter)}
}

func (erl *EndpointRateLimiter) AddEndpoint(method, route string, limit int, window time.Duration) {
	erl.limiters[method+" "+route] = NewRateLimiter(limit, window)
}

// Middleware counts authenticated callers by user id and everyone else by IP.
func (erl *EndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter, ok := erl.limiters[c.Request.Method+" "+c.FullPath()]
		if !ok {
			c.Next()
			return
		}
		key := GetUserID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			tooManyRequests(c, limiter, "rate limit exceeded for this endpoint")
			return
		}
		c.Next()
	}
}

// AuthRateLimiter allows 5 login attempts per minute per IP.
func AuthRateLimiter() gin.HandlerFunc {
	return limitByIP(NewRateLimiter(5, time.Minute), "too many authentication attempts, please try again later")
}

func limitByIP(limiter *RateLimiter, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			tooManyRequests(c, limiter, message)
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context, limiter *RateLimiter, message string) {
	retryAfter := int(limiter.window.Seconds())
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       message,
		"retry_after": retryAfter,
	})
}
