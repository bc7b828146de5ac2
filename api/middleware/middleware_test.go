package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/auth"
	"github.com/OldStager01/cloud-vm-monitor/internal/cache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiter_DisabledByZeroLimit(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("k"))
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(1, time.Minute)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestEndpointRateLimiter_MatchesMethodAndRoute(t *testing.T) {
	erl := NewEndpointRateLimiter()
	erl.AddEndpoint(http.MethodPost, "/jobs/:name/run", 1, time.Minute)

	r := gin.New()
	r.Use(erl.Middleware())
	r.POST("/jobs/:name/run", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/jobs/:name/run", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/jobs/a/run").Code)
	limited := do(http.MethodPost, "/jobs/b/run")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/jobs/a/run").Code)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		method     string
		wantOrigin string
		wantCode   int
	}{
		{"wildcard", DefaultCORSConfig(), "https://ui.example.com", http.MethodGet, "*", http.StatusOK},
		{"listed origin", CORSConfig{AllowOrigins: []string{"https://ui.example.com"}, AllowCredentials: true}, "https://ui.example.com", http.MethodGet, "https://ui.example.com", http.StatusOK},
		{"unlisted origin", CORSConfig{AllowOrigins: []string{"https://ui.example.com"}}, "https://evil.example.com", http.MethodGet, "", http.StatusOK},
		{"preflight", DefaultCORSConfig(), "https://ui.example.com", http.MethodOptions, "*", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.cfg))
			r.Any("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestJWTAuth_TokenSources(t *testing.T) {
	svc := auth.NewService("secret", time.Hour, "vmmonitor")
	token, err := svc.GenerateToken("u1", "alice")
	require.NoError(t, err)

	r := gin.New()
	r.Use(JWTAuth(svc))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetUserID(c)) })

	tests := []struct {
		name  string
		setup func(*http.Request)
		want  int
	}{
		{"header", func(r *http.Request) { r.Header.Set(AuthorizationHeader, BearerPrefix+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AuthCookie, Value: token}) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"basic scheme", func(r *http.Request) { r.Header.Set(AuthorizationHeader, "Basic abc") }, http.StatusUnauthorized},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}

func TestCacheResponses(t *testing.T) {
	c := cache.NewMemoryCache(0)
	defer c.Close()

	hits := 0
	r := gin.New()
	r.Use(func(ctx *gin.Context) {
		if user := ctx.GetHeader("X-User"); user != "" {
			ctx.Set(UserIDKey, user)
		}
	})
	r.Use(CacheResponses(c, time.Minute))
	r.GET("/items", func(ctx *gin.Context) {
		hits++
		ctx.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/items", func(ctx *gin.Context) { ctx.Status(http.StatusCreated) })
	r.POST("/fail", func(ctx *gin.Context) { ctx.Status(http.StatusConflict) })

	call := func(method, path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "MISS", call(http.MethodGet, "/items", "u1").Header().Get(CacheHeader))
	w := call(http.MethodGet, "/items", "u1")
	assert.Equal(t, "HIT", w.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	// Other users and query strings are cached separately.
	assert.Equal(t, "MISS", call(http.MethodGet, "/items", "u2").Header().Get(CacheHeader))
	assert.Equal(t, "MISS", call(http.MethodGet, "/items?limit=5", "u1").Header().Get(CacheHeader))

	call(http.MethodPost, "/fail", "u1")
	assert.Equal(t, "HIT", call(http.MethodGet, "/items", "u1").Header().Get(CacheHeader))

	call(http.MethodPost, "/items", "u1")
	assert.Equal(t, "MISS", call(http.MethodGet, "/items", "u1").Header().Get(CacheHeader))
	assert.Equal(t, "HIT", call(http.MethodGet, "/items", "u2").Header().Get(CacheHeader))

	// Anonymous requests bypass the cache.
	assert.Empty(t, call(http.MethodGet, "/items", "").Header().Get(CacheHeader))
}

func TestTraceID(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetTraceID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Body.String())
	assert.Equal(t, "trace-123", w.Header().Get(TraceIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "has space")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "has space", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimit(4))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 10
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
