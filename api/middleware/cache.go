package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/cloud-vm-monitor/internal/cache"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
)

const (
	CacheHeader = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func versionKey(userID string) string {
	return "respver:" + userID
}

// cacheVersion is the caller's current key generation. Bumping it orphans
// every cached response of that user, which then expire by TTL.
func cacheVersion(ctx context.Context, c cache.Cache, userID string) (string, error) {
	raw, ok, err := c.Get(ctx, versionKey(userID))
	if err != nil || !ok {
		return "0", err
	}
	return string(raw), nil
}

// CacheResponses serves successful GET responses of authenticated routes from
// c for ttl. Any successful mutation by the same user invalidates them.
func CacheResponses(c cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := GetUserID(ctx)
		if userID == "" {
			ctx.Next()
			return
		}
		reqCtx := ctx.Request.Context()

		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			if ctx.Writer.Status() < http.StatusBadRequest {
				if _, err := c.Incr(reqCtx, versionKey(userID)); err != nil {
					logger.WithUser(userID).WithError(err).Warn("Response cache invalidation failed")
				}
			}
			return
		}

		version, err := cacheVersion(reqCtx, c, userID)
		if err != nil {
			logger.WithUser(userID).WithError(err).Warn("Response cache read failed")
			ctx.Next()
			return
		}
		key := "resp:" + userID + ":" + version + ":" + ctx.Request.URL.RequestURI()

		if body, ok, err := c.Get(reqCtx, key); err == nil && ok {
			ctx.Header(CacheHeader, cacheHit)
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
			ctx.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: ctx.Writer}
		ctx.Writer = rec
		ctx.Header(CacheHeader, cacheMiss)
		ctx.Next()

		if rec.Status() != http.StatusOK || rec.body.Len() == 0 {
			return
		}
		if err := c.Set(reqCtx, key, rec.body.Bytes(), ttl); err != nil {
			logger.WithUser(userID).WithError(err).Warn("Response cache write failed")
		}
	}
}
