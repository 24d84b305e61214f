package server

import (
	"context"
	"net/http"
	"time"

	"github.com/agroconnect/gate-go/metrics"
	"github.com/agroconnect/gate-go/middleware/ginmw"
	"github.com/agroconnect/gate-go/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		fields := []zap.Field{
			zap.String("request_id", ginmw.GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if loc := c.Writer.Header().Get("Location"); loc != "" {
			fields = append(fields, zap.String("location", loc))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// rateLimit applies one token bucket to the whole process.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

// meteredSource counts session loads by result.
type meteredSource struct {
	store   *session.Store
	metrics *metrics.Metrics
}

var _ ginmw.SessionSource = meteredSource{}

func (m meteredSource) FromRequest(ctx context.Context, r *http.Request) (*session.Record, error) {
	rec, err := m.store.FromRequest(ctx, r)
	switch {
	case err != nil:
		m.metrics.RecordSession("load", "error")
	case rec == nil || rec.Token() == "":
		m.metrics.RecordSession("load", "miss")
	default:
		m.metrics.RecordSession("load", "ok")
	}
	return rec, err
}
