// Package ginmw provides Gin HTTP middleware that applies the route gate to
// server-rendered pages.
//
// Session loads the caller's session, RequireProfile runs the full
// role-and-profile check and RequireRole the role check alone. Browsers
// are redirected with 303 See Other; clients that ask for JSON get a
// 401/403 body carrying the redirect target instead.
package ginmw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/audit"
	"github.com/agroconnect/gate-go/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys for storing gate data in gin.Context.
const (
	KeySession   = "gate_session"
	KeyClaims    = "gate_claims"
	KeyDecision  = "gate_decision"
	KeyUserID    = "gate_user_id"
	KeyRole      = "gate_role"
	KeyRequestID = "gate_request_id"
)

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// statusClientClosedRequest is the non-standard status used when the caller
// went away before the gate settled.
const statusClientClosedRequest = 499

// SessionSource resolves the caller's session from a request.
// Implemented by *session.Store.
type SessionSource interface {
	FromRequest(ctx context.Context, r *http.Request) (*session.Record, error)
}

// Option configures gate middleware behavior.
type Option func(*config)

type config struct {
	logger     *zap.Logger
	retryAfter time.Duration
}

func newConfig(opts []Option) *config {
	cfg := &config{logger: zap.NewNop(), retryAfter: 5 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithLogger sets a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

// WithRetryAfter sets the Retry-After value sent with retry outcomes.
func WithRetryAfter(d time.Duration) Option {
	return func(cfg *config) { cfg.retryAfter = d }
}

// RequestID returns Gin middleware that stamps every request with an id,
// taken from X-Request-ID when present, and stores request details for
// audit events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(KeyRequestID, id)
		c.Header(HeaderRequestID, id)

		ctx := audit.WithRequest(c.Request.Context(), audit.RequestInfo{
			ID:        id,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Session returns Gin middleware that loads the caller's session. A missing
// or unreadable session yields an anonymous one, so the gate fails closed.
func Session(src SessionSource, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)

	return func(c *gin.Context) {
		rec, err := src.FromRequest(c.Request.Context(), c.Request)
		if err != nil {
			cfg.logger.Warn("session load failed",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
		}
		if rec == nil {
			rec = session.Anonymous()
		}
		c.Set(KeySession, rec)
		if u := rec.User(); u != nil {
			c.Request = c.Request.WithContext(gate.WithUser(c.Request.Context(), u))
		}
		c.Next()
	}
}

// RequireProfile returns Gin middleware that lets the request through only
// when the caller's role is in roles and a profile for that role exists.
// It issues exactly one profile lookup per request for allowed callers.
func RequireProfile(g *gate.Guard, roles []gate.Role, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	allowed := gate.NormalizeRoles(roles)

	return func(c *gin.Context) {
		d := g.Evaluate(c.Request.Context(), GetSession(c), allowed)
		respond(c, cfg, d)
	}
}

// RequireRole returns Gin middleware that checks authentication and role
// membership only. Profile-creation pages use it.
func RequireRole(g *gate.Guard, roles []gate.Role, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	allowed := gate.NormalizeRoles(roles)

	return func(c *gin.Context) {
		d := g.Authorize(c.Request.Context(), GetSession(c), allowed)
		respond(c, cfg, d)
	}
}

func respond(c *gin.Context, cfg *config, d gate.Decision) {
	c.Set(KeyDecision, d)

	switch d.Outcome {
	case gate.OutcomeRender:
		c.Set(KeyClaims, d.Claims)
		c.Set(KeyRole, string(d.Role))
		if d.Claims != nil {
			c.Set(KeyUserID, d.Claims.UserID)
		}
		ctx := gate.WithDecision(gate.WithClaims(c.Request.Context(), d.Claims), d)
		c.Request = c.Request.WithContext(ctx)
		c.Next()

	case gate.OutcomeRedirectLogin, gate.OutcomeRedirectProfile:
		if wantsJSON(c) {
			status := http.StatusUnauthorized
			if d.Outcome == gate.OutcomeRedirectProfile {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":    string(gate.CodeOf(d.Err)),
				"location": d.Location,
			})
			return
		}
		c.Redirect(http.StatusSeeOther, d.Location)
		c.Abort()

	case gate.OutcomeRetry:
		cfg.logger.Info("profile lookup unavailable, asking client to retry",
			zap.String("request_id", GetRequestID(c)),
			zap.String("role", string(d.Role)),
			zap.Error(d.Err),
		)
		c.Header("Retry-After", strconv.Itoa(int(cfg.retryAfter.Seconds())))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": string(gate.CodeOf(d.Err))})

	default:
		c.AbortWithStatus(statusClientClosedRequest)
	}
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// --- Context helpers ---

// GetSession returns the session loaded by Session, or nil.
func GetSession(c *gin.Context) gate.SessionReader {
	v, ok := c.Get(KeySession)
	if !ok {
		return nil
	}
	s, _ := v.(gate.SessionReader)
	return s
}

// GetClaims returns the claims of an admitted caller.
func GetClaims(c *gin.Context) *gate.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*gate.Claims)
	return cl
}

// GetDecision returns the gate decision for this request.
func GetDecision(c *gin.Context) (gate.Decision, bool) {
	v, ok := c.Get(KeyDecision)
	if !ok {
		return gate.Decision{}, false
	}
	d, ok := v.(gate.Decision)
	return d, ok
}

// GetUserID returns the admitted caller's user id.
func GetUserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

// GetRole returns the admitted caller's normalized role.
func GetRole(c *gin.Context) gate.Role {
	return gate.Role(c.GetString(KeyRole))
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(KeyRequestID)
}
