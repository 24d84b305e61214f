// Package server assembles the agrogate HTTP service: a Gin engine serving
// the marketplace's protected pages behind the route gate, plus login,
// logout, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/audit"
	"github.com/agroconnect/gate-go/claims"
	"github.com/agroconnect/gate-go/internal/config"
	"github.com/agroconnect/gate-go/jwks"
	"github.com/agroconnect/gate-go/metrics"
	"github.com/agroconnect/gate-go/profile"
	"github.com/agroconnect/gate-go/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	engine     *gin.Engine

	guard    *gate.Guard
	store    *session.Store
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	redis    redis.UniversalClient
	lookup   gate.ProfileLookup
}

// Option overrides a component that New would otherwise build from config.
type Option func(*options)

type options struct {
	decoder  gate.ClaimsDecoder
	lookup   gate.ProfileLookup
	backend  session.Backend
	redis    redis.UniversalClient
	registry *prometheus.Registry
}

// WithClaimsDecoder replaces the decoder selected by auth.mode.
func WithClaimsDecoder(d gate.ClaimsDecoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithProfileLookup replaces the HTTP profile lookup.
func WithProfileLookup(l gate.ProfileLookup) Option {
	return func(o *options) { o.lookup = l }
}

// WithSessionBackend replaces the backend selected by session.backend.
func WithSessionBackend(b session.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithRedisClient supplies the client used for the redis session backend.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithRegistry sets the Prometheus registry served on the metrics path.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New wires every component from cfg and builds the router.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{config: cfg, logger: log}

	s.registry = o.registry
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(s.registry)
	} else {
		s.metrics = metrics.New(nil)
	}

	decoder := o.decoder
	if decoder == nil {
		var err error
		if decoder, err = NewDecoder(cfg.Auth); err != nil {
			return nil, err
		}
	}

	s.lookup = o.lookup
	if s.lookup == nil {
		s.lookup = NewProfileClient(cfg.Profile, log, s.metrics)
	}

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = s.newSessionBackend(cfg.Session, o.redis); err != nil {
			return nil, err
		}
	}
	s.store = session.New(backend, cfg.Session.TTL)

	gc, err := cfg.Gate.GuardConfig()
	if err != nil {
		return nil, err
	}
	guardOpts := []gate.Option{
		gate.WithLogger(log.Named("gate")),
		gate.WithClaimsDecoder(decoder),
		gate.WithProfileLookup(s.lookup),
		gate.WithRecorder(s.metrics),
	}
	if cfg.Audit.Enabled {
		guardOpts = append(guardOpts, gate.WithAuditor(
			audit.New(cfg.Audit.Buffer, audit.WithZapHandler(log.Named("audit"))),
		))
	}
	if s.guard, err = gate.New(gc, guardOpts...); err != nil {
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	s.engine = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// NewDecoder builds the claims decoder selected by auth.mode.
func NewDecoder(cfg config.AuthConfig) (gate.ClaimsDecoder, error) {
	switch cfg.Mode {
	case "", "unverified":
		return claims.Unverified(), nil
	case "hmac":
		return claims.HMAC([]byte(cfg.HMACSecret)), nil
	case "jwks":
		var opts []jwks.Option
		if cfg.JWKSRefresh > 0 {
			opts = append(opts, jwks.WithRefreshInterval(cfg.JWKSRefresh))
		}
		return jwks.NewVerifier(cfg.JWKSURL, opts...), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// NewProfileClient builds the HTTP profile lookup with its circuit breaker.
// Breaker state changes are reported to m.
func NewProfileClient(cfg config.ProfileConfig, log *zap.Logger, m *metrics.Metrics) *profile.Client {
	endpoints := profile.DefaultEndpoints(strings.TrimRight(cfg.BaseURL, "/"))
	for r, u := range cfg.Endpoints {
		endpoints[gate.NormalizeRole(r)] = u
	}

	breaker := profile.DefaultBreakerConfig()
	if cfg.Breaker.MaxRequests > 0 {
		breaker.MaxRequests = cfg.Breaker.MaxRequests
	}
	if cfg.Breaker.Interval > 0 {
		breaker.Interval = cfg.Breaker.Interval
	}
	if cfg.Breaker.Timeout > 0 {
		breaker.Timeout = cfg.Breaker.Timeout
	}
	if cfg.Breaker.FailureRatio > 0 {
		breaker.FailureRatio = cfg.Breaker.FailureRatio
	}
	if cfg.Breaker.MinRequests > 0 {
		breaker.MinRequests = cfg.Breaker.MinRequests
	}

	c := profile.New(endpoints,
		profile.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		profile.WithBreaker(breaker),
		profile.WithLogger(log.Named("profile")),
		profile.WithStateObserver(m.SetBreakerState),
	)
	m.SetBreakerState(breaker.Name, c.BreakerState())
	return c
}

func (s *Server) newSessionBackend(cfg config.SessionConfig, client redis.UniversalClient) (session.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryBackend(), nil
	case "redis":
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		s.redis = client
		rb := session.NewRedisBackend(client, cfg.Redis.Prefix)
		if err := rb.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return rb, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Guard returns the configured route gate.
func (s *Server) Guard() *gate.Guard { return s.guard }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the guard's components
// and the Redis connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	if err := s.guard.Close(); err != nil {
		s.logger.Error("failed to close guard", zap.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("failed to close Redis", zap.Error(err))
		}
	}
	return nil
}
