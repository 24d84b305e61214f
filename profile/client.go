// Package profile implements gate.ProfileLookup against the marketplace's
// per-role profile endpoints.
//
// Each Exists call issues exactly one GET with bearer auth; there are no
// retries. A circuit breaker stops hammering a backend that keeps failing,
// and only transient failures count against it.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Endpoints maps a role to the absolute URL of its profile lookup.
type Endpoints map[gate.Role]string

// DefaultEndpoints returns the marketplace backend's profile routes under
// baseURL.
func DefaultEndpoints(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	return Endpoints{
		gate.RoleFarmer:      base + "/farmer-profile/",
		gate.RoleBuyer:       base + "/buyer-profile/me",
		gate.RoleTransporter: base + "/transporter-profile/me",
	}
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // max requests in half-open state
	Interval     time.Duration // cyclic period for clearing counts
	Timeout      time.Duration // open period before half-open
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the breaker settings used by New.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "profile-lookup",
		MaxRequests:  1,
		Interval:     30 * time.Second,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

const maxBodyBytes = 1 << 20

// Client implements gate.ProfileLookup over HTTP.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	onState    func(breaker, state string)
}

// compile-time check
var _ gate.ProfileLookup = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// WithLogger sets a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStateObserver registers fn to receive breaker state changes, e.g.
// metrics.Metrics.SetBreakerState.
func WithStateObserver(fn func(breaker, state string)) Option {
	return func(c *Client) { c.onState = fn }
}

// New creates a profile lookup client. Role keys in endpoints are
// normalized to lower case.
func New(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		endpoints:  make(Endpoints, len(endpoints)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breakerCfg: DefaultBreakerConfig(),
		logger:     zap.NewNop(),
	}
	for r, u := range endpoints {
		c.endpoints[gate.NormalizeRole(string(r))] = u
	}
	for _, o := range opts {
		o(c)
	}

	cfg := c.breakerCfg
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !gate.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("profile lookup breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if c.onState != nil {
				c.onState(name, to.String())
			}
		},
	})
	return c
}

// Endpoint returns the lookup URL for role.
func (c *Client) Endpoint(role gate.Role) (string, bool) {
	u, ok := c.endpoints[gate.NormalizeRole(string(role))]
	return u, ok && u != ""
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// Exists issues one lookup for role. Roles without an endpoint return
// gate.ErrUnknownRole without any network call.
func (c *Client) Exists(ctx context.Context, role gate.Role, token string, user *gate.User) (bool, error) {
	url, ok := c.Endpoint(role)
	if !ok {
		return false, gate.ErrUnknownRole
	}
	var userID string
	if user != nil {
		userID = user.ID
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, url, token, userID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, gate.LookupError(fmt.Errorf("gate/profile: %w", err), true)
		}
		return false, err
	}
	return res.(bool), nil
}

func (c *Client) fetch(ctx context.Context, url, token, userID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, gate.LookupError(fmt.Errorf("gate/profile: create request: %w", err), false)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		transient := !errors.Is(err, context.Canceled)
		return false, gate.LookupError(fmt.Errorf("gate/profile: fetch: %w", err), transient)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, gate.LookupError(fmt.Errorf("gate/profile: status %d", resp.StatusCode), true)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, gate.LookupError(fmt.Errorf("gate/profile: status %d", resp.StatusCode), false)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, gate.LookupError(fmt.Errorf("gate/profile: read: %w", err), true)
	}
	exists, err := Normalize(body, userID)
	if err != nil {
		return false, gate.LookupError(err, false)
	}
	return exists, nil
}
