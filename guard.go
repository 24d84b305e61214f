// Package gate gates protected marketplace views behind authentication,
// role membership and the existence of a role-specific profile.
//
// The guard decodes the session's bearer token, checks the decoded role
// against the route's allowed set and, only when the role is allowed, issues
// a single profile lookup before letting the view render. Every failure path
// resolves to a navigation decision; nothing is surfaced as an error to the
// caller.
//
// Example usage with the HTTP profile lookup:
//
//	g, err := gate.New(
//	    gate.Config{},
//	    gate.WithClaimsDecoder(claims.HMAC(secret)),
//	    gate.WithProfileLookup(profile.New(profile.DefaultEndpoints("http://localhost:8080"))),
//	)
//	d := g.Evaluate(ctx, sess, []gate.Role{gate.RoleFarmer})
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"go.uber.org/zap"
)

// LookupFailurePolicy decides what a failed profile lookup resolves to.
type LookupFailurePolicy int

const (
	// FailClosed maps every lookup failure to the profile-creation redirect.
	FailClosed LookupFailurePolicy = iota
	// SurfaceRetry maps transient lookup failures to OutcomeRetry instead.
	SurfaceRetry
)

const (
	DefaultLoginPath               = "/login"
	DefaultProfileCreationTemplate = "/create-%s-profile"
	DefaultLookupTimeout           = 10 * time.Second
)

// Config holds guard behavior configuration.
type Config struct {
	// LoginPath is the redirect target for unauthenticated or denied callers.
	// Default: "/login".
	LoginPath string

	// ProfileCreationPaths overrides the profile-creation path per role.
	ProfileCreationPaths map[Role]string

	// ProfileCreationTemplate builds the creation path for roles missing from
	// ProfileCreationPaths. It must contain one %s verb. Default: "/create-%s-profile".
	ProfileCreationTemplate string

	// LookupTimeout bounds the single profile lookup. Default: 10 seconds.
	LookupTimeout time.Duration

	// LookupFailurePolicy defaults to FailClosed.
	LookupFailurePolicy LookupFailurePolicy
}

// Guard evaluates route activations. It is immutable after New and safe for
// concurrent use.
type Guard struct {
	config   Config
	logger   *zap.Logger
	decoder  ClaimsDecoder
	lookup   ProfileLookup
	recorder Recorder
	auditor  Auditor
}

// Option configures the Guard.
type Option func(*Guard)

// WithLogger sets a structured logger for the guard.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithClaimsDecoder sets the token claims decoder.
func WithClaimsDecoder(d ClaimsDecoder) Option {
	return func(g *Guard) { g.decoder = d }
}

// WithProfileLookup sets the profile existence lookup.
func WithProfileLookup(l ProfileLookup) Option {
	return func(g *Guard) { g.lookup = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(g *Guard) { g.auditor = a }
}

// New creates a guard with the given configuration and options.
func New(cfg Config, opts ...Option) (*Guard, error) {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.ProfileCreationTemplate == "" {
		cfg.ProfileCreationTemplate = DefaultProfileCreationTemplate
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	paths := make(map[Role]string, len(cfg.ProfileCreationPaths))
	for r, p := range cfg.ProfileCreationPaths {
		paths[NormalizeRole(string(r))] = p
	}
	cfg.ProfileCreationPaths = paths

	g := &Guard{config: cfg}
	for _, o := range opts {
		o(g)
	}
	if g.decoder == nil {
		return nil, errors.New("gate: a claims decoder is required")
	}
	if g.lookup == nil {
		return nil, errors.New("gate: a profile lookup is required")
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g, nil
}

// Config returns the guard configuration with defaults applied.
func (g *Guard) Config() Config { return g.config }

// LoginPath returns the login redirect target.
func (g *Guard) LoginPath() string { return g.config.LoginPath }

// ProfileCreationPath returns the profile-creation redirect target for role.
func (g *Guard) ProfileCreationPath(role Role) string {
	role = NormalizeRole(string(role))
	if p, ok := g.config.ProfileCreationPaths[role]; ok {
		return p
	}
	return fmt.Sprintf(g.config.ProfileCreationTemplate, role)
}

// Authorize runs the authentication and role checks only. It never issues a
// profile lookup and resolves to OutcomeRender or OutcomeRedirectLogin.
// It guards pages that must stay reachable without a profile, such as the
// profile-creation pages themselves.
func (g *Guard) Authorize(ctx context.Context, sess SessionReader, allowed []Role) Decision {
	d, _ := g.authorize(ctx, sess, allowed)
	g.observe(ctx, d, userOf(sess))
	return d
}

// Activate starts one route activation. Callers that are denied resolve
// immediately; allowed callers get an activation in OutcomeChecking whose
// single profile lookup runs in the background.
func (g *Guard) Activate(ctx context.Context, sess SessionReader, allowed []Role, opts ...ActivationOption) *Activation {
	a := newActivation(opts)
	observe := func(fd Decision) { g.observe(ctx, fd, userOf(sess)) }

	d, ok := g.authorize(ctx, sess, allowed)
	if !ok {
		a.settle(d, observe)
		return a
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	a.begin(Decision{Outcome: OutcomeChecking, Role: d.Role, Claims: d.Claims}, cancel, observe)

	go func() {
		defer cancel()
		fd := g.check(lookupCtx, sess, d)
		if fd.Outcome == OutcomeCancelled {
			a.Cancel()
			return
		}
		a.settle(fd, observe)
	}()
	return a
}

// Evaluate activates and waits for the terminal decision. If ctx ends first
// the activation is cancelled and its current state returned.
func (g *Guard) Evaluate(ctx context.Context, sess SessionReader, allowed []Role) Decision {
	a := g.Activate(ctx, sess, allowed)
	d, err := a.Wait(ctx)
	if err != nil {
		a.Cancel()
		return a.State()
	}
	return d
}

// Close releases injected components that implement io.Closer.
func (g *Guard) Close() error {
	closers := []interface{}{g.decoder, g.lookup, g.recorder, g.auditor}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// authorize returns a render-candidate decision and true when the caller's
// role is allowed, or a login redirect and false otherwise.
func (g *Guard) authorize(ctx context.Context, sess SessionReader, allowed []Role) (Decision, bool) {
	var token string
	if sess != nil {
		token = sess.Token()
	}
	if token == "" {
		return g.toLogin("", nil, NewError(CodeAuthAbsent, nil)), false
	}

	claims, err := g.decode(ctx, token)
	if err != nil {
		return g.toLogin("", nil, NewError(CodeMalformedToken, err)), false
	}

	role := NormalizeRole(string(claims.Role))
	if role == "" {
		return g.toLogin("", claims, NewError(CodeRoleDenied, errors.New("token carries no role"))), false
	}
	if !slices.Contains(NormalizeRoles(allowed), role) {
		return g.toLogin(role, claims, NewError(CodeRoleDenied, fmt.Errorf("role %q", role))), false
	}

	return Decision{Outcome: OutcomeRender, Role: role, Claims: claims}, true
}

// decode shields the guard from decoder panics and nil claims.
func (g *Guard) decode(ctx context.Context, token string) (claims *Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	claims, err = g.decoder.Decode(ctx, token)
	if err == nil && claims == nil {
		err = errors.New("decoder returned no claims")
	}
	return claims, err
}

// check performs the single profile lookup and maps its result. When ctx
// ends before the lookup returns, the result is discarded and the decision
// is OutcomeCancelled; only LookupTimeout expiry counts as a lookup failure.
func (g *Guard) check(ctx context.Context, sess SessionReader, d Decision) Decision {
	parent := ctx
	if g.config.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.LookupTimeout)
		defer cancel()
	}

	start := time.Now()
	exists, err := g.exists(ctx, d.Role, sess.Token(), lookupUser(sess, d.Claims))
	if perr := parent.Err(); perr != nil {
		g.recordLookupResult(d.Role, "cancelled", time.Since(start))
		return Decision{Outcome: OutcomeCancelled, Role: d.Role, Claims: d.Claims, Err: NewError(CodeCancelled, perr)}
	}
	g.recordLookup(d.Role, exists, err, time.Since(start))

	switch {
	case err == nil && exists:
		return Decision{Outcome: OutcomeRender, Role: d.Role, Claims: d.Claims}
	case err == nil:
		return g.toProfile(d, NewError(CodeProfileMissing, nil))
	case CodeOf(err) == CodeUnknownRole:
		return g.toProfile(d, err)
	}

	var ge *Error
	if !errors.As(err, &ge) {
		err = LookupError(err, isContextTransient(err))
	}
	g.logger.Warn("profile lookup failed",
		zap.String("role", string(d.Role)),
		zap.Bool("transient", IsTransient(err)),
		zap.Error(err),
	)
	if g.config.LookupFailurePolicy == SurfaceRetry && IsTransient(err) {
		return Decision{Outcome: OutcomeRetry, Role: d.Role, Claims: d.Claims, Err: err}
	}
	return g.toProfile(d, err)
}

// exists shields the guard from lookup panics.
func (g *Guard) exists(ctx context.Context, role Role, token string, user *User) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, LookupError(fmt.Errorf("lookup panic: %v", r), false)
		}
	}()
	return g.lookup.Exists(ctx, role, token, user)
}

func (g *Guard) toLogin(role Role, claims *Claims, err error) Decision {
	return Decision{
		Outcome:  OutcomeRedirectLogin,
		Location: g.config.LoginPath,
		Role:     role,
		Claims:   claims,
		Err:      err,
	}
}

func (g *Guard) toProfile(d Decision, err error) Decision {
	return Decision{
		Outcome:  OutcomeRedirectProfile,
		Location: g.ProfileCreationPath(d.Role),
		Role:     d.Role,
		Claims:   d.Claims,
		Err:      err,
	}
}

func (g *Guard) observe(ctx context.Context, d Decision, user *User) {
	if g.recorder != nil {
		g.recorder.RecordDecision(d.Outcome.String(), string(d.Role))
	}
	if g.auditor != nil {
		g.auditor.Decision(ctx, d, user)
	}
	if ce := g.logger.Check(zap.DebugLevel, "route decision"); ce != nil {
		ce.Write(
			zap.Stringer("outcome", d.Outcome),
			zap.String("role", string(d.Role)),
			zap.String("location", d.Location),
			zap.String("code", string(CodeOf(d.Err))),
		)
	}
}

func (g *Guard) recordLookup(role Role, exists bool, err error, elapsed time.Duration) {
	result := "found"
	switch {
	case err != nil && IsTransient(err):
		result = "transient_error"
	case err != nil:
		result = "error"
	case !exists:
		result = "missing"
	}
	g.recordLookupResult(role, result, elapsed)
}

func (g *Guard) recordLookupResult(role Role, result string, elapsed time.Duration) {
	if g.recorder == nil {
		return
	}
	g.recorder.RecordLookup(string(role), result, elapsed.Seconds())
}

// lookupUser returns the session's cached user, or one built from the token's
// user id when the session carries none (bearer passthrough).
func lookupUser(sess SessionReader, claims *Claims) *User {
	if u := sess.User(); u != nil {
		return u
	}
	if claims == nil || claims.UserID == "" {
		return nil
	}
	return &User{ID: claims.UserID, Role: NormalizeRole(string(claims.Role))}
}

func isContextTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func userOf(sess SessionReader) *User {
	if sess == nil {
		return nil
	}
	return sess.User()
}
