// Package fake provides in-memory implementations of the gate interfaces for
// testing.
//
// Use fake.New() in unit tests to avoid network calls: tokens, profiles and
// lookup failures are scripted with options, and every lookup is recorded.
package fake

import (
	"context"
	"fmt"
	"sync"

	gate "github.com/agroconnect/gate-go"
)

// Option configures the fake backend.
type Option func(*state)

type state struct {
	mu       sync.RWMutex
	tokens   map[string]*gate.Claims       // token → claims
	profiles map[gate.Role]map[string]bool // role → userID → exists
	errs     map[gate.Role]error           // role → lookup error
	hold     chan struct{}
	calls    []Call
}

// Call records one profile lookup.
type Call struct {
	Role   gate.Role
	Token  string
	UserID string
}

// WithToken registers a token that decodes to the given role and user id.
// The role is stored as given, so tests can exercise capitalized roles.
func WithToken(token string, role gate.Role, userID string) Option {
	return func(s *state) {
		s.tokens[token] = &gate.Claims{
			Subject: userID,
			UserID:  userID,
			Role:    role,
			Issuer:  "fake",
		}
	}
}

// WithProfile records that userID has a profile for role.
func WithProfile(role gate.Role, userID string) Option {
	return func(s *state) {
		role = gate.NormalizeRole(string(role))
		if s.profiles[role] == nil {
			s.profiles[role] = make(map[string]bool)
		}
		s.profiles[role][userID] = true
	}
}

// WithLookupError makes every lookup for role fail with err.
func WithLookupError(role gate.Role, err error) Option {
	return func(s *state) { s.errs[gate.NormalizeRole(string(role))] = err }
}

// WithHold makes lookups block until Release is called or the lookup
// context ends.
func WithHold() Option {
	return func(s *state) { s.hold = make(chan struct{}) }
}

// Backend bundles a decoder and a profile lookup over shared state.
type Backend struct {
	s       *state
	release sync.Once
}

// New creates a fake backend.
func New(opts ...Option) *Backend {
	s := &state{
		tokens:   make(map[string]*gate.Claims),
		profiles: make(map[gate.Role]map[string]bool),
		errs:     make(map[gate.Role]error),
	}
	for _, o := range opts {
		o(s)
	}
	return &Backend{s: s}
}

// Decoder returns the fake claims decoder.
func (b *Backend) Decoder() *Decoder { return &Decoder{s: b.s} }

// Lookup returns the fake profile lookup.
func (b *Backend) Lookup() *Lookup { return &Lookup{s: b.s} }

// Guard builds a gate.Guard wired to this backend.
func (b *Backend) Guard(cfg gate.Config, opts ...gate.Option) *gate.Guard {
	all := append([]gate.Option{
		gate.WithClaimsDecoder(b.Decoder()),
		gate.WithProfileLookup(b.Lookup()),
	}, opts...)
	g, err := gate.New(cfg, all...)
	if err != nil {
		panic(err)
	}
	return g
}

// Release unblocks held lookups. Safe to call more than once.
func (b *Backend) Release() {
	if b.s.hold == nil {
		return
	}
	b.release.Do(func() { close(b.s.hold) })
}

// Calls returns every lookup made so far.
func (b *Backend) Calls() []Call {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	out := make([]Call, len(b.s.calls))
	copy(out, b.s.calls)
	return out
}

// CallCount returns the number of lookups made so far.
func (b *Backend) CallCount() int {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	return len(b.s.calls)
}

// --- ClaimsDecoder ---

// Decoder implements gate.ClaimsDecoder over registered tokens.
type Decoder struct{ s *state }

var _ gate.ClaimsDecoder = (*Decoder)(nil)

func (d *Decoder) Decode(_ context.Context, token string) (*gate.Claims, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	c, ok := d.s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("gate/fake: unknown token %q", token)
	}
	cp := *c
	cp.Role = gate.NormalizeRole(string(c.Role))
	return &cp, nil
}

// --- ProfileLookup ---

// Lookup implements gate.ProfileLookup over registered profiles. Roles
// other than farmer, buyer and transporter return gate.ErrUnknownRole.
type Lookup struct{ s *state }

var _ gate.ProfileLookup = (*Lookup)(nil)

func (l *Lookup) Exists(ctx context.Context, role gate.Role, token string, user *gate.User) (bool, error) {
	role = gate.NormalizeRole(string(role))
	var userID string
	if user != nil {
		userID = user.ID
	}

	l.s.mu.Lock()
	l.s.calls = append(l.s.calls, Call{Role: role, Token: token, UserID: userID})
	hold := l.s.hold
	l.s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	switch role {
	case gate.RoleFarmer, gate.RoleBuyer, gate.RoleTransporter:
	default:
		return false, gate.ErrUnknownRole
	}

	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	if err := l.s.errs[role]; err != nil {
		return false, err
	}
	return l.s.profiles[role][userID], nil
}

// --- SessionReader ---

type session struct {
	token string
	user  *gate.User
}

func (s session) Token() string    { return s.token }
func (s session) User() *gate.User { return s.user }

// NewSession returns a read-only session holding token and user.
func NewSession(token string, user *gate.User) gate.SessionReader {
	return session{token: token, user: user}
}

// --- Navigator ---

// Navigator records Replace calls.
type Navigator struct {
	mu        sync.Mutex
	locations []string
}

var _ gate.Navigator = (*Navigator)(nil)

func (n *Navigator) Replace(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locations = append(n.locations, location)
}

// Locations returns every location navigated to, in order.
func (n *Navigator) Locations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.locations))
	copy(out, n.locations)
	return out
}

// --- Recorder ---

// Recorder implements gate.Recorder by counting observations.
type Recorder struct {
	mu        sync.Mutex
	decisions map[string]int // outcome → count
	lookups   map[string]int // result → count
}

var _ gate.Recorder = (*Recorder)(nil)

func (r *Recorder) RecordDecision(outcome, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decisions == nil {
		r.decisions = make(map[string]int)
	}
	r.decisions[outcome]++
}

func (r *Recorder) RecordLookup(_, result string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookups == nil {
		r.lookups = make(map[string]int)
	}
	r.lookups[result]++
}

// Decisions returns how many decisions with outcome were recorded.
func (r *Recorder) Decisions(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[outcome]
}

// Lookups returns how many lookups with result were recorded.
func (r *Recorder) Lookups(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups[result]
}
