// Package session persists the {token, user} pair written at login and read
// by the route gate.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("gate/session: not found")

// DefaultTTL is the session lifetime used when Store is built with ttl <= 0.
const DefaultTTL = 24 * time.Hour

// Data is what a backend persists per session id.
type Data struct {
	Token     string     `json:"token"`
	User      *gate.User `json:"user,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Backend defines the contract for pluggable session storage (memory, Redis).
type Backend interface {
	// Save stores data under id for ttl, replacing any previous value.
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error

	// Get returns the stored data, or ErrNotFound.
	Get(ctx context.Context, id string) (*Data, error)

	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// Record is a loaded session. It implements gate.SessionReader and is never
// mutated after Load.
type Record struct {
	ID        string
	ExpiresAt time.Time
	token     string
	user      *gate.User
}

// compile-time check
var _ gate.SessionReader = (*Record)(nil)

// Token returns the bearer token or "".
func (r *Record) Token() string {
	if r == nil {
		return ""
	}
	return r.token
}

// User returns the cached user record or nil.
func (r *Record) User() *gate.User {
	if r == nil || r.user == nil {
		return nil
	}
	u := *r.user
	return &u
}

// Anonymous returns a record with no token and no user.
func Anonymous() *Record { return &Record{} }

// Bearer returns an unpersisted record carrying only token, for API clients
// that send the token directly.
func Bearer(token string) *Record { return &Record{token: token} }

// Store creates, loads and destroys sessions over a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
}

// New creates a session Store.
func New(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: backend, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create persists a new session at login and returns its id.
func (s *Store) Create(ctx context.Context, token string, user *gate.User) (string, time.Time, error) {
	if token == "" {
		return "", time.Time{}, fmt.Errorf("gate/session: token cannot be empty")
	}
	id := uuid.NewString()
	expiresAt := time.Now().Add(s.ttl)
	data := Data{Token: token, User: user, ExpiresAt: expiresAt}

	if err := s.backend.Save(ctx, id, data, s.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("gate/session: %w", err)
	}
	return id, expiresAt, nil
}

// Load reads the session stored under id.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gate/session: %w", err)
	}
	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &Record{ID: id, ExpiresAt: data.ExpiresAt, token: data.Token, user: data.User}, nil
}

// Destroy removes the session at logout.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("gate/session: sessionID cannot be empty")
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("gate/session: %w", err)
	}
	return nil
}
