package gate

import "context"

//go:generate mockgen -destination=mocks/gate.go -package=mocks github.com/agroconnect/gate-go Auditor,ClaimsDecoder,ProfileLookup

// SessionReader is the read-only view of the persisted session.
// Implementations: session.Record, fake.NewSession.
type SessionReader interface {
	// Token returns the bearer token, or "" when the session has none.
	Token() string

	// User returns the cached user record, or nil when absent.
	User() *User
}

// ClaimsDecoder turns a bearer token into claims.
// Implementations: claims/ (unverified, HMAC), jwks/ (RS256 via JWKS), fake/.
type ClaimsDecoder interface {
	// Decode returns the token's claims. Any error is treated as "no claims".
	Decode(ctx context.Context, token string) (*Claims, error)
}

// ProfileLookup checks whether the caller has a role-specific profile.
// Implementations: profile/ (HTTP), fake/.
type ProfileLookup interface {
	// Exists issues one lookup against the endpoint mapped to role.
	// It returns ErrUnknownRole when no endpoint is mapped.
	Exists(ctx context.Context, role Role, token string, user *User) (bool, error)
}

// Navigator performs a replace navigation (no new history entry).
type Navigator interface {
	Replace(location string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(location string)

// Replace calls f(location).
func (f NavigatorFunc) Replace(location string) { f(location) }

// Recorder receives guard observations. Implemented by metrics.Metrics.
type Recorder interface {
	RecordDecision(outcome string, role string)
	RecordLookup(role string, result string, durationSeconds float64)
}

// Auditor receives one event per settled activation. Implemented by audit.Logger.
type Auditor interface {
	Decision(ctx context.Context, d Decision, user *User)
}
