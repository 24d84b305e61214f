package gate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Role is a marketplace role. Values are always lower case.
type Role string

const (
	RoleFarmer      Role = "farmer"
	RoleBuyer       Role = "buyer"
	RoleTransporter Role = "transporter"
	RoleAdmin       Role = "admin"
)

// NormalizeRole lower-cases and trims a raw role string.
func NormalizeRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// NormalizeRoles normalizes every entry and drops empty ones.
func NormalizeRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if n := NormalizeRole(string(r)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Claims represents the claims decoded from a bearer token.
type Claims struct {
	Subject   string
	UserID    string
	Role      Role
	Email     string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Extra     map[string]any
}

// User is the cached user record written to the session at login.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

// UnmarshalJSON accepts the id as either a JSON string or a JSON number.
// Numbers are stored in base 10, so {"id":7} and {"id":"7"} are the same user.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		ID json.RawMessage `json:"id"`
		*plain
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := userID(aux.ID)
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func userID(raw json.RawMessage) (string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("gate: user id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return n.String(), nil
}

// Outcome is the state of a route activation.
type Outcome int

const (
	// OutcomeChecking means the profile lookup is still outstanding.
	OutcomeChecking Outcome = iota
	// OutcomeRedirectLogin sends the caller to the login view.
	OutcomeRedirectLogin
	// OutcomeRedirectProfile sends the caller to the role's profile-creation view.
	OutcomeRedirectProfile
	// OutcomeRender renders the wrapped view unmodified.
	OutcomeRender
	// OutcomeRetry is only produced under SurfaceRetry for transient lookup failures.
	OutcomeRetry
	// OutcomeCancelled means the activation was torn down before it settled.
	OutcomeCancelled
)

var outcomeNames = map[Outcome]string{
	OutcomeChecking:        "checking",
	OutcomeRedirectLogin:   "redirect_login",
	OutcomeRedirectProfile: "redirect_profile",
	OutcomeRender:          "render",
	OutcomeRetry:           "retry",
	OutcomeCancelled:       "cancelled",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (o Outcome) Terminal() bool {
	return o != OutcomeChecking
}

// Redirect reports whether the outcome carries a navigation target.
func (o Outcome) Redirect() bool {
	return o == OutcomeRedirectLogin || o == OutcomeRedirectProfile
}

// Decision is the result (or the current state) of a route activation.
type Decision struct {
	Outcome Outcome
	// Location is the replace-navigation target for redirect outcomes.
	Location string
	Role     Role
	Claims   *Claims
	// Err explains non-render outcomes. Nil for OutcomeRender and OutcomeChecking.
	Err error
}
