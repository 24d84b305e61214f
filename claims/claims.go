// Package claims provides gate.ClaimsDecoder implementations built on
// golang-jwt.
//
// Unverified reads the token payload without checking the signature, which
// is what a browser-side guard can do. HMAC verifies tokens signed with the
// marketplace backend's shared secret.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/golang-jwt/jwt/v5"
)

// Unverified returns a decoder that parses the payload segment without
// signature verification.
func Unverified() gate.ClaimsDecoder {
	return unverified{parser: jwt.NewParser(jwt.WithJSONNumber())}
}

type unverified struct{ parser *jwt.Parser }

func (u unverified) Decode(_ context.Context, token string) (*gate.Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := u.parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("gate/claims: %w", err)
	}
	return FromMap(mc), nil
}

// HMACDecoder verifies HS256/HS384/HS512 tokens with a shared secret.
type HMACDecoder struct {
	secret []byte
	parser *jwt.Parser
}

// compile-time check
var _ gate.ClaimsDecoder = (*HMACDecoder)(nil)

// HMAC creates a verifying decoder. Extra parser options (leeway, issuer,
// expiration required) are appended to the defaults.
func HMAC(secret []byte, opts ...jwt.ParserOption) *HMACDecoder {
	base := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithJSONNumber(),
	}
	return &HMACDecoder{
		secret: secret,
		parser: jwt.NewParser(append(base, opts...)...),
	}
}

// Decode verifies the signature and standard time claims.
func (h *HMACDecoder) Decode(_ context.Context, token string) (*gate.Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := h.parser.ParseWithClaims(token, mc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gate/claims: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("gate/claims: invalid token")
	}
	return FromMap(mc), nil
}

// standard lists claim names that are mapped onto gate.Claims fields and
// therefore kept out of Extra. Compared case-insensitively.
var standard = map[string]bool{
	"sub": true, "iss": true, "exp": true, "iat": true, "nbf": true,
	"aud": true, "jti": true, "email": true, "role": true,
	"user_id": true, "userid": true,
}

// FromMap converts raw token claims to gate.Claims. The role is read from the
// "role" claim under any capitalization and normalized to lower case; the user
// id is taken from "user_id" (any case), "UserID" or "sub".
func FromMap(m map[string]any) *gate.Claims {
	c := &gate.Claims{Extra: make(map[string]any)}

	if v, ok := lookupFold(m, "sub"); ok {
		c.Subject = stringOf(v)
	}
	if v, ok := lookupFold(m, "iss"); ok {
		c.Issuer = stringOf(v)
	}
	if v, ok := lookupFold(m, "email"); ok {
		c.Email = stringOf(v)
	}
	if v, ok := lookupFold(m, "role"); ok {
		c.Role = gate.NormalizeRole(stringOf(v))
	}
	if v, ok := lookupFold(m, "user_id", "userid"); ok {
		c.UserID = stringOf(v)
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	if t, ok := timeOf(m, "exp"); ok {
		c.ExpiresAt = t
	}
	if t, ok := timeOf(m, "iat"); ok {
		c.IssuedAt = t
	}

	for k, v := range m {
		if !standard[strings.ToLower(k)] {
			c.Extra[k] = v
		}
	}
	return c
}

// lookupFold returns the first claim whose key matches one of names,
// ignoring case. Exact matches win over folded ones.
func lookupFold(m map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v, true
		}
	}
	for k, v := range m {
		for _, n := range names {
			if strings.EqualFold(k, n) {
				return v, true
			}
		}
	}
	return nil, false
}

func timeOf(m map[string]any, name string) (time.Time, bool) {
	v, ok := lookupFold(m, name)
	if !ok {
		return time.Time{}, false
	}
	var secs float64
	switch n := v.(type) {
	case float64:
		secs = n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	case int64:
		secs = float64(n)
	case int:
		secs = float64(n)
	default:
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), true
}

// stringOf renders ids and strings uniformly. Integral numbers are printed
// without a fractional part so that 7 and "7" compare equal.
func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		if i, err := s.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return s.String()
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case uint:
		return strconv.FormatUint(uint64(s), 10)
	default:
		return fmt.Sprint(s)
	}
}

// StringOf exposes the id rendering used for claims so other packages compare
// ids the same way.
func StringOf(v any) string { return stringOf(v) }
