// Package jwks provides a gate.ClaimsDecoder that verifies RS256 tokens
// against a JWKS endpoint (RFC 7517).
//
// Keys are fetched on demand, cached, and refreshed when a token names an
// unknown kid or the cache is older than the refresh interval. Concurrent
// refreshes are coalesced.
package jwks

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/claims"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
)

// Verifier implements gate.ClaimsDecoder using JWKS public keys.
type Verifier struct {
	jwksURL         string
	httpClient      *http.Client
	refreshInterval time.Duration
	parser          *jwt.Parser

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid → public key
	lastFetch time.Time

	sf singleflight.Group
}

// compile-time check
var _ gate.ClaimsDecoder = (*Verifier)(nil)

// Option configures the Verifier.
type Option func(*Verifier)

// WithHTTPClient sets a custom HTTP client for fetching JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithRefreshInterval sets how often cached keys are refreshed.
// Default: 1 hour.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.refreshInterval = d }
}

// NewVerifier creates a new JWKS-based verifier.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:         jwksURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		refreshInterval: 1 * time.Hour,
		parser:          jwt.NewParser(jwt.WithExpirationRequired(), jwt.WithJSONNumber()),
		keys:            make(map[string]*rsa.PublicKey),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Decode validates a JWT and returns its claims.
func (v *Verifier) Decode(ctx context.Context, tokenString string) (*gate.Claims, error) {
	mc := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, mc, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return v.getKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("gate/jwks: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("gate/jwks: invalid token claims")
	}
	return claims.FromMap(mc), nil
}

// getKey returns the RSA public key for the given kid, fetching/refreshing as needed.
func (v *Verifier) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, found := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.refreshInterval
	v.mu.RUnlock()

	if found && !stale {
		return key, nil
	}

	_, err, _ := v.sf.Do("refresh", func() (interface{}, error) {
		return nil, v.refresh(ctx)
	})
	if err != nil {
		if found {
			return key, nil // stale key beats no key
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if key, ok := v.keys[kid]; ok {
		return key, nil
	}

	// No kid in the token header: fall back to any key
	if kid == "" {
		for _, k := range v.keys {
			return k, nil
		}
	}

	return nil, fmt.Errorf("gate/jwks: key not found for kid %q", kid)
}

// refresh fetches the JWKS from the configured URL and replaces the cache.
func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("gate/jwks: create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gate/jwks: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gate/jwks: fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gate/jwks: read: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return fmt.Errorf("gate/jwks: parse: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		k, ok := set.Key(i)
		if !ok || k.KeyType() != jwa.RSA {
			continue
		}
		if use := k.KeyUsage(); use != "" && use != "sig" {
			continue
		}
		var pub rsa.PublicKey
		if err := k.Raw(&pub); err != nil {
			continue // skip malformed keys
		}
		keys[k.KeyID()] = &pub
	}

	if len(keys) == 0 {
		return fmt.Errorf("gate/jwks: no valid RSA signing keys found")
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()

	return nil
}
