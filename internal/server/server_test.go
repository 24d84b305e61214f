package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/fake"
	"github.com/agroconnect/gate-go/internal/config"
	"github.com/agroconnect/gate-go/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Gate: config.GateConfig{
			LoginPath:               gate.DefaultLoginPath,
			ProfileCreationTemplate: gate.DefaultProfileCreationTemplate,
			LookupTimeout:           time.Second,
		},
		Auth:    config.AuthConfig{Mode: "unverified"},
		Profile: config.ProfileConfig{BaseURL: "http://profiles.invalid", Timeout: time.Second},
		Session: config.SessionConfig{Backend: "memory", TTL: time.Hour},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Audit:   config.AuditConfig{Enabled: true, Buffer: 16},
	}
}

type testServer struct {
	*Server
	backend *fake.Backend
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *testServer {
	t.Helper()
	b := fake.New(
		fake.WithToken("tok-farmer", gate.RoleFarmer, "7"),
		fake.WithToken("tok-buyer", gate.RoleBuyer, "8"),
		fake.WithToken("tok-transporter", gate.RoleTransporter, "9"),
		fake.WithProfile(gate.RoleFarmer, "7"),
		fake.WithProfile(gate.RoleTransporter, "9"),
	)
	base := []Option{
		WithClaimsDecoder(b.Decoder()),
		WithProfileLookup(b.Lookup()),
		WithRegistry(prometheus.NewRegistry()),
	}
	s, err := New(cfg, zap.NewNop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Guard().Close() })
	return &testServer{Server: s, backend: b}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

// login posts credentials and returns the session cookie.
func (ts *testServer) login(t *testing.T, token, userID string) *http.Cookie {
	t.Helper()
	return ts.loginJSON(t, `{"token":"`+token+`","user":{"id":"`+userID+`"}}`)
}

func (ts *testServer) loginJSON(t *testing.T, body string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func get(path string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(get("/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = ts.do(get("/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFarmerFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.login(t, "tok-farmer", "7")

	w := ts.do(get("/farmer-dashboard", cookie))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "farmer-dashboard", body["view"])
	assert.Equal(t, "7", body["user_id"])
	assert.Equal(t, "farmer", body["role"])
	assert.Equal(t, 1, ts.backend.CallCount())
}

func TestLogin_NumericUserID(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.loginJSON(t, `{"token":"tok-farmer","user":{"id":7,"role":"Farmer"}}`)

	w := ts.do(get("/farmer-dashboard", cookie))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "7", body["user_id"])

	calls := ts.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "7", calls[0].UserID)
}

func TestAnonymousRedirectsToLogin(t *testing.T) {
	ts := newTestServer(t, testConfig())

	for _, path := range []string{"/farmer-dashboard", "/buyer-profile", "/transporter-dashboard", "/create-farmer-profile"} {
		w := ts.do(get(path, nil))
		assert.Equal(t, http.StatusSeeOther, w.Code, path)
		assert.Equal(t, "/login", w.Header().Get("Location"), path)
	}
	assert.Equal(t, 0, ts.backend.CallCount())
}

func TestBuyerWithoutProfile(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.login(t, "tok-buyer", "8")

	w := ts.do(get("/buyer-dashboard", cookie))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/create-buyer-profile", w.Header().Get("Location"))

	w = ts.do(get("/create-buyer-profile", cookie))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.backend.CallCount())
}

func TestWrongRoleGoesToLogin(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.login(t, "tok-transporter", "9")

	w := ts.do(get("/farmer-dashboard", cookie))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = ts.do(get("/transporter-profile", cookie))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_InvalidBody(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"user":{"id":"1"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.login(t, "tok-farmer", "7")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	w := ts.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(get("/farmer-dashboard", cookie))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = ts.do(get("/logout", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig())
	cookie := ts.login(t, "tok-farmer", "7")
	ts.do(get("/farmer-dashboard", cookie))

	w := ts.do(get("/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, `agrogate_decisions_total{outcome="render",role="farmer"} 1`)
	assert.Contains(t, out, `agrogate_session_operations_total{op="create",result="ok"} 1`)
	assert.Contains(t, out, `agrogate_profile_lookups_total{result="found",role="farmer"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	ts := newTestServer(t, cfg)

	w := ts.do(get("/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	ts := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, ts.do(get("/health", nil)).Code)
	assert.Equal(t, http.StatusOK, ts.do(get("/health", nil)).Code)
	w := ts.do(get("/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Session.Backend = "redis"
	cfg.Session.Redis.Prefix = "test:session:"
	ts := newTestServer(t, cfg, WithRedisClient(client))

	cookie := ts.login(t, "tok-farmer", "7")
	assert.True(t, mr.Exists("test:session:"+cookie.Value))

	w := ts.do(get("/farmer-profile", cookie))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(get("/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	mr.Close()
	w = ts.do(get("/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Backend = "redis"
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})

	b := fake.New()
	_, err := New(cfg, zap.NewNop(),
		WithClaimsDecoder(b.Decoder()),
		WithProfileLookup(b.Lookup()),
		WithRedisClient(client),
		WithRegistry(prometheus.NewRegistry()),
	)
	assert.Error(t, err)
}

func TestNew_DecoderFromConfig(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"unverified", false},
		{"hmac", false},
		{"jwks", false},
		{"saml", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			d, err := NewDecoder(config.AuthConfig{Mode: tt.mode, HMACSecret: "s", JWKSURL: "http://keys.invalid"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestProfileClientFromConfig(t *testing.T) {
	var gotPath, gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"profile":{"id":1}}`))
	}))
	defer api.Close()

	cfg := testConfig()
	cfg.Profile.BaseURL = api.URL + "/"
	cfg.Profile.Endpoints = map[string]string{"Buyer": api.URL + "/v2/buyers/me"}

	b := fake.New(fake.WithToken("tok-buyer", gate.RoleBuyer, "8"))
	s, err := New(cfg, zap.NewNop(), WithClaimsDecoder(b.Decoder()), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer s.Guard().Close()

	req := get("/buyer-dashboard", nil)
	req.Header.Set("Authorization", "Bearer tok-buyer")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/v2/buyers/me", gotPath)
	assert.Equal(t, "Bearer tok-buyer", gotAuth)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, get("/health", nil))
	assert.JSONEq(t, `{"status":"ok","profile_breaker":"closed"}`, w.Body.String())
}

func TestStartShutdown(t *testing.T) {
	ts := newTestServer(t, testConfig())

	errCh := make(chan error, 1)
	go func() { errCh <- ts.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ts.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
