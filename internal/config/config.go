// Package config loads agrogate configuration from YAML and environment.
//
// Files named agrogate.yaml are looked up in ./configs and /etc/agrogate.
// Every key can be overridden from the environment with the AGROGATE_
// prefix, dots replaced by underscores (AGROGATE_SERVER_PORT).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig    `mapstructure:"server"`
	Gate    GateConfig      `mapstructure:"gate"`
	Auth    AuthConfig      `mapstructure:"auth"`
	Profile ProfileConfig   `mapstructure:"profile"`
	Session SessionConfig   `mapstructure:"session"`
	Metrics MetricsConfig   `mapstructure:"metrics"`
	Audit   AuditConfig     `mapstructure:"audit"`
	Logger  logger.Config   `mapstructure:"logger"`
	Limit   RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type GateConfig struct {
	LoginPath               string            `mapstructure:"login_path"`
	ProfileCreationTemplate string            `mapstructure:"profile_creation_template"`
	ProfileCreationPaths    map[string]string `mapstructure:"profile_creation_paths"`
	LookupTimeout           time.Duration     `mapstructure:"lookup_timeout"`
	LookupFailurePolicy     string            `mapstructure:"lookup_failure_policy"` // fail_closed or surface_retry
}

// GuardConfig converts to the library configuration.
func (g GateConfig) GuardConfig() (gate.Config, error) {
	cfg := gate.Config{
		LoginPath:               g.LoginPath,
		ProfileCreationTemplate: g.ProfileCreationTemplate,
		LookupTimeout:           g.LookupTimeout,
	}
	if len(g.ProfileCreationPaths) > 0 {
		cfg.ProfileCreationPaths = make(map[gate.Role]string, len(g.ProfileCreationPaths))
		for r, p := range g.ProfileCreationPaths {
			cfg.ProfileCreationPaths[gate.NormalizeRole(r)] = p
		}
	}
	switch strings.ToLower(g.LookupFailurePolicy) {
	case "", "fail_closed":
		cfg.LookupFailurePolicy = gate.FailClosed
	case "surface_retry":
		cfg.LookupFailurePolicy = gate.SurfaceRetry
	default:
		return gate.Config{}, fmt.Errorf("config: unknown gate.lookup_failure_policy %q", g.LookupFailurePolicy)
	}
	return cfg, nil
}

type AuthConfig struct {
	Mode        string        `mapstructure:"mode"` // unverified, hmac or jwks
	HMACSecret  string        `mapstructure:"hmac_secret"`
	JWKSURL     string        `mapstructure:"jwks_url"`
	JWKSRefresh time.Duration `mapstructure:"jwks_refresh"`
}

type ProfileConfig struct {
	BaseURL   string            `mapstructure:"base_url"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Breaker   BreakerConfig     `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type SessionConfig struct {
	Backend      string        `mapstructure:"backend"` // memory or redis
	TTL          time.Duration `mapstructure:"ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Buffer  int  `mapstructure:"buffer"`
}

// Load reads configuration. An explicit file path, when non-empty, replaces
// the default search paths and must exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGROGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("agrogate")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/agrogate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "unverified":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return errors.New("config: auth.hmac_secret is required for hmac mode")
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return errors.New("config: auth.jwks_url is required for jwks mode")
		}
	default:
		return fmt.Errorf("config: unknown auth.mode %q", c.Auth.Mode)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session.backend %q", c.Session.Backend)
	}
	if c.Profile.BaseURL == "" && len(c.Profile.Endpoints) == 0 {
		return errors.New("config: profile.base_url or profile.endpoints is required")
	}
	if _, err := c.Gate.GuardConfig(); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("gate.login_path", gate.DefaultLoginPath)
	v.SetDefault("gate.profile_creation_template", gate.DefaultProfileCreationTemplate)
	v.SetDefault("gate.lookup_timeout", gate.DefaultLookupTimeout)
	v.SetDefault("gate.lookup_failure_policy", "fail_closed")

	v.SetDefault("auth.mode", "unverified")
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.jwks_refresh", time.Hour)

	v.SetDefault("profile.base_url", "http://localhost:8080")
	v.SetDefault("profile.timeout", 10*time.Second)
	v.SetDefault("profile.breaker.max_requests", 1)
	v.SetDefault("profile.breaker.interval", 30*time.Second)
	v.SetDefault("profile.breaker.timeout", 15*time.Second)
	v.SetDefault("profile.breaker.failure_ratio", 0.5)
	v.SetDefault("profile.breaker.min_requests", 5)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "agrogate:session:")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer", 1000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)
}
