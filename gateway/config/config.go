package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RateLimitConfig struct {
	ID                string   `yaml:"id"`
	RequestsPerMinute float64  `yaml:"requestsPerMinute"`
	RatePerSecond     float64  `yaml:"ratePerSecond"`
	Burst             int      `yaml:"burst"`
	Paths             []string `yaml:"paths"`
}

type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Config is the gateway configuration. MaxConnections caps concurrently
// accepted connections; zero means unlimited.
type Config struct {
	ListenAddress  string              `yaml:"listen"`
	ReadTimeout    time.Duration       `yaml:"readTimeout"`
	WriteTimeout   time.Duration       `yaml:"writeTimeout"`
	IdleTimeout    time.Duration       `yaml:"idleTimeout"`
	MaxConnections int                 `yaml:"maxConnections"`
	RateLimits     []RateLimitConfig   `yaml:"rateLimits"`
	Observability  ObservabilityConfig `yaml:"observability"`
	Auth           AuthConfig          `yaml:"auth"`
	Security       SecurityConfig      `yaml:"security"`
	CORS           CORSConfig          `yaml:"cors"`
}

// AuthConfig controls bearer token validation. The caller address of every
// mutating request is read from SubjectClaim; AdminScope marks tokens that
// may submit admin approvals.
type AuthConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HMACSecret        string        `yaml:"hmacSecret"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	ScopeClaim        string        `yaml:"scopeClaim"`
	SubjectClaim      string        `yaml:"subjectClaim"`
	AdminScope        string        `yaml:"adminScope"`
	OptionalPaths     []string      `yaml:"optionalPaths"`
	AllowAnonymous    bool          `yaml:"allowAnonymous"`
	ClockSkew         time.Duration `yaml:"clockSkew"`
	allowAnonymousSet bool          `yaml:"-"`
	enabledSet        bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		ScopeClaim     string        `yaml:"scopeClaim"`
		SubjectClaim   string        `yaml:"subjectClaim"`
		AdminScope     string        `yaml:"adminScope"`
		OptionalPaths  []string      `yaml:"optionalPaths"`
		AllowAnonymous *bool         `yaml:"allowAnonymous"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.Enabled, a.enabledSet = false, false
	if raw.Enabled != nil {
		a.Enabled, a.enabledSet = *raw.Enabled, true
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.SubjectClaim = raw.SubjectClaim
	a.AdminScope = raw.AdminScope
	a.OptionalPaths = raw.OptionalPaths
	a.AllowAnonymous, a.allowAnonymousSet = false, false
	if raw.AllowAnonymous != nil {
		a.AllowAnonymous, a.allowAnonymousSet = *raw.AllowAnonymous, true
	}
	a.ClockSkew = raw.ClockSkew
	return nil
}

type SecurityConfig struct {
	TLSCertFile     string `yaml:"tlsCertFile"`
	TLSKeyFile      string `yaml:"tlsKeyFile"`
	TLSClientCAFile string `yaml:"tlsClientCAFile"`
	// DevCallerHeader names a header trusted as the caller address when
	// auth is disabled. Ignored when auth is enabled.
	DevCallerHeader string `yaml:"devCallerHeader"`
}

// SecretEnv supplies auth.hmacSecret when the file leaves it empty.
const SecretEnv = "P2PESCROW_GATEWAY_HMAC_SECRET"

const (
	defaultScopeClaim   = "scope"
	defaultSubjectClaim = "sub"
	defaultAdminScope   = "escrow:admin"
	defaultClockSkew    = 2 * time.Minute
)

// Default returns the gateway configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress:  ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxConnections: 1024,
		RateLimits: []RateLimitConfig{{
			ID:                "mutations",
			RequestsPerMinute: 120,
			Burst:             20,
			Paths:             []string{"/v1/offers", "/v1/disputes", "/v1/rewards"},
		}},
		Observability: ObservabilityConfig{
			ServiceName:   "p2pescrow-gateway",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "gateway",
		},
		Auth: AuthConfig{
			Enabled:      true,
			ScopeClaim:   defaultScopeClaim,
			SubjectClaim: defaultSubjectClaim,
			AdminScope:   defaultAdminScope,
			ClockSkew:    defaultClockSkew,
			enabledSet:   true,
		},
		Security: SecurityConfig{DevCallerHeader: "X-Caller-Address"},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyAuthDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyAuthDefaults() {
	if cfg == nil {
		return
	}
	if !cfg.Auth.enabledSet {
		cfg.Auth.Enabled = true
		cfg.Auth.enabledSet = true
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = defaultClockSkew
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = defaultScopeClaim
	}
	if cfg.Auth.SubjectClaim == "" {
		cfg.Auth.SubjectClaim = defaultSubjectClaim
	}
	if cfg.Auth.AdminScope == "" {
		cfg.Auth.AdminScope = defaultAdminScope
	}
	if !cfg.Auth.allowAnonymousSet {
		cfg.Auth.AllowAnonymous = false
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		cfg.Auth.HMACSecret = os.Getenv(SecretEnv)
	}
}

var ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set for sensitive deployments")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.isSensitiveDeployment() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.AllowAnonymous && !cfg.Auth.allowAnonymousSet {
		return fmt.Errorf("auth.allowAnonymous must be explicitly set to true to enable anonymous access")
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(trimmedPath, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = trimmedPath
	}
	cfg.Auth.OptionalPaths = trimmed
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous && len(cfg.Auth.OptionalPaths) == 0 {
		return fmt.Errorf("auth.optionalPaths must list at least one entry when auth.allowAnonymous is true")
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("maxConnections must not be negative")
	}
	for i, rl := range cfg.RateLimits {
		if rl.RequestsPerMinute < 0 || rl.RatePerSecond < 0 || rl.Burst < 0 {
			return fmt.Errorf("rateLimits[%d] values must not be negative", i)
		}
	}
	if (cfg.Security.TLSCertFile == "") != (cfg.Security.TLSKeyFile == "") {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	return nil
}

func (cfg *Config) isSensitiveDeployment() bool {
	if cfg == nil {
		return false
	}
	if strings.TrimSpace(cfg.Security.TLSCertFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSKeyFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSClientCAFile) != "" {
		return true
	}
	return false
}
