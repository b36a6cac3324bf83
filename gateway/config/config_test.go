package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsSecureByDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if !cfg.Auth.enabledSet {
		t.Fatalf("expected auth.enabled default to mark enabledSet true")
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false")
	}
	if cfg.Auth.SubjectClaim != "sub" {
		t.Fatalf("expected subject claim default sub, got %q", cfg.Auth.SubjectClaim)
	}
	if cfg.Auth.AdminScope != "escrow:admin" {
		t.Fatalf("expected admin scope default, got %q", cfg.Auth.AdminScope)
	}
}

func TestLoadAuthBlockRestoresClaimDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  hmacSecret: s3cret\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "s3cret", cfg.Auth.HMACSecret)
	require.Equal(t, "scope", cfg.Auth.ScopeClaim)
	require.Equal(t, "sub", cfg.Auth.SubjectClaim)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew)
	require.False(t, cfg.Auth.AllowAnonymous)
}

func TestLoadReadsSecretFromEnvironment(t *testing.T) {
	t.Setenv(SecretEnv, "from-env")
	path := writeConfig(t, "auth:\n  enabled: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
}

func TestLoadRequiresOptionalPathsWhenAllowAnonymousEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  allowAnonymous: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when auth.allowAnonymous is true without optional paths")
	}
}

func TestLoadDefaultsEnableAuthForSensitiveTLSConfig(t *testing.T) {
	yaml := "security:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true for TLS configuration")
	}
}

func TestLoadAllowsExplicitAuthDisabledForSensitiveTLSConfig(t *testing.T) {
	yaml := "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Fatalf("load config: %v", err)
	}
}

func TestLoadRejectsHalfConfiguredTLS(t *testing.T) {
	path := writeConfig(t, "security:\n  tlsCertFile: /etc/gateway/cert.pem\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be set together")
}

func TestLoadNormalizesOptionalPaths(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  allowAnonymous: true\n  optionalPaths:\n    - /v1/offers\n    - \"   /v1/disputes   \"\n"
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	expected := []string{"/v1/offers", "/v1/disputes"}
	if len(cfg.Auth.OptionalPaths) != len(expected) {
		t.Fatalf("expected %d optional paths, got %d", len(expected), len(cfg.Auth.OptionalPaths))
	}
	for i, path := range expected {
		if cfg.Auth.OptionalPaths[i] != path {
			t.Fatalf("optional path %d mismatch: expected %q, got %q", i, path, cfg.Auth.OptionalPaths[i])
		}
	}
}

func TestLoadRejectsOptionalPathsWithoutLeadingSlash(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  allowAnonymous: true\n  optionalPaths:\n    - v1/offers\n"
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for optional path without leading slash")
	}
}

func TestLoadRejectsNegativeRateLimits(t *testing.T) {
	yaml := "rateLimits:\n  - id: bad\n    burst: -1\n"
	path := writeConfig(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rateLimits[0]")
}

func TestValidateRejectsImplicitAnonymousAccess(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			Enabled:        true,
			OptionalPaths:  []string{"/v1/offers"},
			AllowAnonymous: true,
			enabledSet:     true,
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error when auth.allowAnonymous is true without explicit opt-in")
	}
	if !strings.Contains(err.Error(), "auth.allowAnonymous must be explicitly set") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMaxConnections(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.MaxConnections)

	cfg, err = Load(writeConfig(t, "maxConnections: 0\n"))
	require.NoError(t, err)
	require.Zero(t, cfg.MaxConnections)

	_, err = Load(writeConfig(t, "maxConnections: -1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "maxConnections")
}
