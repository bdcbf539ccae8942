package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInterpolateEnvVars(t *testing.T) {
	// Set up test environment variables
	os.Setenv("TEST_VAR", "test-value")
	os.Setenv("API_TOKEN", "secret123")
	defer os.Unsetenv("TEST_VAR")
	defer os.Unsetenv("API_TOKEN")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple variable",
			input:    "${TEST_VAR}",
			expected: "test-value",
		},
		{
			name:     "variable in string",
			input:    "prefix-${TEST_VAR}-suffix",
			expected: "prefix-test-value-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${TEST_VAR}:${API_TOKEN}",
			expected: "test-value:secret123",
		},
		{
			name:     "unset variable",
			input:    "${NONEXISTENT_VAR}",
			expected: "",
		},
		{
			name:     "default value",
			input:    "${NONEXISTENT_VAR:-default}",
			expected: "default",
		},
		{
			name:     "default value not used when set",
			input:    "${TEST_VAR:-default}",
			expected: "test-value",
		},
		{
			name:     "no variables",
			input:    "plain string",
			expected: "plain string",
		},
		{
			name:     "empty default",
			input:    "${NONEXISTENT:-}",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InterpolateEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_ROUTER_PASSWORD", "secret-from-env")

	path := writeConfigFile(t, "config.yml", `
logging:
  level: DEBUG
  format: text
server:
  host: 127.0.0.1
  port: 3001
  health_port: 8081
  trust_real_ip: false
device:
  host: 10.0.0.1
  transport: rest
  username: admin
  password: ${TEST_ROUTER_PASSWORD}
  tls_skip_verify: true
  timeout: 5s
reconciler:
  ownership_marker: Lab-Managed
  adopt_existing: false
  dynamic_lease_strategy: make-static
  dry_run: true
dns:
  custom_servers: ["9.9.9.9", "149.112.112.112"]
  probe: false
  probe_name: ${TEST_PROBE_NAME:-example.com}
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if fc.Device == nil || fc.Device.Password != "secret-from-env" {
		t.Errorf("device password not interpolated: %+v", fc.Device)
	}
	if fc.DNS == nil || fc.DNS.ProbeName != "example.com" {
		t.Errorf("probe_name default not applied: %+v", fc.DNS)
	}

	cfg := Defaults()
	if errs := fc.applyTo(cfg); len(errs) > 0 {
		t.Fatalf("applyTo() errors: %v", errs)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q, want debug/text", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 3001 || cfg.HealthPort != 8081 {
		t.Errorf("listeners = %s:%d health %d", cfg.Host, cfg.Port, cfg.HealthPort)
	}
	if cfg.TrustRealIP {
		t.Error("TrustRealIP should be false")
	}
	if cfg.Device.Host != "10.0.0.1" || cfg.Device.Transport != "rest" || cfg.Device.Username != "admin" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if !cfg.Device.TLSSkipVerify {
		t.Error("TLSSkipVerify should be true")
	}
	if cfg.Device.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Device.Timeout)
	}
	if cfg.OwnershipMarker != "Lab-Managed" || cfg.AdoptExisting || !cfg.DryRun {
		t.Errorf("reconciler settings = %q adopt=%v dry=%v", cfg.OwnershipMarker, cfg.AdoptExisting, cfg.DryRun)
	}
	if cfg.DynamicLeaseStrategy != "make-static" {
		t.Errorf("DynamicLeaseStrategy = %q", cfg.DynamicLeaseStrategy)
	}
	if got := cfg.CustomDNSString(); got != "9.9.9.9,149.112.112.112" {
		t.Errorf("CustomDNS = %s", got)
	}
	if cfg.DNSProbe {
		t.Error("DNSProbe should be false")
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeConfigFile(t, "config.toml", `
[logging]
level = "warn"

[device]
host = "router.lan"
port = 8729
transport = "api-ssl"
timeout = "15"

[dns]
custom_servers = ["1.1.1.1"]
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	cfg := Defaults()
	if errs := fc.applyTo(cfg); len(errs) > 0 {
		t.Fatalf("applyTo() errors: %v", errs)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Device.Host != "router.lan" || cfg.Device.Port != 8729 || cfg.Device.Transport != "api-ssl" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Device.Timeout)
	}
	if got := cfg.CustomDNSString(); got != "1.1.1.1" {
		t.Errorf("CustomDNS = %s", got)
	}
	// Unset sections keep defaults.
	if cfg.Port != DefaultPort || cfg.OwnershipMarker != Defaults().OwnershipMarker {
		t.Errorf("defaults lost: port %d marker %q", cfg.Port, cfg.OwnershipMarker)
	}
}

func TestFileConfig_applyTo_Invalid(t *testing.T) {
	fc := &FileConfig{
		Device: &FileDeviceConfig{Timeout: "soon"},
		DNS:    &FileDNSConfig{CustomServers: []string{"8.8.8.8", "2001:db8::1"}},
	}

	cfg := Defaults()
	errs := fc.applyTo(cfg)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !strings.HasPrefix(errs[0], "device.timeout") || !strings.HasPrefix(errs[1], "dns.custom_servers") {
		t.Errorf("unexpected errors: %v", errs)
	}
	if cfg.Device.Timeout != DefaultDeviceTimeout || cfg.CustomDNSString() != DefaultCustomDNS {
		t.Error("invalid values should leave defaults in place")
	}
}

func TestLoadFileInvalidTOML(t *testing.T) {
	path := writeConfigFile(t, "bad.toml", "[device\nhost = ")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile should fail for invalid TOML")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yml")
	if err == nil {
		t.Error("LoadFile should fail for nonexistent file")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yml")
	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Error("LoadFile should fail for invalid YAML")
	}
}

func TestGetConfigFilePath(t *testing.T) {
	// Test with no env var set
	os.Unsetenv("DNSSWITCHER_CONFIG")
	path := GetConfigFilePath()
	if path != "" {
		t.Errorf("GetConfigFilePath() = %q, want empty string", path)
	}

	// Test with env var set
	os.Setenv("DNSSWITCHER_CONFIG", "/path/to/config.yml")
	defer os.Unsetenv("DNSSWITCHER_CONFIG")
	path = GetConfigFilePath()
	if path != "/path/to/config.yml" {
		t.Errorf("GetConfigFilePath() = %q, want %q", path, "/path/to/config.yml")
	}
}
