package config

import (
	"errors"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
)

// clearAllEnv blanks all DNSSWITCHER_ environment variables for clean test
// state. Empty values count as unset; t.Setenv restores them afterwards.
func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, EnvPrefix) {
			t.Setenv(key, "")
		}
	}
}

// setCredentials sets the only settings without a default.
func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDeviceUsername, "api")
	t.Setenv(EnvDevicePassword, "hunter2")
}

func loadValidationErrors(t *testing.T) []string {
	t.Helper()
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr.Errors
}

func TestLoad_MinimalConfig(t *testing.T) {
	clearAllEnv(t)
	setCredentials(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.LogFormat != DefaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, DefaultLogFormat)
	}
	if cfg.Host != DefaultHost || cfg.Port != DefaultPort {
		t.Errorf("listen = %s:%d, want %s:%d", cfg.Host, cfg.Port, DefaultHost, DefaultPort)
	}
	if cfg.HealthPort != DefaultHealthPort {
		t.Errorf("HealthPort = %d, want %d", cfg.HealthPort, DefaultHealthPort)
	}
	if cfg.Device.Host != DefaultDeviceHost {
		t.Errorf("Device.Host = %q, want %q", cfg.Device.Host, DefaultDeviceHost)
	}
	if cfg.Device.Transport != device.TransportAPI {
		t.Errorf("Device.Transport = %q, want api", cfg.Device.Transport)
	}
	if cfg.Device.Port != 8728 {
		t.Errorf("Device.Port = %d, want 8728", cfg.Device.Port)
	}
	if cfg.Device.Timeout != DefaultDeviceTimeout {
		t.Errorf("Device.Timeout = %v, want %v", cfg.Device.Timeout, DefaultDeviceTimeout)
	}
	if cfg.Device.SSHTunnel || cfg.Device.SSH != nil {
		t.Error("SSH tunnel should be off by default")
	}
	if got := cfg.CustomDNSString(); got != DefaultCustomDNS {
		t.Errorf("CustomDNS = %s, want %s", got, DefaultCustomDNS)
	}
	if cfg.OwnershipMarker != ownership.DefaultMarker {
		t.Errorf("OwnershipMarker = %q, want %q", cfg.OwnershipMarker, ownership.DefaultMarker)
	}
	if !cfg.AdoptExisting {
		t.Error("AdoptExisting should default to true")
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if cfg.DynamicLeaseStrategy != reconciler.StrategyCreateStatic {
		t.Errorf("DynamicLeaseStrategy = %q", cfg.DynamicLeaseStrategy)
	}
	if !cfg.TrustRealIP || !cfg.DNSProbe || cfg.DNSProbeName != "." {
		t.Errorf("TrustRealIP=%v DNSProbe=%v DNSProbeName=%q", cfg.TrustRealIP, cfg.DNSProbe, cfg.DNSProbeName)
	}
}

func TestLoad_DefaultPortPerTransport(t *testing.T) {
	tests := []struct {
		transport string
		want      int
	}{
		{"api", 8728},
		{"api-ssl", 8729},
		{"REST", 443},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			clearAllEnv(t)
			setCredentials(t)
			t.Setenv(EnvDeviceTransport, tt.transport)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			if cfg.Device.Port != tt.want {
				t.Errorf("Device.Port = %d, want %d", cfg.Device.Port, tt.want)
			}
		})
	}
}

func TestLoad_CompleteConfig(t *testing.T) {
	clearAllEnv(t)

	secretFile := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(secretFile, []byte("from-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "text")
	t.Setenv(EnvHost, "127.0.0.1")
	t.Setenv(EnvPort, "8000")
	t.Setenv(EnvHealthPort, "9000")
	t.Setenv(EnvTrustRealIP, "no")
	t.Setenv(EnvDeviceHost, "10.0.0.1")
	t.Setenv(EnvDevicePort, "8443")
	t.Setenv(EnvDeviceTransport, "rest")
	t.Setenv(EnvDeviceUsername, "admin")
	t.Setenv(EnvDevicePassword, "ignored")
	t.Setenv(EnvDevicePassword+"_FILE", secretFile)
	t.Setenv(EnvDeviceTLSSkipVerify, "true")
	t.Setenv(EnvDeviceTimeout, "3s")
	t.Setenv(EnvCustomDNS, "9.9.9.9, 1.1.1.1,9.9.9.9")
	t.Setenv(EnvOwnershipMarker, "Lab-Managed")
	t.Setenv(EnvAdoptExisting, "no")
	t.Setenv(EnvDynamicLeaseStrategy, "make-static")
	t.Setenv(EnvDryRun, "1")
	t.Setenv(EnvDNSProbe, "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 8000 || cfg.HealthPort != 9000 {
		t.Errorf("listeners = %s:%d health %d", cfg.Host, cfg.Port, cfg.HealthPort)
	}
	if cfg.TrustRealIP {
		t.Error("TrustRealIP should be false")
	}
	if cfg.Device.Password != "from-secret" {
		t.Errorf("Device.Password = %q, want the _FILE content", cfg.Device.Password)
	}
	if cfg.Device.Port != 8443 || !cfg.Device.TLSSkipVerify || cfg.Device.Timeout != 3*time.Second {
		t.Errorf("device = %+v", cfg.Device)
	}
	if got := cfg.CustomDNSString(); got != "9.9.9.9,1.1.1.1" {
		t.Errorf("CustomDNS = %s, want duplicates dropped", got)
	}
	if cfg.AdoptExisting || !cfg.DryRun || cfg.DNSProbe {
		t.Errorf("AdoptExisting=%v DryRun=%v DNSProbe=%v", cfg.AdoptExisting, cfg.DryRun, cfg.DNSProbe)
	}

	rc := cfg.ReconcilerConfig()
	if rc.Marker != "Lab-Managed" || rc.Strategy != reconciler.StrategyMakeStatic || rc.AdoptExisting || !rc.DryRun {
		t.Errorf("ReconcilerConfig() = %+v", rc)
	}
	if len(rc.Servers) != 2 || rc.Servers[0] != netip.MustParseAddr("9.9.9.9") {
		t.Errorf("ReconcilerConfig().Servers = %v", rc.Servers)
	}

	dc := cfg.DialConfig()
	if dc.Transport != device.TransportREST || dc.Host != "10.0.0.1" || dc.Port != 8443 || dc.Username != "admin" {
		t.Errorf("DialConfig() = %+v", dc)
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	clearAllEnv(t)

	errs := loadValidationErrors(t)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if !strings.HasPrefix(errs[0], EnvDeviceUsername) || !strings.HasPrefix(errs[1], EnvDevicePassword) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestLoad_MultipleErrors(t *testing.T) {
	clearAllEnv(t)
	setCredentials(t)
	t.Setenv(EnvLogLevel, "verbose")
	t.Setenv(EnvPort, "abc")
	t.Setenv(EnvDeviceTransport, "telnet")
	t.Setenv(EnvCustomDNS, "8.8.8.8,dns.google")
	t.Setenv(EnvDynamicLeaseStrategy, "steal")

	errs := loadValidationErrors(t)
	if len(errs) != 5 {
		t.Errorf("expected 5 errors, got %d: %v", len(errs), errs)
	}

	joined := strings.Join(errs, "\n")
	for _, key := range []string{EnvLogLevel, EnvPort, EnvDeviceTransport, EnvCustomDNS, EnvDynamicLeaseStrategy} {
		if !strings.Contains(joined, key) {
			t.Errorf("errors should mention %s: %v", key, errs)
		}
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	clearAllEnv(t)

	path := filepath.Join(t.TempDir(), "dnsswitcher.yml")
	content := `
device:
  host: 10.0.0.1
  username: from-file
  password: file-pass
dns:
  custom_servers: ["9.9.9.9"]
reconciler:
  dry_run: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvDeviceUsername, "from-env")
	t.Setenv(EnvDryRun, "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Device.Host != "10.0.0.1" || cfg.Device.Password != "file-pass" {
		t.Errorf("file values not applied: %+v", cfg.Device)
	}
	if cfg.Device.Username != "from-env" {
		t.Errorf("Username = %q, env should override the file", cfg.Device.Username)
	}
	if cfg.DryRun {
		t.Error("DryRun should be overridden to false by the environment")
	}
	if got := cfg.CustomDNSString(); got != "9.9.9.9" {
		t.Errorf("CustomDNS = %s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearAllEnv(t)
	setCredentials(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yml"))

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail when the config file is missing")
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Error("a missing file is a read error, not a validation error")
	}
}

func TestLoad_SSHTunnel(t *testing.T) {
	clearAllEnv(t)
	setCredentials(t)
	t.Setenv(EnvDeviceSSHTunnel, "true")
	t.Setenv(EnvDeviceSSHPrefix+"HOST", "jump.lan")
	t.Setenv(EnvDeviceSSHPrefix+"USER", "tunnel")
	t.Setenv(EnvDeviceSSHPrefix+"PASSWORD", "pw")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Device.SSH == nil || cfg.Device.SSH.Address() != "jump.lan:22" {
		t.Errorf("SSH = %+v", cfg.Device.SSH)
	}
}

func TestLoad_SSHTunnelIncomplete(t *testing.T) {
	clearAllEnv(t)
	setCredentials(t)
	t.Setenv(EnvDeviceSSHTunnel, "true")

	errs := loadValidationErrors(t)
	if len(errs) != 1 || !strings.HasPrefix(errs[0], EnvDeviceSSHPrefix) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestConfig_LogValue_HidesPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Device.Username = "api"
	cfg.Device.Password = "hunter2"

	var sb strings.Builder
	logger := slog.New(slog.NewTextHandler(&sb, nil))
	logger.Info("config", slog.Any("config", cfg))

	out := sb.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked into log output: %s", out)
	}
	if !strings.Contains(out, "config.device_user=api") {
		t.Errorf("expected device user in log output: %s", out)
	}
}
