package config

import (
	"testing"
	"time"
)

func TestApplyEnv_CaseInsensitive(t *testing.T) {
	clearAllEnv(t)
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvLogFormat, "Text")
	t.Setenv(EnvDeviceTransport, "API-SSL")
	t.Setenv(EnvDynamicLeaseStrategy, "Make-Static")

	cfg := Defaults()
	if errs := applyEnv(cfg); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.LogLevel != "warn" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Device.Transport != "api-ssl" || cfg.DynamicLeaseStrategy != "make-static" {
		t.Errorf("transport %q strategy %q", cfg.Device.Transport, cfg.DynamicLeaseStrategy)
	}
}

func TestApplyEnv_InvalidBoolKeepsValue(t *testing.T) {
	clearAllEnv(t)
	t.Setenv(EnvTrustRealIP, "maybe")
	t.Setenv(EnvDryRun, "perhaps")

	cfg := Defaults()
	applyEnv(cfg)

	if !cfg.TrustRealIP {
		t.Error("TrustRealIP should keep its default on an unparseable value")
	}
	if cfg.DryRun {
		t.Error("DryRun should keep its default on an unparseable value")
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", EnvPort, "http"},
		{"health port not a number", EnvHealthPort, "80a"},
		{"device port not a number", EnvDevicePort, "api"},
		{"timeout garbage", EnvDeviceTimeout, "later"},
		{"ipv6 server", EnvCustomDNS, "2001:4860:4860::8888"},
		{"hostname server", EnvCustomDNS, "dns.google"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg := Defaults()
			errs := applyEnv(cfg)
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}
			if got := errs[0]; len(got) < len(tt.key) || got[:len(tt.key)] != tt.key {
				t.Errorf("error %q should start with %s", got, tt.key)
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"10s", 10 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"15", 15 * time.Second, false},
		{" 5 ", 5 * time.Second, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := parseTimeout(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimeout(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTimeout(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseServers(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"8.8.8.8", []string{"8.8.8.8"}, false},
		{"8.8.8.8,8.8.4.4", []string{"8.8.8.8", "8.8.4.4"}, false},
		{" 1.1.1.1 , ,1.0.0.1,1.1.1.1", []string{"1.1.1.1", "1.0.0.1"}, false},
		{"::ffff:9.9.9.9", []string{"9.9.9.9"}, false},
		{"", nil, false},
		{"8.8.8.8,fe80::1", nil, true},
		{"256.1.1.1", nil, true},
	}

	for _, tt := range tests {
		got, err := parseServers(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseServers(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseServers(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].String() != tt.want[i] {
				t.Errorf("parseServers(%q)[%d] = %s, want %s", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}
