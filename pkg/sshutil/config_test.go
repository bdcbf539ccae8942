package sshutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config with key file",
			config: Config{Host: "jump.lan", User: "admin", KeyFile: "/path/to/key"},
		},
		{
			name:   "valid config with password",
			config: Config{Host: "jump.lan", User: "admin", Password: "secret"},
		},
		{
			name:    "missing host",
			config:  Config{User: "admin", Password: "secret"},
			wantErr: true,
			errMsg:  "host is required",
		},
		{
			name:    "missing user",
			config:  Config{Host: "jump.lan", Password: "secret"},
			wantErr: true,
			errMsg:  "user is required",
		},
		{
			name:    "no auth method",
			config:  Config{Host: "jump.lan", User: "admin"},
			wantErr: true,
			errMsg:  "at least one authentication method required",
		},
		{
			name:    "port out of range",
			config:  Config{Host: "jump.lan", User: "admin", Password: "secret", Port: 70000},
			wantErr: true,
			errMsg:  "port must be between",
		},
		{
			name:    "negative timeout",
			config:  Config{Host: "jump.lan", User: "admin", Password: "secret", Timeout: -time.Second},
			wantErr: true,
			errMsg:  "timeout must be non-negative",
		},
		{
			name:    "strict checking without known_hosts",
			config:  Config{Host: "jump.lan", User: "admin", Password: "secret", StrictHostKeyChecking: true},
			wantErr: true,
			errMsg:  "known_hosts_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestConfig_Address(t *testing.T) {
	c := &Config{Host: "jump.lan"}
	if got := c.Address(); got != "jump.lan:22" {
		t.Errorf("Address() = %q, want jump.lan:22", got)
	}

	c.Port = 2222
	if got := c.Address(); got != "jump.lan:2222" {
		t.Errorf("Address() = %q, want jump.lan:2222", got)
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := &Config{}
	if c.GetTimeout() != DefaultSSHTimeout {
		t.Errorf("GetTimeout() = %v, want %v", c.GetTimeout(), DefaultSSHTimeout)
	}
	if c.GetKeepaliveInterval() != DefaultKeepaliveInterval {
		t.Errorf("GetKeepaliveInterval() = %v, want %v", c.GetKeepaliveInterval(), DefaultKeepaliveInterval)
	}

	c = &Config{Timeout: 5 * time.Second, KeepaliveInterval: time.Minute}
	if c.GetTimeout() != 5*time.Second {
		t.Errorf("GetTimeout() = %v, want 5s", c.GetTimeout())
	}
	if c.GetKeepaliveInterval() != time.Minute {
		t.Errorf("GetKeepaliveInterval() = %v, want 1m", c.GetKeepaliveInterval())
	}
}

func TestLoadConfig(t *testing.T) {
	const prefix = "TEST_TUNNEL_SSH_"

	t.Run("full settings", func(t *testing.T) {
		t.Setenv(prefix+"HOST", "jump.lan")
		t.Setenv(prefix+"PORT", "2222")
		t.Setenv(prefix+"USER", "admin")
		t.Setenv(prefix+"PASSWORD", "secret")
		t.Setenv(prefix+"TIMEOUT", "5")
		t.Setenv(prefix+"KEEPALIVE_INTERVAL", "30")
		t.Setenv(prefix+"STRICT_HOST_KEY_CHECKING", "TRUE")
		t.Setenv(prefix+"KNOWN_HOSTS_FILE", "/etc/ssh/known_hosts")

		cfg, err := LoadConfig(prefix)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Host != "jump.lan" || cfg.Port != 2222 || cfg.User != "admin" {
			t.Errorf("unexpected endpoint: %+v", cfg)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
		}
		if cfg.KeepaliveInterval != 30*time.Second {
			t.Errorf("KeepaliveInterval = %v, want 30s", cfg.KeepaliveInterval)
		}
		if !cfg.StrictHostKeyChecking || cfg.KnownHostsFile != "/etc/ssh/known_hosts" {
			t.Errorf("unexpected host key settings: %+v", cfg)
		}
	})

	t.Run("default port", func(t *testing.T) {
		t.Setenv(prefix+"HOST", "jump.lan")
		t.Setenv(prefix+"USER", "admin")
		t.Setenv(prefix+"PASSWORD", "secret")

		cfg, err := LoadConfig(prefix)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Port != DefaultSSHPort {
			t.Errorf("Port = %d, want %d", cfg.Port, DefaultSSHPort)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		t.Setenv(prefix+"HOST", "jump.lan")
		t.Setenv(prefix+"USER", "admin")
		t.Setenv(prefix+"PASSWORD", "secret")
		t.Setenv(prefix+"PORT", "ssh")

		if _, err := LoadConfig(prefix); err == nil {
			t.Error("LoadConfig() expected error for invalid port")
		}
	})

	t.Run("invalid timeout", func(t *testing.T) {
		t.Setenv(prefix+"HOST", "jump.lan")
		t.Setenv(prefix+"USER", "admin")
		t.Setenv(prefix+"PASSWORD", "secret")
		t.Setenv(prefix+"TIMEOUT", "5s")

		if _, err := LoadConfig(prefix); err == nil {
			t.Error("LoadConfig() expected error for invalid timeout")
		}
	})

	t.Run("missing required", func(t *testing.T) {
		t.Setenv(prefix+"HOST", "jump.lan")

		if _, err := LoadConfig(prefix); err == nil {
			t.Error("LoadConfig() expected validation error")
		}
	})
}

func TestGetEnvOrFile(t *testing.T) {
	t.Run("direct value", func(t *testing.T) {
		t.Setenv("TEST_SECRET", "direct")
		if got := getEnvOrFile("TEST_SECRET", "TEST_SECRET_FILE"); got != "direct" {
			t.Errorf("getEnvOrFile() = %q, want direct", got)
		}
	})

	t.Run("file takes precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("TEST_SECRET", "direct")
		t.Setenv("TEST_SECRET_FILE", path)
		if got := getEnvOrFile("TEST_SECRET", "TEST_SECRET_FILE"); got != "from-file" {
			t.Errorf("getEnvOrFile() = %q, want from-file", got)
		}
	})

	t.Run("unreadable file falls back", func(t *testing.T) {
		t.Setenv("TEST_SECRET", "direct")
		t.Setenv("TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
		if got := getEnvOrFile("TEST_SECRET", "TEST_SECRET_FILE"); got != "direct" {
			t.Errorf("getEnvOrFile() = %q, want direct", got)
		}
	})
}
