package sshutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default tunnel configuration values.
const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHTimeout is the default connection timeout.
	DefaultSSHTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the default SSH keepalive interval.
	DefaultKeepaliveInterval = 15 * time.Second
)

// Config holds the settings of the SSH hop used to reach the device.
type Config struct {
	// Host is the SSH server hostname or IP address (required).
	Host string

	// Port is the SSH server port (default: 22).
	Port int

	// User is the SSH username (required).
	User string

	// KeyFile is the path to the SSH private key file.
	// Either KeyFile, KeyData, or Password must be provided.
	KeyFile string

	// KeyData is the SSH private key content directly.
	KeyData string

	// KeyPassphrase is the passphrase for encrypted SSH keys (optional).
	KeyPassphrase string

	// Password is the SSH password for password authentication.
	Password string

	// Timeout is the SSH connection timeout (default: 30s).
	Timeout time.Duration

	// KeepaliveInterval is the interval for SSH keepalive messages (default: 15s).
	KeepaliveInterval time.Duration

	// KnownHostsFile is the known_hosts file used when StrictHostKeyChecking is set.
	KnownHostsFile string

	// StrictHostKeyChecking enables host key verification against KnownHostsFile.
	// When false, host keys are not verified.
	StrictHostKeyChecking bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}

	if c.User == "" {
		errs = append(errs, "user is required")
	}

	if c.KeyFile == "" && c.KeyData == "" && c.Password == "" {
		errs = append(errs, "at least one authentication method required (key_file, key_data, or password)")
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if c.KeepaliveInterval < 0 {
		errs = append(errs, "keepalive_interval must be non-negative")
	}

	if c.StrictHostKeyChecking && c.KnownHostsFile == "" {
		errs = append(errs, "known_hosts_file is required when strict_host_key_checking is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ssh config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the SSH server address in host:port format.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultSSHTimeout
}

// GetKeepaliveInterval returns the configured keepalive interval or the default.
func (c *Config) GetKeepaliveInterval() time.Duration {
	if c.KeepaliveInterval > 0 {
		return c.KeepaliveInterval
	}
	return DefaultKeepaliveInterval
}

// LoadConfig reads tunnel settings from {prefix}{SETTING} environment variables.
//
// Supported settings:
//   - HOST, PORT, USER
//   - KEY_FILE, KEY_DATA, KEY_PASSPHRASE, PASSWORD (each supports a _FILE suffix)
//   - TIMEOUT, KEEPALIVE_INTERVAL: seconds
//   - KNOWN_HOSTS_FILE, STRICT_HOST_KEY_CHECKING
func LoadConfig(prefix string) (*Config, error) {
	config := &Config{
		Host:           os.Getenv(prefix + "HOST"),
		User:           os.Getenv(prefix + "USER"),
		KeyFile:        getEnvOrFile(prefix+"KEY_FILE", prefix+"KEY_FILE_FILE"),
		KeyData:        getEnvOrFile(prefix+"KEY_DATA", prefix+"KEY_DATA_FILE"),
		KeyPassphrase:  getEnvOrFile(prefix+"KEY_PASSPHRASE", prefix+"KEY_PASSPHRASE_FILE"),
		Password:       getEnvOrFile(prefix+"PASSWORD", prefix+"PASSWORD_FILE"),
		KnownHostsFile: os.Getenv(prefix + "KNOWN_HOSTS_FILE"),
		Port:           DefaultSSHPort,
	}

	if portStr := os.Getenv(prefix + "PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value %q: %w", portStr, err)
		}
		config.Port = port
	}

	var err error
	if config.Timeout, err = secondsEnv(prefix + "TIMEOUT"); err != nil {
		return nil, err
	}
	if config.KeepaliveInterval, err = secondsEnv(prefix + "KEEPALIVE_INTERVAL"); err != nil {
		return nil, err
	}

	if strictStr := os.Getenv(prefix + "STRICT_HOST_KEY_CHECKING"); strictStr != "" {
		config.StrictHostKeyChecking = strings.EqualFold(strictStr, "true")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func secondsEnv(key string) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// getEnvOrFile prefers the file named by fileKey (Docker secrets) over the
// direct value. File contents are trimmed.
func getEnvOrFile(directKey, fileKey string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return os.Getenv(directKey)
}
