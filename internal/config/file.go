package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
)

// FileConfig represents the configuration file structure, in YAML or TOML.
// Pointer fields distinguish unset from false.
type FileConfig struct {
	Logging    *FileLoggingConfig    `yaml:"logging,omitempty" toml:"logging"`
	Server     *FileServerConfig     `yaml:"server,omitempty" toml:"server"`
	Device     *FileDeviceConfig     `yaml:"device,omitempty" toml:"device"`
	Reconciler *FileReconcilerConfig `yaml:"reconciler,omitempty" toml:"reconciler"`
	DNS        *FileDNSConfig        `yaml:"dns,omitempty" toml:"dns"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileServerConfig holds listener settings.
type FileServerConfig struct {
	Host        string `yaml:"host,omitempty" toml:"host"`
	Port        int    `yaml:"port,omitempty" toml:"port"`
	HealthPort  int    `yaml:"health_port,omitempty" toml:"health_port"`
	TrustRealIP *bool  `yaml:"trust_real_ip,omitempty" toml:"trust_real_ip"`
}

// FileDeviceConfig holds router connection settings. The SSH hop itself is
// configured through DNSSWITCHER_DEVICE_SSH_* variables.
type FileDeviceConfig struct {
	Host          string `yaml:"host,omitempty" toml:"host"`
	Port          int    `yaml:"port,omitempty" toml:"port"`
	Transport     string `yaml:"transport,omitempty" toml:"transport"` // api, api-ssl, rest
	Username      string `yaml:"username,omitempty" toml:"username"`
	Password      string `yaml:"password,omitempty" toml:"password"`
	TLSSkipVerify *bool  `yaml:"tls_skip_verify,omitempty" toml:"tls_skip_verify"`
	Timeout       string `yaml:"timeout,omitempty" toml:"timeout"` // Go duration or seconds
	SSHTunnel     *bool  `yaml:"ssh_tunnel,omitempty" toml:"ssh_tunnel"`
}

// FileReconcilerConfig holds override behaviour.
type FileReconcilerConfig struct {
	OwnershipMarker      string `yaml:"ownership_marker,omitempty" toml:"ownership_marker"`
	AdoptExisting        *bool  `yaml:"adopt_existing,omitempty" toml:"adopt_existing"`
	DynamicLeaseStrategy string `yaml:"dynamic_lease_strategy,omitempty" toml:"dynamic_lease_strategy"`
	DryRun               *bool  `yaml:"dry_run,omitempty" toml:"dry_run"`
}

// FileDNSConfig holds the custom servers and their readiness probe.
type FileDNSConfig struct {
	CustomServers []string `yaml:"custom_servers,omitempty" toml:"custom_servers"`
	Probe         *bool    `yaml:"probe,omitempty" toml:"probe"`
	ProbeName     string   `yaml:"probe_name,omitempty" toml:"probe_name"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in all string fields.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.Server != nil {
		c.Server.Host = InterpolateEnvVars(c.Server.Host)
	}

	if c.Device != nil {
		d := c.Device
		d.Host = InterpolateEnvVars(d.Host)
		d.Transport = InterpolateEnvVars(d.Transport)
		d.Username = InterpolateEnvVars(d.Username)
		d.Password = InterpolateEnvVars(d.Password)
		d.Timeout = InterpolateEnvVars(d.Timeout)
	}

	if c.Reconciler != nil {
		c.Reconciler.OwnershipMarker = InterpolateEnvVars(c.Reconciler.OwnershipMarker)
		c.Reconciler.DynamicLeaseStrategy = InterpolateEnvVars(c.Reconciler.DynamicLeaseStrategy)
	}

	if c.DNS != nil {
		for i := range c.DNS.CustomServers {
			c.DNS.CustomServers[i] = InterpolateEnvVars(c.DNS.CustomServers[i])
		}
		c.DNS.ProbeName = InterpolateEnvVars(c.DNS.ProbeName)
	}
}

// LoadFile reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, anything else as YAML. Environment variables in ${VAR}
// format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// applyTo copies every value set in the file onto cfg. Values that cannot be
// parsed are reported by their file key.
func (c *FileConfig) applyTo(cfg *Config) []string {
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if s := c.Server; s != nil {
		if s.Host != "" {
			cfg.Host = s.Host
		}
		if s.Port != 0 {
			cfg.Port = s.Port
		}
		if s.HealthPort != 0 {
			cfg.HealthPort = s.HealthPort
		}
		if s.TrustRealIP != nil {
			cfg.TrustRealIP = *s.TrustRealIP
		}
	}

	if d := c.Device; d != nil {
		if d.Host != "" {
			cfg.Device.Host = d.Host
		}
		if d.Port != 0 {
			cfg.Device.Port = d.Port
		}
		if d.Transport != "" {
			cfg.Device.Transport = device.Transport(strings.ToLower(d.Transport))
		}
		if d.Username != "" {
			cfg.Device.Username = d.Username
		}
		if d.Password != "" {
			cfg.Device.Password = d.Password
		}
		if d.TLSSkipVerify != nil {
			cfg.Device.TLSSkipVerify = *d.TLSSkipVerify
		}
		if d.Timeout != "" {
			timeout, err := parseTimeout(d.Timeout)
			if err != nil {
				errs = append(errs, fmt.Sprintf("device.timeout: invalid duration %q", d.Timeout))
			} else {
				cfg.Device.Timeout = timeout
			}
		}
		if d.SSHTunnel != nil {
			cfg.Device.SSHTunnel = *d.SSHTunnel
		}
	}

	if r := c.Reconciler; r != nil {
		if marker := strings.TrimSpace(r.OwnershipMarker); marker != "" {
			cfg.OwnershipMarker = marker
		}
		if r.AdoptExisting != nil {
			cfg.AdoptExisting = *r.AdoptExisting
		}
		if r.DynamicLeaseStrategy != "" {
			cfg.DynamicLeaseStrategy = reconciler.Strategy(strings.ToLower(r.DynamicLeaseStrategy))
		}
		if r.DryRun != nil {
			cfg.DryRun = *r.DryRun
		}
	}

	if d := c.DNS; d != nil {
		if len(d.CustomServers) > 0 {
			servers, err := parseServerList(d.CustomServers)
			if err != nil {
				errs = append(errs, fmt.Sprintf("dns.custom_servers: %v", err))
			} else {
				cfg.CustomDNS = servers
			}
		}
		if d.Probe != nil {
			cfg.DNSProbe = *d.Probe
		}
		if d.ProbeName != "" {
			cfg.DNSProbeName = d.ProbeName
		}
	}

	return errs
}

// GetConfigFilePath returns the config file path from DNSSWITCHER_CONFIG.
// Returns empty string if no config file is specified.
func GetConfigFilePath() string {
	return getEnv(EnvConfigFile)
}
