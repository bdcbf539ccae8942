// Package config handles loading and validation of dnsswitcher configuration
// from DNSSWITCHER_* environment variables and an optional YAML or TOML file.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/sshutil"
)

// Configuration defaults.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultHealthPort      = 8080
	DefaultDeviceHost      = "192.168.88.1"
	DefaultDeviceTransport = device.TransportAPI
	DefaultDeviceTimeout   = 10 * time.Second
	DefaultCustomDNS       = "8.8.8.8"
	DefaultStrategy        = reconciler.StrategyCreateStatic
	DefaultAdoptExisting   = true
	DefaultTrustRealIP     = true
	DefaultDNSProbe        = true
	DefaultDNSProbeName    = "."
)

// Config holds the application configuration.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// API and UI listener
	Host        string
	Port        int
	TrustRealIP bool // Take the client address from X-Real-IP

	// Health and metrics listener
	HealthPort int

	Device DeviceConfig

	// Override behaviour
	CustomDNS            []netip.Addr
	OwnershipMarker      string
	AdoptExisting        bool
	DynamicLeaseStrategy reconciler.Strategy
	DryRun               bool

	// Readiness probe of the CustomDNS servers
	DNSProbe     bool
	DNSProbeName string
}

// DeviceConfig describes how to reach the router.
type DeviceConfig struct {
	Host          string
	Port          int // 0 selects the transport's standard port
	Transport     device.Transport
	Username      string
	Password      string
	TLSSkipVerify bool
	Timeout       time.Duration

	// SSHTunnel carries the device connection through an SSH hop described
	// by SSH.
	SSHTunnel bool
	SSH       *sshutil.Config
}

// Defaults returns a Config with every default applied. Username and password
// have no default.
func Defaults() *Config {
	servers, _ := parseServers(DefaultCustomDNS)
	return &Config{
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		Host:        DefaultHost,
		Port:        DefaultPort,
		HealthPort:  DefaultHealthPort,
		TrustRealIP: DefaultTrustRealIP,
		Device: DeviceConfig{
			Host:      DefaultDeviceHost,
			Transport: DefaultDeviceTransport,
			Timeout:   DefaultDeviceTimeout,
		},
		CustomDNS:            servers,
		OwnershipMarker:      ownership.DefaultMarker,
		AdoptExisting:        DefaultAdoptExisting,
		DynamicLeaseStrategy: DefaultStrategy,
		DNSProbe:             DefaultDNSProbe,
		DNSProbeName:         DefaultDNSProbeName,
	}
}

// Load builds the configuration from defaults, the file named by
// DNSSWITCHER_CONFIG (if any) and the environment, in increasing precedence.
// All problems found are reported together as a *ValidationError.
func Load() (*Config, error) {
	cfg := Defaults()
	var errs []string

	if path := GetConfigFilePath(); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		errs = append(errs, fc.applyTo(cfg)...)
	}

	errs = append(errs, applyEnv(cfg)...)

	if cfg.Device.SSHTunnel {
		sshCfg, err := sshutil.LoadConfig(EnvDeviceSSHPrefix)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s*: %v", EnvDeviceSSHPrefix, err))
		}
		cfg.Device.SSH = sshCfg
	}

	errs = append(errs, validateConfig(cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	if cfg.Device.Port == 0 {
		cfg.Device.Port = cfg.Device.Transport.DefaultPort()
	}
	return cfg, nil
}

// DialConfig returns the device endpoint settings. Tunnel and Logger are left
// for the caller.
func (c *Config) DialConfig() device.DialConfig {
	return device.DialConfig{
		Transport:     c.Device.Transport,
		Host:          c.Device.Host,
		Port:          c.Device.Port,
		Username:      c.Device.Username,
		Password:      c.Device.Password,
		TLSSkipVerify: c.Device.TLSSkipVerify,
		Timeout:       c.Device.Timeout,
	}
}

// ReconcilerConfig returns the reconciler settings.
func (c *Config) ReconcilerConfig() reconciler.Config {
	return reconciler.Config{
		Marker:        c.OwnershipMarker,
		Servers:       append([]netip.Addr(nil), c.CustomDNS...),
		AdoptExisting: c.AdoptExisting,
		Strategy:      c.DynamicLeaseStrategy,
		DryRun:        c.DryRun,
	}
}

// CustomDNSString renders CustomDNS as a comma-separated list.
func (c *Config) CustomDNSString() string {
	parts := make([]string, len(c.CustomDNS))
	for i, s := range c.CustomDNS {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// LogValue implements slog.LogValuer. The device password is never logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log_level", c.LogLevel),
		slog.String("log_format", c.LogFormat),
		slog.String("listen", fmt.Sprintf("%s:%d", c.Host, c.Port)),
		slog.Int("health_port", c.HealthPort),
		slog.String("device", fmt.Sprintf("%s://%s:%d", c.Device.Transport, c.Device.Host, c.Device.Port)),
		slog.String("device_user", c.Device.Username),
		slog.Bool("ssh_tunnel", c.Device.SSHTunnel),
		slog.String("custom_dns", c.CustomDNSString()),
		slog.String("ownership_marker", c.OwnershipMarker),
		slog.Bool("adopt_existing", c.AdoptExisting),
		slog.String("dynamic_lease_strategy", string(c.DynamicLeaseStrategy)),
		slog.Bool("dry_run", c.DryRun),
	)
}
