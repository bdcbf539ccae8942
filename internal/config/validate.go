package config

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig checks the merged configuration. Messages name the
// environment variable of the offending setting.
func validateConfig(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be debug, info, warn, or error)", EnvLogLevel, cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be json or text)", EnvLogFormat, cfg.LogFormat))
	}

	errs = append(errs, validatePort(EnvPort, cfg.Port, false)...)
	errs = append(errs, validatePort(EnvHealthPort, cfg.HealthPort, false)...)
	if cfg.Port == cfg.HealthPort {
		errs = append(errs, fmt.Sprintf("%s and %s must differ, both are %d", EnvPort, EnvHealthPort, cfg.Port))
	}

	errs = append(errs, validateDevice(&cfg.Device)...)

	if len(cfg.CustomDNS) == 0 {
		errs = append(errs, fmt.Sprintf("%s: at least one server is required", EnvCustomDNS))
	}

	if strings.TrimSpace(cfg.OwnershipMarker) == "" {
		errs = append(errs, fmt.Sprintf("%s: must not be empty", EnvOwnershipMarker))
	}

	if !cfg.DynamicLeaseStrategy.Valid() {
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be create-static or make-static)", EnvDynamicLeaseStrategy, cfg.DynamicLeaseStrategy))
	}

	if cfg.DNSProbe && cfg.DNSProbeName != "." {
		if _, ok := dns.IsDomainName(cfg.DNSProbeName); !ok {
			errs = append(errs, fmt.Sprintf("%s: invalid domain name %q", EnvDNSProbeName, cfg.DNSProbeName))
		}
	}

	return errs
}

func validateDevice(d *DeviceConfig) []string {
	var errs []string

	if d.Host == "" {
		errs = append(errs, fmt.Sprintf("%s: is required", EnvDeviceHost))
	}
	errs = append(errs, validatePort(EnvDevicePort, d.Port, true)...)

	switch d.Transport {
	case device.TransportAPI, device.TransportAPISSL, device.TransportREST:
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be api, api-ssl, or rest)", EnvDeviceTransport, d.Transport))
	}

	if d.Username == "" {
		errs = append(errs, fmt.Sprintf("%s: is required", EnvDeviceUsername))
	}
	if d.Password == "" {
		errs = append(errs, fmt.Sprintf("%s (or %s_FILE): is required", EnvDevicePassword, EnvDevicePassword))
	}

	if d.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("%s: must be positive, got %s", EnvDeviceTimeout, d.Timeout))
	}

	return errs
}

func validatePort(key string, port int, zeroOK bool) []string {
	if zeroOK && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("%s: must be between 1 and 65535, got %d", key, port)}
	}
	return nil
}
