package config

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
)

// EnvPrefix starts every environment variable read by this package.
const EnvPrefix = "DNSSWITCHER_"

// Environment variable names.
const (
	EnvConfigFile           = EnvPrefix + "CONFIG"
	EnvLogLevel             = EnvPrefix + "LOG_LEVEL"
	EnvLogFormat            = EnvPrefix + "LOG_FORMAT"
	EnvHost                 = EnvPrefix + "HOST"
	EnvPort                 = EnvPrefix + "PORT"
	EnvHealthPort           = EnvPrefix + "HEALTH_PORT"
	EnvTrustRealIP          = EnvPrefix + "TRUST_REAL_IP"
	EnvDeviceHost           = EnvPrefix + "DEVICE_HOST"
	EnvDevicePort           = EnvPrefix + "DEVICE_PORT"
	EnvDeviceTransport      = EnvPrefix + "DEVICE_TRANSPORT"
	EnvDeviceUsername       = EnvPrefix + "DEVICE_USERNAME"
	EnvDevicePassword       = EnvPrefix + "DEVICE_PASSWORD"
	EnvDeviceTLSSkipVerify  = EnvPrefix + "DEVICE_TLS_SKIP_VERIFY"
	EnvDeviceTimeout        = EnvPrefix + "DEVICE_TIMEOUT"
	EnvDeviceSSHTunnel      = EnvPrefix + "DEVICE_SSH_TUNNEL"
	EnvDeviceSSHPrefix      = EnvPrefix + "DEVICE_SSH_"
	EnvCustomDNS            = EnvPrefix + "CUSTOM_DNS"
	EnvOwnershipMarker      = EnvPrefix + "OWNERSHIP_MARKER"
	EnvAdoptExisting        = EnvPrefix + "ADOPT_EXISTING"
	EnvDynamicLeaseStrategy = EnvPrefix + "DYNAMIC_LEASE_STRATEGY"
	EnvDryRun               = EnvPrefix + "DRY_RUN"
	EnvDNSProbe             = EnvPrefix + "DNS_PROBE"
	EnvDNSProbeName         = EnvPrefix + "DNS_PROBE_NAME"
)

// applyEnv overrides cfg with every variable that is set. Values that cannot
// be parsed are reported and leave the previous value in place; range and
// enum checks happen in validateConfig.
func applyEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if v := getEnv(EnvHost); v != "" {
		cfg.Host = v
	}
	intEnv(EnvPort, &cfg.Port, &errs)
	intEnv(EnvHealthPort, &cfg.HealthPort, &errs)
	boolEnv(EnvTrustRealIP, &cfg.TrustRealIP)

	if v := getEnv(EnvDeviceHost); v != "" {
		cfg.Device.Host = v
	}
	intEnv(EnvDevicePort, &cfg.Device.Port, &errs)
	if v := getEnv(EnvDeviceTransport); v != "" {
		cfg.Device.Transport = device.Transport(strings.ToLower(v))
	}
	if v := getEnvWithFileFallback(EnvPrefix, "DEVICE_USERNAME"); v != "" {
		cfg.Device.Username = v
	}
	if v := getEnvWithFileFallback(EnvPrefix, "DEVICE_PASSWORD"); v != "" {
		cfg.Device.Password = v
	}
	boolEnv(EnvDeviceTLSSkipVerify, &cfg.Device.TLSSkipVerify)
	if v := getEnv(EnvDeviceTimeout); v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q (use format like 10s, or seconds)", EnvDeviceTimeout, v))
		} else {
			cfg.Device.Timeout = timeout
		}
	}
	boolEnv(EnvDeviceSSHTunnel, &cfg.Device.SSHTunnel)

	if v := getEnv(EnvCustomDNS); v != "" {
		servers, err := parseServers(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvCustomDNS, err))
		} else {
			cfg.CustomDNS = servers
		}
	}
	if v := getEnv(EnvOwnershipMarker); v != "" {
		cfg.OwnershipMarker = strings.TrimSpace(v)
	}
	boolEnv(EnvAdoptExisting, &cfg.AdoptExisting)
	if v := getEnv(EnvDynamicLeaseStrategy); v != "" {
		cfg.DynamicLeaseStrategy = reconciler.Strategy(strings.ToLower(v))
	}
	boolEnv(EnvDryRun, &cfg.DryRun)

	boolEnv(EnvDNSProbe, &cfg.DNSProbe)
	if v := getEnv(EnvDNSProbeName); v != "" {
		cfg.DNSProbeName = v
	}

	return errs
}

func intEnv(key string, dst *int, errs *[]string) {
	v := getEnv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func boolEnv(key string, dst *bool) {
	if v := getEnv(key); v != "" {
		*dst = parseBool(v, *dst)
	}
}

// parseTimeout accepts a Go duration or a whole number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseServers parses a comma-separated list of IPv4 addresses. Empty entries
// and repeats are dropped.
func parseServers(s string) ([]netip.Addr, error) {
	return parseServerList(strings.Split(s, ","))
}

func parseServerList(list []string) ([]netip.Addr, error) {
	var (
		out  []netip.Addr
		seen = make(map[netip.Addr]bool)
	)
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil || !addr.Unmap().Is4() {
			return nil, fmt.Errorf("%q is not an IPv4 address", item)
		}
		addr = addr.Unmap()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}
