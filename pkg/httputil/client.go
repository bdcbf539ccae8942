// Package httputil builds the HTTP client used for the device's REST API.
package httputil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Default HTTP client configuration values.
const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "dnsswitcher/1.0"
)

// DialContextFunc opens the TCP stream under the HTTP transport.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// TLSSkipVerify disables certificate verification. RouterOS ships with a
	// self-signed certificate, so this is common on home networks.
	TLSSkipVerify bool

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string

	// UserAgent is the User-Agent header to set on requests.
	UserAgent string

	// DialContext replaces the default dialer, e.g. with an SSH tunnel.
	DialContext DialContextFunc

	// Logger enables debug logging for HTTP requests.
	// If nil, no debug logging is performed.
	Logger *slog.Logger
}

// userAgentTransport sets the User-Agent header and logs requests at debug.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	// The URL carries no credentials; basic auth lives in a header.
	if t.logger != nil {
		t.logger.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
		)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP response",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration.
// If cfg is nil, defaults are used (30s timeout, TLS verification enabled).
func NewClient(cfg *ClientConfig) (*http.Client, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := http.DefaultTransport.(*http.Transport).Clone()

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	base.TLSClientConfig = tlsConfig

	if cfg.DialContext != nil {
		base.DialContext = cfg.DialContext
		// Proxies make no sense through a tunnel.
		base.Proxy = nil
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      base,
			userAgent: userAgent,
			logger:    cfg.Logger,
		},
	}, nil
}

func buildTLSConfig(cfg *ClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TLSSkipVerify {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // Intentional: user explicitly requested skip
	}

	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file %s: %w", cfg.CAFile, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
