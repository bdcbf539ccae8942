package device

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/pkg/httputil"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// Transport selects how commands reach the device.
type Transport string

const (
	TransportAPI    Transport = "api"
	TransportAPISSL Transport = "api-ssl"
	TransportREST   Transport = "rest"
)

// DefaultPort returns the standard port of t.
func (t Transport) DefaultPort() int {
	switch t {
	case TransportAPISSL:
		return routeros.DefaultAPITLSPort
	case TransportREST:
		return routeros.DefaultRESTPort
	default:
		return routeros.DefaultAPIPort
	}
}

// DialConfig describes the device endpoint.
type DialConfig struct {
	Transport     Transport
	Host          string
	Port          int
	Username      string
	Password      string
	TLSSkipVerify bool
	Timeout       time.Duration

	// Tunnel, when set, carries the TCP stream (e.g. *sshutil.Tunnel).
	Tunnel routeros.ContextDialer

	Logger *slog.Logger
}

func (c DialConfig) address() string {
	port := c.Port
	if port == 0 {
		port = c.Transport.DefaultPort()
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// NewDialer returns a Dialer for cfg.
func NewDialer(cfg DialConfig) (Dialer, error) {
	if cfg.Host == "" {
		return nil, errors.New("device host is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Transport {
	case TransportAPI, TransportAPISSL, "":
		apiCfg := routeros.Config{
			Address:  cfg.address(),
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		}
		if cfg.Transport == TransportAPISSL {
			apiCfg.TLSConfig = &tls.Config{
				ServerName:         cfg.Host,
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // RouterOS ships self-signed certificates
			}
		}
		opts := []routeros.ClientOption{routeros.WithLogger(logger)}
		if cfg.Tunnel != nil {
			opts = append(opts, routeros.WithDialer(cfg.Tunnel))
		}
		return func(ctx context.Context) (routeros.Conn, error) {
			c, err := routeros.Dial(ctx, apiCfg, opts...)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, nil

	case TransportREST:
		httpCfg := &httputil.ClientConfig{
			Timeout:       cfg.Timeout,
			TLSSkipVerify: cfg.TLSSkipVerify,
			Logger:        logger,
		}
		if cfg.Tunnel != nil {
			httpCfg.DialContext = cfg.Tunnel.DialContext
		}
		httpClient, err := httputil.NewClient(httpCfg)
		if err != nil {
			return nil, fmt.Errorf("building REST client: %w", err)
		}
		baseURL := "https://" + cfg.address()
		return func(ctx context.Context) (routeros.Conn, error) {
			c := routeros.NewRESTClient(baseURL, cfg.Username, cfg.Password,
				routeros.WithHTTPClient(httpClient),
				routeros.WithRESTLogger(logger),
			)
			// HTTP has no session to open; one request proves the router answers.
			if _, err := c.Send(ctx, routeros.NewCommand("/system/identity/print")); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown device transport %q", cfg.Transport)
	}
}
