package sshutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Sentinel errors for tunnel operations.
var (
	// ErrAuthenticationFailed is returned when SSH authentication fails.
	ErrAuthenticationFailed = errors.New("ssh authentication failed")

	// ErrConnectionTimeout is returned when the connection times out.
	ErrConnectionTimeout = errors.New("ssh connection timed out")
)

// Tunnel forwards TCP connections through an SSH server. It connects on first
// use and reconnects when a forward fails on a dead connection.
type Tunnel struct {
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	cancel context.CancelFunc
}

// TunnelOption is a functional option for configuring the Tunnel.
type TunnelOption func(*Tunnel)

// WithLogger sets a custom logger for the tunnel.
func WithLogger(logger *slog.Logger) TunnelOption {
	return func(t *Tunnel) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTunnel creates a tunnel. It does not connect.
func NewTunnel(config *Config, opts ...TunnelOption) (*Tunnel, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &Tunnel{
		config: config,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// DialContext opens a forwarded connection to address as seen from the SSH
// server. It satisfies routeros.ContextDialer.
func (t *Tunnel) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := t.client(ctx)
	if err != nil {
		return nil, err
	}

	fwd, err := conn.DialContext(ctx, network, address)
	if err == nil {
		return fwd, nil
	}

	// The SSH connection may have died since the last forward. Retry once on a
	// fresh one before giving up.
	t.logger.Warn("ssh forward failed, reconnecting",
		slog.String("target", address),
		slog.String("error", err.Error()),
	)
	t.drop(conn)

	conn, err = t.client(ctx)
	if err != nil {
		return nil, err
	}
	fwd, err = conn.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("forwarding to %s via %s: %w", address, t.config.Address(), err)
	}
	return fwd, nil
}

// client returns the live SSH connection, connecting if needed.
func (t *Tunnel) client(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	sshConfig, err := t.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("building SSH config: %w", err)
	}

	t.logger.Debug("connecting to SSH server",
		slog.String("host", t.config.Host),
		slog.Int("port", t.config.Port),
		slog.String("user", t.config.User),
	)

	timeout := t.config.GetTimeout()
	dialCtx, dialCancel := context.WithTimeout(ctx, timeout)
	defer dialCancel()

	dialer := &net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(dialCtx, "tcp", t.config.Address())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrConnectionTimeout
		}
		return nil, fmt.Errorf("dialing %s: %w", t.config.Address(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, t.config.Address(), sshConfig)
	if err != nil {
		_ = netConn.Close()
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}

	t.conn = ssh.NewClient(sshConn, chans, reqs)

	var keepCtx context.Context
	keepCtx, t.cancel = context.WithCancel(context.Background())
	go t.keepalive(keepCtx, t.conn, t.config.GetKeepaliveInterval())

	t.logger.Info("SSH tunnel established",
		slog.String("host", t.config.Host),
		slog.Int("port", t.config.Port),
	)

	return t.conn, nil
}

// drop discards conn if it is still the current connection.
func (t *Tunnel) drop(conn *ssh.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != conn {
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	_ = t.conn.Close()
	t.conn = nil
}

// Close closes the SSH connection. Safe to call multiple times.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil

	t.logger.Debug("SSH tunnel closed",
		slog.String("host", t.config.Host),
	)

	return err
}

// IsConnected returns true if the tunnel holds a live SSH connection.
func (t *Tunnel) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *Tunnel) buildSSHConfig() (*ssh.ClientConfig, error) {
	authMethods, err := t.buildAuthMethods()
	if err != nil {
		return nil, fmt.Errorf("building auth methods: %w", err)
	}

	hostKeyCallback, err := t.buildHostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("building host key callback: %w", err)
	}

	return &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.config.GetTimeout(),
	}, nil
}

// buildAuthMethods orders key file, inline key, then password.
func (t *Tunnel) buildAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if t.config.KeyFile != "" {
		keyData, err := os.ReadFile(t.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", t.config.KeyFile, err)
		}

		signer, err := t.parsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing key from file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if t.config.KeyData != "" {
		signer, err := t.parsePrivateKey([]byte(t.config.KeyData))
		if err != nil {
			return nil, fmt.Errorf("parsing key data: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if t.config.Password != "" {
		methods = append(methods, ssh.Password(t.config.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods configured")
	}

	return methods, nil
}

func (t *Tunnel) parsePrivateKey(keyData []byte) (ssh.Signer, error) {
	if t.config.KeyPassphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(t.config.KeyPassphrase))
	}
	return ssh.ParsePrivateKey(keyData)
}

func (t *Tunnel) buildHostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.config.StrictHostKeyChecking {
		cb, err := knownhosts.New(t.config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", t.config.KnownHostsFile, err)
		}
		return cb, nil
	}

	t.logger.Warn("host key verification disabled - this is insecure",
		slog.String("host", t.config.Host),
	)
	return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly requested skip
}

// keepalive pings conn until ctx ends. A failed ping drops the connection so
// the next DialContext reconnects.
func (t *Tunnel) keepalive(ctx context.Context, conn *ssh.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("keepalive failed",
					slog.String("host", t.config.Host),
					slog.String("error", err.Error()),
				)
				t.drop(conn)
				return
			}
		}
	}
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied")
}
