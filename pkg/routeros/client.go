package routeros

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	ros "github.com/go-routeros/routeros/v3"
)

// Default API connection values.
const (
	DefaultAPIPort    = 8728
	DefaultAPITLSPort = 8729
	DefaultTimeout    = 10 * time.Second
)

// Channel sends one command and returns the device's complete answer.
// A non-nil error always matches ErrChannelFailure.
type Channel interface {
	Send(ctx context.Context, cmd Command) (Responses, error)
}

// Conn is a Channel owning a connection.
type Conn interface {
	Channel
	Close() error
}

// ContextDialer opens the underlying stream. *net.Dialer and the SSH tunnel in
// pkg/sshutil both satisfy it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds native API connection settings.
type Config struct {
	// Address is host:port of the API service.
	Address string

	Username string
	Password string

	// TLSConfig enables api-ssl when non-nil.
	TLSConfig *tls.Config

	// Timeout bounds dialing and each command's IO when the caller's context
	// has no deadline. Zero disables the IO bound.
	Timeout time.Duration
}

// Client speaks the native RouterOS API over a single connection. Framing and
// login are done by go-routeros; Client adds deadlines, context cancellation
// and the tagged Responses.
type Client struct {
	logger  *slog.Logger
	dialer  ContextDialer
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	api    *ros.Client
	broken bool
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer replaces the TCP dialer, e.g. with an SSH tunnel.
func WithDialer(d ContextDialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// NewClient wraps an established connection. It does not log in.
func NewClient(conn net.Conn, opts ...ClientOption) (*Client, error) {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.attach(conn); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) attach(conn net.Conn) error {
	api, err := ros.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return &ChannelError{Op: "open api session", Err: err}
	}
	c.conn = conn
	c.api = api
	return nil
}

// Dial connects to the device and logs in.
func Dial(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("routeros: address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		logger:  slog.Default(),
		dialer:  &net.Dialer{Timeout: timeout},
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, &ChannelError{Op: "dial " + cfg.Address, Err: err}
	}

	if cfg.TLSConfig != nil {
		tlsConn := tls.Client(conn, cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			_ = conn.Close()
			return nil, &ChannelError{Op: "tls handshake " + cfg.Address, Err: err}
		}
		conn = tlsConn
	}

	if err := c.attach(conn); err != nil {
		return nil, err
	}

	if err := c.Login(ctx, cfg.Username, cfg.Password); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Info("connected to device",
		slog.String("address", cfg.Address),
		slog.Bool("tls", cfg.TLSConfig != nil),
	)
	return c, nil
}

// Login authenticates the session. go-routeros answers the pre-6.43 MD5
// challenge when the device sends one.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken || c.api == nil {
		return &ChannelError{Op: "/login", Err: ErrClosed}
	}
	stop := c.bind(ctx)
	defer stop()

	err := c.api.Login(username, password)
	if err == nil {
		return nil
	}
	var de *ros.DeviceError
	if errors.As(err, &de) && de.Sentence != nil && de.Sentence.Word == "!trap" {
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, de.Sentence.Map["message"])
	}
	return c.fail(ctx, "/login", err)
}

// Send runs the command and returns its answer. A trap is returned as a Trap
// element followed by Done; a fatal closes the connection.
func (c *Client) Send(ctx context.Context, cmd Command) (Responses, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken || c.api == nil {
		return nil, &ChannelError{Op: cmd.Path, Err: ErrClosed}
	}
	stop := c.bind(ctx)
	defer stop()

	c.logger.Debug("sending device command",
		slog.String("command", cmd.Path),
		slog.Int("attrs", len(cmd.Attrs)),
		slog.Int("queries", len(cmd.Queries)),
	)

	reply, err := c.api.RunArgs(cmd.Words())

	var resps Responses
	if reply != nil {
		for _, sen := range reply.Re {
			resps = append(resps, fromSentence(sen))
		}
	}

	if err != nil {
		var de *ros.DeviceError
		if !errors.As(err, &de) || de.Sentence == nil {
			return nil, c.fail(ctx, cmd.Path, err)
		}
		resp := fromSentence(de.Sentence)
		resps = append(resps, resp)
		if _, fatal := resp.(Fatal); fatal {
			c.markBroken()
			return resps, nil
		}
		return append(resps, Done{}), nil
	}

	done := Done{}
	if reply != nil && reply.Done != nil {
		done.Attrs = reply.Done.Map
	}
	return append(resps, done), nil
}

// bind applies the context deadline (or the client timeout) to the connection
// and aborts blocked IO when ctx is cancelled.
func (c *Client) bind(ctx context.Context) (stop func() bool) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	conn := c.conn
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
}

// fail marks the connection unusable and wraps err as a channel failure.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	c.markBroken()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%w)", ctxErr, err)
	}
	c.logger.Warn("device channel failed",
		slog.String("command", op),
		slog.String("error", err.Error()),
	)
	return &ChannelError{Op: op, Err: err}
}

func (c *Client) markBroken() {
	c.broken = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.broken {
		c.broken = true
		return nil
	}
	c.broken = true
	return c.conn.Close()
}
