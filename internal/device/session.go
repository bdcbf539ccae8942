// Package device owns the single shared connection to the router.
//
// Every reconciliation step runs inside Session.Do, which holds the
// connection exclusively for the whole search, decide and mutate sequence.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/metrics"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// Dialer opens and authenticates a new device connection.
type Dialer func(ctx context.Context) (routeros.Conn, error)

// RetryConfig controls the background connect loop started by KeepTrying.
type RetryConfig struct {
	// InitialInterval is the wait after the first failed attempt. Default: 2s.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff. Default: 1 minute.
	MaxInterval time.Duration

	// Multiplier grows the interval after each failure. Default: 2.0.
	Multiplier float64
}

// DefaultRetryConfig returns a RetryConfig with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
	}
}

// Session serializes access to one device connection. The connection is
// dialed on first use and redialed after a channel failure.
type Session struct {
	dial   Dialer
	logger *slog.Logger
	retry  RetryConfig

	// slot has capacity one; holding its token means owning the connection.
	slot chan struct{}

	mu   sync.Mutex
	conn routeros.Conn
}

// Option is a functional option for configuring the Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryConfig sets the backoff used by KeepTrying.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Session) {
		s.retry = cfg
	}
}

// NewSession creates a session. It does not dial.
func NewSession(dial Dialer, opts ...Option) *Session {
	s := &Session{
		dial:   dial,
		logger: slog.Default(),
		retry:  DefaultRetryConfig(),
		slot:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn with exclusive use of the device channel. Waiting for the slot
// honours ctx. A channel failure inside fn closes the connection so the next
// transaction redials; fn's steps are never retried.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, ch routeros.Channel) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}

	ch := &instrumentedChannel{conn: conn}
	err = fn(ctx, ch)
	if ch.broken {
		s.drop(conn)
	}
	return err
}

// Connect dials now if no connection is open.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	_, err := s.connect(ctx)
	return err
}

// KeepTrying calls Connect until it succeeds or ctx ends, backing off
// exponentially between attempts. Failures are logged, never returned.
func (s *Session) KeepTrying(ctx context.Context) {
	interval := s.retry.InitialInterval
	if interval <= 0 {
		interval = DefaultRetryConfig().InitialInterval
	}

	for attempt := 1; ; attempt++ {
		err := s.Connect(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("device connection failed, will retry",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("next_retry_in", interval),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * s.retry.Multiplier)
		if s.retry.MaxInterval > 0 && interval > s.retry.MaxInterval {
			interval = s.retry.MaxInterval
		}
	}
}

// Ping checks the device answers. A trap still proves the channel works, so
// only channel failures are reported.
func (s *Session) Ping(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context, ch routeros.Channel) error {
		_, err := ch.Send(ctx, routeros.NewCommand("/system/identity/print"))
		return err
	})
}

// Close closes the open connection, if any. It waits for a running
// transaction to finish.
func (s *Session) Close() error {
	s.slot <- struct{}{}
	defer s.release()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	metrics.DeviceConnected.Set(0)
	return conn.Close()
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for device transaction: %w", ctx.Err())
	}
}

func (s *Session) release() {
	<-s.slot
}

// connect returns the open connection or dials a new one. The caller holds
// the slot.
func (s *Session) connect(ctx context.Context) (routeros.Conn, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	start := time.Now()
	conn, err := s.dial(ctx)
	if err != nil {
		metrics.DeviceDialsTotal.WithLabelValues("failure").Inc()
		if !routeros.IsChannelFailure(err) {
			err = &routeros.ChannelError{Op: "dial", Err: err}
		}
		return nil, err
	}

	metrics.DeviceDialsTotal.WithLabelValues("success").Inc()
	metrics.DeviceConnected.Set(1)
	s.logger.Info("device session opened", slog.Duration("elapsed", time.Since(start)))

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// drop closes conn after a channel failure.
func (s *Session) drop(conn routeros.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	metrics.DeviceConnected.Set(0)
	if err := conn.Close(); err != nil {
		s.logger.Debug("closing failed device connection", slog.String("error", err.Error()))
	}
	s.logger.Warn("device session closed after channel failure")
}

// instrumentedChannel counts commands and notices channel failures.
type instrumentedChannel struct {
	conn   routeros.Conn
	broken bool
}

func (c *instrumentedChannel) Send(ctx context.Context, cmd routeros.Command) (routeros.Responses, error) {
	resps, err := c.conn.Send(ctx, cmd)
	if err != nil {
		c.broken = true
		metrics.DeviceCommandsTotal.WithLabelValues(cmd.Path, "channel_failure").Inc()
		return nil, err
	}

	outcome := "done"
	for _, r := range resps {
		switch r.(type) {
		case routeros.Trap:
			outcome = "trap"
		case routeros.Fatal:
			outcome = "fatal"
			c.broken = true
		case routeros.Reply, routeros.Done:
		}
	}
	metrics.DeviceCommandsTotal.WithLabelValues(cmd.Path, outcome).Inc()
	return resps, nil
}
