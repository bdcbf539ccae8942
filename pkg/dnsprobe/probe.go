// Package dnsprobe checks that a recursive resolver answers queries.
//
// It backs the readiness check for the custom DNS servers handed out to
// clients: an override pointing at a dead resolver takes the client offline.
package dnsprobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Default probe values.
const (
	DefaultPort    = 53
	DefaultName    = "."
	DefaultTimeout = 3 * time.Second
)

// ErrNoAnswer is returned when the resolver answers with a failure code.
var ErrNoAnswer = errors.New("resolver returned failure")

// Prober queries one resolver.
type Prober struct {
	server string
	name   string
	qtype  uint16
	client *dns.Client
	logger *slog.Logger
}

// Option is a functional option for configuring the Prober.
type Option func(*Prober)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithName sets the queried name (default ".").
func WithName(name string) Option {
	return func(p *Prober) {
		if name != "" {
			p.name = dns.Fqdn(name)
		}
	}
}

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithTCP queries over TCP instead of UDP.
func WithTCP() Option {
	return func(p *Prober) {
		p.client.Net = "tcp"
	}
}

// New creates a prober for server, given as "host" or "host:port".
func New(server string, opts ...Option) (*Prober, error) {
	if server == "" {
		return nil, errors.New("server is required")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, strconv.Itoa(DefaultPort))
	}

	p := &Prober{
		server: server,
		name:   DefaultName,
		client: &dns.Client{Net: "udp", Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	// The root zone is asked for NS; anything else for A.
	p.qtype = dns.TypeA
	if p.name == "." {
		p.qtype = dns.TypeNS
	}
	return p, nil
}

// Server returns the probed address in host:port form.
func (p *Prober) Server() string {
	return p.server
}

// Check sends one recursive query. NXDOMAIN counts as healthy since the
// resolver did answer; SERVFAIL and REFUSED do not.
func (p *Prober) Check(ctx context.Context) error {
	msg := new(dns.Msg)
	msg.SetQuestion(p.name, p.qtype)
	msg.RecursionDesired = true

	resp, rtt, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return fmt.Errorf("querying %s: %w", p.server, err)
	}
	if resp == nil {
		return fmt.Errorf("querying %s: %w: empty response", p.server, ErrNoAnswer)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return fmt.Errorf("querying %s: %w: %s", p.server, ErrNoAnswer, dns.RcodeToString[resp.Rcode])
	}

	p.logger.Debug("resolver probe succeeded",
		slog.String("server", p.server),
		slog.String("name", p.name),
		slog.Duration("rtt", rtt),
		slog.Int("answers", len(resp.Answer)),
	)
	return nil
}
