// Package reconciler decides and applies per-client DNS overrides on the
// router's DHCP server.
//
// Every operation runs as one device transaction: the leases for the client
// are searched, a plan is chosen from what is found, and only then are
// mutations sent. Records whose comment names another owner are never
// changed; the operation fails with an ownership conflict instead.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/lease"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/metrics"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/option"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// Transactor runs fn with exclusive use of the device channel.
// *device.Session implements it.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context, ch routeros.Channel) error) error
}

// Strategy selects how a client that only has a dynamic lease is taken over.
type Strategy string

const (
	// StrategyCreateStatic adds a static lease carrying the dynamic lease's MAC
	// and leaves the dynamic lease alone.
	StrategyCreateStatic Strategy = "create-static"

	// StrategyMakeStatic converts the dynamic lease in place, then links it.
	StrategyMakeStatic Strategy = "make-static"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyCreateStatic || s == StrategyMakeStatic
}

// Config holds reconciler configuration options.
type Config struct {
	// Marker is the comment that identifies records owned by this service.
	Marker string

	// Servers are the DNS servers handed out by ApplyCustomDNS when the caller
	// passes none.
	Servers []netip.Addr

	// AdoptExisting lets apply take over a static lease that has no comment.
	// When false such a lease is reported as a conflict, except under
	// StrategyMakeStatic. Default: true.
	AdoptExisting bool

	// Strategy handles clients that only hold a dynamic lease.
	Strategy Strategy

	// DryRun if true, plans and reports changes without sending them.
	DryRun bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Marker:        ownership.DefaultMarker,
		AdoptExisting: true,
		Strategy:      StrategyCreateStatic,
	}
}

// Reconciler implements query, apply, revert and status for one device.
type Reconciler struct {
	device Transactor
	config Config
	logger *slog.Logger
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfig sets the reconciler configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

// New creates a new Reconciler that talks to device.
func New(device Transactor, opts ...Option) *Reconciler {
	r := &Reconciler{
		device: device,
		config: DefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.config.Marker == "" {
		r.config.Marker = ownership.DefaultMarker
	}
	if r.config.Strategy == "" {
		r.config.Strategy = StrategyCreateStatic
	}

	return r
}

// Config returns the active configuration.
func (r *Reconciler) Config() Config {
	return r.config
}

// repos binds the repositories to the transaction's channel.
func (r *Reconciler) repos(ch routeros.Channel) (*lease.Repository, *option.Repository) {
	return lease.NewRepository(ch, lease.WithLogger(r.logger)),
		option.NewRepository(ch, option.WithLogger(r.logger))
}

// observe records metrics and the final log line for an operation.
func (r *Reconciler) observe(op Operation, client string, start time.Time, err error) {
	label := outcome(err)
	metrics.OperationsTotal.WithLabelValues(string(op), label).Inc()
	metrics.OperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

	if err == nil {
		return
	}

	attrs := []any{
		slog.String("operation", string(op)),
		slog.String("client", client),
		slog.String("error", err.Error()),
	}
	if ce, ok := conflictOf(err); ok {
		metrics.ConflictsTotal.WithLabelValues(string(ce.Kind)).Inc()
		r.logger.Warn("refusing to modify record owned elsewhere", append(attrs,
			slog.String("kind", string(ce.Kind)),
			slog.String("ref", ce.Ref),
			slog.String("comment", ce.Comment),
		)...)
		return
	}
	r.logger.Error("operation failed", attrs...)
}

func (r *Reconciler) logResult(result *Result) {
	r.logger.Info("operation complete",
		slog.String("operation", string(result.Operation)),
		slog.String("client", result.Client),
		slog.Bool("dry_run", result.DryRun),
		slog.Int("created", result.CreatedCount()),
		slog.Int("updated", result.UpdatedCount()),
		slog.Int("deleted", result.DeletedCount()),
		slog.Int("skipped", len(result.Skipped())),
		slog.Duration("duration", result.Duration()),
	)
	for _, a := range result.Actions {
		r.logger.Debug("action", slog.String("action", a.String()))
	}
}

func conflictOf(err error) (*ownership.ConflictError, bool) {
	var ce *ownership.ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func leaseConflict(l lease.Lease) error {
	return &ownership.ConflictError{Kind: ownership.KindLease, Ref: leaseRef(l), Comment: l.Comment}
}

// leaseRef names a lease for messages: its address and id.
func leaseRef(l lease.Lease) string {
	return fmt.Sprintf("%s (%s)", l.Address, l.ID)
}
