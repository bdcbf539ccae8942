// Package lease reads and writes DHCP server leases on the device.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

const menu = "/ip/dhcp-server/lease"

// Lease is one DHCP address assignment.
type Lease struct {
	ID         string
	Address    string
	MACAddress string
	Dynamic    bool
	Comment    string
	// DNSOptionName is the first entry of the lease's dhcp-option list.
	DNSOptionName string
}

// Ownership classifies the lease against marker.
func (l Lease) Ownership(marker string) ownership.Ownership {
	return ownership.Classify(l.Comment, marker)
}

// NewLease holds the fields of a static lease to create.
type NewLease struct {
	Address       string
	MACAddress    string
	DNSOptionName string
	Comment       string
}

// Update lists the fields to change; nil fields are left alone.
type Update struct {
	DNSOptionName *string
	Comment       *string
}

// Repository issues lease commands over a channel.
type Repository struct {
	ch     routeros.Channel
	logger *slog.Logger
}

// Option is a functional option for configuring the Repository.
type Option func(*Repository)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRepository binds a repository to ch.
func NewRepository(ch routeros.Channel, opts ...Option) *Repository {
	r := &Repository{ch: ch, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindAllByAddress returns every lease whose address equals addr exactly, in
// device order. A dynamic and a static lease may share an address.
func (r *Repository) FindAllByAddress(ctx context.Context, addr string) ([]Lease, error) {
	cmd := routeros.NewCommand(menu+"/print").Where("address", addr)
	resps, err := r.ch.Send(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("searching leases for %s: %w", addr, err)
	}
	replies, err := resps.Replies(cmd)
	if err != nil {
		return nil, fmt.Errorf("searching leases for %s: %w", addr, err)
	}

	var leases []Lease
	for _, reply := range replies {
		l := fromAttrs(reply.Attrs)
		if l.Address != addr {
			continue
		}
		leases = append(leases, l)
	}
	return leases, nil
}

// FindByAddress returns the first exact match, or nil.
func (r *Repository) FindByAddress(ctx context.Context, addr string) (*Lease, error) {
	leases, err := r.FindAllByAddress(ctx, addr)
	if err != nil || len(leases) == 0 {
		return nil, err
	}
	return &leases[0], nil
}

// FindManagedByAddress returns the first exact match carrying marker, or nil.
func (r *Repository) FindManagedByAddress(ctx context.Context, addr, marker string) (*Lease, error) {
	leases, err := r.FindAllByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	managed, _ := ByOwnership(leases, marker)
	return managed, nil
}

// ByOwnership returns the first lease carrying marker and the first lease
// owned by someone else. Either may be nil.
func ByOwnership(leases []Lease, marker string) (managed, foreign *Lease) {
	for i := range leases {
		switch leases[i].Ownership(marker) {
		case ownership.ManagedByUs:
			if managed == nil {
				managed = &leases[i]
			}
		case ownership.ManagedByOther:
			if foreign == nil {
				foreign = &leases[i]
			}
		case ownership.Unmanaged:
		}
	}
	return managed, foreign
}

// Create adds a static lease and returns its id.
func (r *Repository) Create(ctx context.Context, nl NewLease) (string, error) {
	cmd := routeros.NewCommand(menu+"/add").With("address", nl.Address)
	if nl.MACAddress != "" {
		cmd = cmd.With("mac-address", nl.MACAddress)
	}
	cmd = cmd.With("dhcp-option", nl.DNSOptionName).With("comment", nl.Comment)

	resps, err := r.send(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("creating lease for %s: %w", nl.Address, err)
	}

	id := resps.Ret()
	r.logger.Info("created static lease",
		slog.String("address", nl.Address),
		slog.String("id", id),
		slog.String("mac", nl.MACAddress),
		slog.String("option", nl.DNSOptionName),
	)
	return id, nil
}

// Update sets the given fields on lease id.
func (r *Repository) Update(ctx context.Context, id string, u Update) error {
	cmd := routeros.NewCommand(menu+"/set").With(".id", id)
	if u.DNSOptionName != nil {
		cmd = cmd.With("dhcp-option", *u.DNSOptionName)
	}
	if u.Comment != nil {
		cmd = cmd.With("comment", *u.Comment)
	}
	if len(cmd.Attrs) == 1 {
		return nil
	}

	if _, err := r.send(ctx, cmd); err != nil {
		return fmt.Errorf("updating lease %s: %w", id, err)
	}

	r.logger.Info("updated lease", slog.String("id", id))
	return nil
}

// Remove deletes lease id. A lease that is already gone is not an error.
func (r *Repository) Remove(ctx context.Context, id string) error {
	cmd := routeros.NewCommand(menu+"/remove").With(".id", id)
	if _, err := r.send(ctx, cmd); err != nil {
		if routeros.IsNotFound(err) {
			r.logger.Debug("lease already removed", slog.String("id", id))
			return nil
		}
		return fmt.Errorf("removing lease %s: %w", id, err)
	}

	r.logger.Info("removed lease", slog.String("id", id))
	return nil
}

// ConvertDynamicToStatic turns dynamic lease id into a static one. The id
// stays valid for later updates.
func (r *Repository) ConvertDynamicToStatic(ctx context.Context, id string) error {
	cmd := routeros.NewCommand(menu+"/make-static").With("numbers", id)
	if _, err := r.send(ctx, cmd); err != nil {
		return fmt.Errorf("converting lease %s to static: %w", id, err)
	}

	r.logger.Info("converted dynamic lease to static", slog.String("id", id))
	return nil
}

func (r *Repository) send(ctx context.Context, cmd routeros.Command) (routeros.Responses, error) {
	resps, err := r.ch.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := resps.Err(cmd); err != nil {
		var te *routeros.TrapError
		if errors.As(err, &te) && !te.NotFound() {
			r.logger.Warn("device rejected lease command",
				slog.String("command", cmd.Path),
				slog.String("message", te.Message),
			)
		}
		return nil, err
	}
	return resps, nil
}

func fromAttrs(attrs map[string]string) Lease {
	l := Lease{
		ID:         attrs[".id"],
		Address:    attrs["address"],
		MACAddress: attrs["mac-address"],
		Dynamic:    attrs["dynamic"] == "true",
		Comment:    attrs["comment"],
	}
	if opts := attrs["dhcp-option"]; opts != "" {
		first, _, _ := strings.Cut(opts, ",")
		l.DNSOptionName = strings.TrimSpace(first)
	}
	return l
}
