// Package option manages the named DHCP options that carry per-client DNS
// servers.
package option

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

const menu = "/ip/dhcp-server/option"

// DNSServerCode is DHCP option 6, Domain Name Server.
var DNSServerCode = dhcpv4.OptionDomainNameServer.Code()

// Option is one named DHCP option record.
type Option struct {
	ID      string
	Name    string
	Code    uint8
	Value   string
	Comment string
}

// Ownership classifies the option against marker.
func (o Option) Ownership(marker string) ownership.Ownership {
	return ownership.Classify(o.Comment, marker)
}

// NameFor derives the option name for a client, e.g. "dns-10-0-0-50".
func NameFor(addr string) string {
	return "dns-" + strings.ReplaceAll(addr, ".", "-")
}

// ForClient builds the DNS option for addr pointing at servers.
func ForClient(addr string, servers []netip.Addr, marker string) Option {
	return Option{
		Name:    NameFor(addr),
		Code:    DNSServerCode,
		Value:   EncodeServers(servers),
		Comment: marker,
	}
}

// EncodeServers renders servers in RouterOS quoted form: '1.1.1.1''8.8.8.8'.
func EncodeServers(servers []netip.Addr) string {
	var b strings.Builder
	for _, s := range servers {
		b.WriteByte('\'')
		b.WriteString(s.String())
		b.WriteByte('\'')
	}
	return b.String()
}

// DecodeValue turns an option value back into addresses. It understands the
// quoted form and the 0x-prefixed hex form RouterOS also accepts. Values it
// cannot decode are returned verbatim as a single element.
func DecodeValue(value string) []string {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return nil
	case strings.HasPrefix(v, "'"):
		var out []string
		for _, part := range strings.Split(v, "'") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X"):
		if ips, ok := decodeHex(v[2:]); ok {
			return ips
		}
	}
	return []string{v}
}

// decodeHex reads packed IPv4 addresses using the option 6 wire layout.
func decodeHex(h string) ([]string, bool) {
	if len(h) == 0 || len(h)%8 != 0 {
		return nil, false
	}
	raw := make([]byte, len(h)/2)
	for i := range raw {
		b, err := strconv.ParseUint(h[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, false
		}
		raw[i] = byte(b)
	}

	var opts dhcpv4.Options = map[uint8][]byte{DNSServerCode: raw}
	ips := dhcpv4.GetIPs(dhcpv4.OptionDomainNameServer, opts)
	if len(ips) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out, true
}

// Repository issues option commands over a channel.
type Repository struct {
	ch     routeros.Channel
	logger *slog.Logger
}

// RepoOption is a functional option for configuring the Repository.
type RepoOption func(*Repository)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) RepoOption {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRepository binds a repository to ch.
func NewRepository(ch routeros.Channel, opts ...RepoOption) *Repository {
	r := &Repository{ch: ch, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome reports what Ensure did.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
)

// Ensure creates o, or updates the existing option of the same name. o.Comment
// is the ownership marker: an existing option with a different non-empty
// comment is left untouched and reported as a *ownership.ConflictError. An
// existing option with no comment gets the marker.
func (r *Repository) Ensure(ctx context.Context, o Option) (Outcome, error) {
	add := routeros.NewCommand(menu+"/add").
		With("name", o.Name).
		With("code", strconv.Itoa(int(o.Code))).
		With("value", o.Value).
		With("comment", o.Comment)

	resps, err := r.ch.Send(ctx, add)
	if err != nil {
		return "", fmt.Errorf("creating option %s: %w", o.Name, err)
	}
	addErr := resps.Err(add)
	if addErr == nil {
		r.logger.Info("created DHCP option",
			slog.String("name", o.Name),
			slog.String("value", o.Value),
		)
		return Created, nil
	}
	if !routeros.IsAlreadyExists(addErr) {
		return "", fmt.Errorf("creating option %s: %w", o.Name, addErr)
	}

	existing, err := r.FindByName(ctx, o.Name)
	if err != nil {
		return "", err
	}
	if existing == nil {
		// The device claimed a duplicate but has none under that name.
		return "", fmt.Errorf("creating option %s: %w", o.Name, addErr)
	}

	switch existing.Ownership(o.Comment) {
	case ownership.ManagedByOther:
		r.logger.Warn("DHCP option owned by another tool",
			slog.String("name", o.Name),
			slog.String("comment", existing.Comment),
		)
		return "", &ownership.ConflictError{Kind: ownership.KindOption, Ref: o.Name, Comment: existing.Comment}
	case ownership.Unmanaged, ownership.ManagedByUs:
	}

	set := routeros.NewCommand(menu+"/set").With(".id", existing.ID).With("value", o.Value)
	if existing.Comment == "" {
		set = set.With("comment", o.Comment)
	}
	resps, err = r.ch.Send(ctx, set)
	if err != nil {
		return "", fmt.Errorf("updating option %s: %w", o.Name, err)
	}
	if err := resps.Err(set); err != nil {
		return "", fmt.Errorf("updating option %s: %w", o.Name, err)
	}

	r.logger.Info("updated DHCP option",
		slog.String("name", o.Name),
		slog.String("value", o.Value),
	)
	return Updated, nil
}

// FindByName returns the option called name, or nil.
func (r *Repository) FindByName(ctx context.Context, name string) (*Option, error) {
	cmd := routeros.NewCommand(menu+"/print").Where("name", name)
	resps, err := r.ch.Send(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("reading option %s: %w", name, err)
	}
	replies, err := resps.Replies(cmd)
	if err != nil {
		return nil, fmt.Errorf("reading option %s: %w", name, err)
	}

	for _, reply := range replies {
		if reply.Attrs["name"] != name {
			continue
		}
		o := Option{
			ID:      reply.Attrs[".id"],
			Name:    name,
			Value:   reply.Attrs["value"],
			Comment: reply.Attrs["comment"],
		}
		if code, err := strconv.ParseUint(reply.Attrs["code"], 10, 8); err == nil {
			o.Code = uint8(code)
		}
		return &o, nil
	}
	return nil, nil
}

// Remove deletes the option called name. A missing option is not an error.
func (r *Repository) Remove(ctx context.Context, name string) error {
	cmd := routeros.NewCommand(menu+"/remove").With("numbers", name)
	resps, err := r.ch.Send(ctx, cmd)
	if err != nil {
		return fmt.Errorf("removing option %s: %w", name, err)
	}
	if err := resps.Err(cmd); err != nil {
		if routeros.IsNotFound(err) {
			r.logger.Debug("DHCP option already removed", slog.String("name", name))
			return nil
		}
		var te *routeros.TrapError
		if errors.As(err, &te) {
			r.logger.Warn("device rejected option removal",
				slog.String("name", name),
				slog.String("message", te.Message),
			)
		}
		return fmt.Errorf("removing option %s: %w", name, err)
	}

	r.logger.Info("removed DHCP option", slog.String("name", name))
	return nil
}
