package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/lease"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/option"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

const dnsMenu = "/ip/dns"

// Source says where a Lookup found its answer.
type Source string

const (
	// SourceLease means the client's lease links a DNS option.
	SourceLease Source = "lease"
	// SourceGlobal means the router's own resolver configuration.
	SourceGlobal Source = "global"
	// SourceNone means nothing is configured anywhere.
	SourceNone Source = "none"
)

// Lookup is the DNS a client currently receives.
type Lookup struct {
	Client string
	Source Source

	// Servers are the resolved server addresses, if any.
	Servers []string

	// OptionName is the option the client's lease links, for SourceLease.
	OptionName string

	// Raw is the option value as stored on the device, e.g. "'9.9.9.9'".
	// Empty unless the linked option exists.
	Raw string
}

// Value renders the lookup for display. A lease that links a missing option
// shows the option name.
func (l Lookup) Value() string {
	switch {
	case len(l.Servers) > 0:
		return strings.Join(l.Servers, ", ")
	case l.OptionName != "":
		return l.OptionName
	default:
		return fmt.Sprintf("No DNS configured for client %s", l.Client)
	}
}

// ClientStatus summarises a client's leases.
type ClientStatus string

const (
	// ClientCustom means a lease managed by this service exists.
	ClientCustom ClientStatus = "CUSTOM"
	// ClientUnmanaged means a static lease owned by someone else exists.
	ClientUnmanaged ClientStatus = "UNMANAGED"
	// ClientDefault means the client only has a dynamic lease, or none.
	ClientDefault ClientStatus = "DEFAULT"
)

// ClientState combines status and DNS lookup from one device read.
type ClientState struct {
	Client string
	Status ClientStatus
	DNS    Lookup
}

// GetCurrentDNS reports the DNS servers client receives. It never mutates
// the device and never fails because of ownership.
func (r *Reconciler) GetCurrentDNS(ctx context.Context, client string) (Lookup, error) {
	state, err := r.inspect(ctx, OperationQuery, client)
	if err != nil {
		return Lookup{}, err
	}
	return state.DNS, nil
}

// Status classifies client as CUSTOM, UNMANAGED or DEFAULT.
func (r *Reconciler) Status(ctx context.Context, client string) (ClientStatus, error) {
	start := time.Now()

	addr, err := parseClient(client)
	if err != nil {
		r.observe(OperationStatus, client, start, err)
		return "", wrapError(OperationStatus, client, err)
	}

	var status ClientStatus
	err = r.device.Do(ctx, func(ctx context.Context, ch routeros.Channel) error {
		leases, _ := r.repos(ch)
		found, err := leases.FindAllByAddress(ctx, addr)
		if err != nil {
			return err
		}
		status = r.statusOf(found)
		return nil
	})

	r.observe(OperationStatus, addr, start, err)
	if err != nil {
		return "", wrapError(OperationStatus, addr, err)
	}
	return status, nil
}

// Describe returns status and current DNS of client in one transaction.
func (r *Reconciler) Describe(ctx context.Context, client string) (*ClientState, error) {
	return r.inspect(ctx, OperationQuery, client)
}

func (r *Reconciler) inspect(ctx context.Context, op Operation, client string) (*ClientState, error) {
	start := time.Now()

	addr, err := parseClient(client)
	if err != nil {
		r.observe(op, client, start, err)
		return nil, wrapError(op, client, err)
	}

	state := &ClientState{Client: addr}
	err = r.device.Do(ctx, func(ctx context.Context, ch routeros.Channel) error {
		leases, options := r.repos(ch)
		found, err := leases.FindAllByAddress(ctx, addr)
		if err != nil {
			return err
		}
		state.Status = r.statusOf(found)
		state.DNS, err = lookup(ctx, ch, options, addr, found)
		return err
	})

	r.observe(op, addr, start, err)
	if err != nil {
		return nil, wrapError(op, addr, err)
	}
	return state, nil
}

func (r *Reconciler) statusOf(found []lease.Lease) ClientStatus {
	status := ClientDefault
	for _, l := range found {
		if l.Ownership(r.config.Marker) == ownership.ManagedByUs {
			return ClientCustom
		}
		if !l.Dynamic {
			status = ClientUnmanaged
		}
	}
	return status
}

// lookup prefers the option linked by the client's lease and falls back to
// the router's resolver settings.
func lookup(ctx context.Context, ch routeros.Channel, options *option.Repository, addr string, found []lease.Lease) (Lookup, error) {
	for _, l := range found {
		if l.DNSOptionName == "" {
			continue
		}
		res := Lookup{Client: addr, Source: SourceLease, OptionName: l.DNSOptionName}
		opt, err := options.FindByName(ctx, l.DNSOptionName)
		if err != nil {
			return Lookup{}, err
		}
		if opt != nil {
			res.Raw = opt.Value
			res.Servers = option.DecodeValue(opt.Value)
		}
		return res, nil
	}

	servers, err := globalServers(ctx, ch)
	if err != nil {
		return Lookup{}, err
	}
	if len(servers) == 0 {
		return Lookup{Client: addr, Source: SourceNone}, nil
	}
	return Lookup{Client: addr, Source: SourceGlobal, Servers: servers}, nil
}

// globalServers reads the router resolver's static servers, or the dynamic
// ones when no static server is set.
func globalServers(ctx context.Context, ch routeros.Channel) ([]string, error) {
	cmd := routeros.NewCommand(dnsMenu + "/print")
	resps, err := ch.Send(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("reading router DNS settings: %w", err)
	}
	replies, err := resps.Replies(cmd)
	if err != nil {
		return nil, fmt.Errorf("reading router DNS settings: %w", err)
	}

	for _, reply := range replies {
		if servers := splitList(reply.Attrs["servers"]); len(servers) > 0 {
			return servers, nil
		}
		if servers := splitList(reply.Attrs["dynamic-servers"]); len(servers) > 0 {
			return servers, nil
		}
	}
	return nil, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
