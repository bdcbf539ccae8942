package reconciler

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/lease"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/option"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// step is one planned mutation. run performs it and may refine the action
// it reports, e.g. with the id of a created lease.
type step struct {
	action Action
	run    func(ctx context.Context, a *Action) error
}

// execute runs steps in order and records each outcome. The first failure
// stops the sequence; earlier steps are not rolled back.
func (r *Reconciler) execute(ctx context.Context, steps []step, result *Result) error {
	for _, s := range steps {
		a := s.action
		if a.Type == ActionSkip {
			a.Status = StatusSkipped
			result.AddAction(a)
			continue
		}
		if r.config.DryRun {
			a.Status = StatusSuccess
			result.AddAction(a)
			continue
		}

		if err := s.run(ctx, &a); err != nil {
			a.Status = StatusFailed
			a.Error = err.Error()
			result.AddAction(a)
			return err
		}
		a.Status = StatusSuccess
		result.AddAction(a)
	}
	return nil
}

// ApplyCustomDNS points client at servers (or the configured servers when
// none are given) through a managed static lease and a per-client option.
// Repeating the call with the same arguments rewrites identical values.
func (r *Reconciler) ApplyCustomDNS(ctx context.Context, client string, servers ...netip.Addr) (*Result, error) {
	start := time.Now()

	addr, err := parseClient(client)
	if err != nil {
		r.observe(OperationApply, client, start, err)
		return nil, wrapError(OperationApply, client, err)
	}
	if len(servers) == 0 {
		servers = r.config.Servers
	}
	if len(servers) == 0 {
		r.observe(OperationApply, addr, start, ErrNoServers)
		return nil, wrapError(OperationApply, addr, ErrNoServers)
	}

	result := NewResult(OperationApply, addr, r.config.DryRun)
	err = r.device.Do(ctx, func(ctx context.Context, ch routeros.Channel) error {
		return r.apply(ctx, ch, addr, servers, result)
	})
	result.Complete()

	r.observe(OperationApply, addr, start, err)
	if err != nil {
		return result, wrapError(OperationApply, addr, err)
	}
	r.logResult(result)
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, ch routeros.Channel, addr string, servers []netip.Addr, result *Result) error {
	leases, options := r.repos(ch)

	found, err := leases.FindAllByAddress(ctx, addr)
	if err != nil {
		return err
	}

	// Every lease conflict is detected before the first mutation.
	plan, err := r.planLease(found)
	if err != nil {
		return err
	}

	opt := option.ForClient(addr, servers, r.config.Marker)
	optStep, err := r.optionStep(ctx, options, opt)
	if err != nil {
		return err
	}

	r.logger.Debug("apply plan",
		slog.String("client", addr),
		slog.String("lease_step", plan.kind.String()),
		slog.String("option", opt.Name),
	)

	steps := append([]step{optStep}, r.leaseSteps(leases, addr, opt.Name, plan)...)
	return r.execute(ctx, steps, result)
}

// optionStep ensures the client's option. In dry-run mode the existing option
// is read to predict the outcome and surface conflicts without writing.
func (r *Reconciler) optionStep(ctx context.Context, options *option.Repository, opt option.Option) (step, error) {
	a := Action{Type: ActionCreate, Kind: ownership.KindOption, Ref: opt.Name, Detail: opt.Value}

	if r.config.DryRun {
		existing, err := options.FindByName(ctx, opt.Name)
		if err != nil {
			return step{}, err
		}
		if existing != nil {
			if existing.Ownership(r.config.Marker) == ownership.ManagedByOther {
				return step{}, &ownership.ConflictError{Kind: ownership.KindOption, Ref: opt.Name, Comment: existing.Comment}
			}
			a.Type = ActionUpdate
		}
		return step{action: a}, nil
	}

	return step{action: a, run: func(ctx context.Context, a *Action) error {
		outcome, err := options.Ensure(ctx, opt)
		if outcome == option.Updated {
			a.Type = ActionUpdate
		}
		return err
	}}, nil
}

// leaseStepKind is the lease change chosen for an apply.
type leaseStepKind int

const (
	// leaseLink points our own lease at the option.
	leaseLink leaseStepKind = iota
	// leaseAdopt claims an uncommented static lease.
	leaseAdopt
	// leaseCreate adds a new static lease, with the MAC when known.
	leaseCreate
	// leaseConvert makes a dynamic lease static, then claims it.
	leaseConvert
)

func (k leaseStepKind) String() string {
	switch k {
	case leaseLink:
		return "link"
	case leaseAdopt:
		return "adopt"
	case leaseCreate:
		return "create"
	case leaseConvert:
		return "convert"
	default:
		return "unknown"
	}
}

type leasePlan struct {
	kind  leaseStepKind
	lease *lease.Lease
	mac   string
}

// planLease chooses the lease change for the leases found at the client
// address, in precedence order: our lease, a foreign lease (conflict), an
// uncommented static lease, a dynamic lease with a MAC, nothing.
func (r *Reconciler) planLease(found []lease.Lease) (leasePlan, error) {
	managed, foreign := lease.ByOwnership(found, r.config.Marker)
	if managed != nil {
		return leasePlan{kind: leaseLink, lease: managed}, nil
	}
	if foreign != nil {
		return leasePlan{}, leaseConflict(*foreign)
	}

	// make-static leaves an uncommented static lease behind when the claim
	// that follows it fails, so that strategy always adopts one.
	adopt := r.config.AdoptExisting || r.config.Strategy == StrategyMakeStatic
	for i := range found {
		if found[i].Dynamic {
			continue
		}
		if !adopt {
			return leasePlan{}, leaseConflict(found[i])
		}
		return leasePlan{kind: leaseAdopt, lease: &found[i]}, nil
	}
	for i := range found {
		l := &found[i]
		if l.MACAddress == "" {
			continue
		}
		if r.config.Strategy == StrategyMakeStatic {
			return leasePlan{kind: leaseConvert, lease: l}, nil
		}
		return leasePlan{kind: leaseCreate, mac: l.MACAddress}, nil
	}
	return leasePlan{kind: leaseCreate}, nil
}

func (r *Reconciler) leaseSteps(leases *lease.Repository, addr, optName string, plan leasePlan) []step {
	marker := r.config.Marker
	claim := lease.Update{DNSOptionName: &optName, Comment: &marker}

	update := func(id string, u lease.Update) func(context.Context, *Action) error {
		return func(ctx context.Context, _ *Action) error {
			return leases.Update(ctx, id, u)
		}
	}

	switch plan.kind {
	case leaseLink:
		a := Action{Type: ActionUpdate, Kind: ownership.KindLease, Ref: plan.lease.ID, Detail: "dhcp-option=" + optName}
		if plan.lease.DNSOptionName == optName {
			a.Type = ActionSkip
			a.Detail = "already linked to " + optName
		}
		return []step{{action: a, run: update(plan.lease.ID, lease.Update{DNSOptionName: &optName})}}

	case leaseAdopt:
		return []step{{
			action: Action{Type: ActionUpdate, Kind: ownership.KindLease, Ref: plan.lease.ID, Detail: "adopt, dhcp-option=" + optName},
			run:    update(plan.lease.ID, claim),
		}}

	case leaseConvert:
		id := plan.lease.ID
		return []step{
			{
				action: Action{Type: ActionConvert, Kind: ownership.KindLease, Ref: id, Detail: "mac " + plan.lease.MACAddress},
				run: func(ctx context.Context, _ *Action) error {
					return leases.ConvertDynamicToStatic(ctx, id)
				},
			},
			{
				action: Action{Type: ActionUpdate, Kind: ownership.KindLease, Ref: id, Detail: "dhcp-option=" + optName},
				run:    update(id, claim),
			},
		}

	default:
		detail := "dhcp-option=" + optName
		if plan.mac != "" {
			detail = "mac " + plan.mac + ", " + detail
		}
		nl := lease.NewLease{Address: addr, MACAddress: plan.mac, DNSOptionName: optName, Comment: marker}
		return []step{{
			action: Action{Type: ActionCreate, Kind: ownership.KindLease, Detail: detail},
			run: func(ctx context.Context, a *Action) error {
				id, err := leases.Create(ctx, nl)
				a.Ref = id
				return err
			},
		}}
	}
}

// RemoveCustomDNS removes the client's managed lease and the option it links,
// returning the client to the server defaults. A client without a managed
// lease is left alone and the call succeeds.
func (r *Reconciler) RemoveCustomDNS(ctx context.Context, client string) (*Result, error) {
	start := time.Now()

	addr, err := parseClient(client)
	if err != nil {
		r.observe(OperationRevert, client, start, err)
		return nil, wrapError(OperationRevert, client, err)
	}

	result := NewResult(OperationRevert, addr, r.config.DryRun)
	err = r.device.Do(ctx, func(ctx context.Context, ch routeros.Channel) error {
		return r.revert(ctx, ch, addr, result)
	})
	result.Complete()

	r.observe(OperationRevert, addr, start, err)
	if err != nil {
		return result, wrapError(OperationRevert, addr, err)
	}
	r.logResult(result)
	return result, nil
}

func (r *Reconciler) revert(ctx context.Context, ch routeros.Channel, addr string, result *Result) error {
	leases, options := r.repos(ch)
	marker := r.config.Marker

	found, err := leases.FindAllByAddress(ctx, addr)
	if err != nil {
		return err
	}

	managed, foreign := lease.ByOwnership(found, marker)

	if managed == nil {
		if foreign != nil {
			return leaseConflict(*foreign)
		}
		result.AddAction(Action{Type: ActionSkip, Status: StatusSkipped, Kind: ownership.KindLease, Detail: "no managed lease for " + addr})
		return nil
	}

	optName := managed.DNSOptionName
	var linked *option.Option
	if optName != "" {
		linked, err = options.FindByName(ctx, optName)
		if err != nil {
			return err
		}
		if linked != nil && linked.Ownership(marker) == ownership.ManagedByOther {
			return &ownership.ConflictError{Kind: ownership.KindOption, Ref: optName, Comment: linked.Comment}
		}
	}

	id := managed.ID
	steps := []step{{
		action: Action{Type: ActionDelete, Kind: ownership.KindLease, Ref: id, Detail: addr},
		run: func(ctx context.Context, _ *Action) error {
			return leases.Remove(ctx, id)
		},
	}}
	switch {
	case linked != nil:
		steps = append(steps, step{
			action: Action{Type: ActionDelete, Kind: ownership.KindOption, Ref: optName},
			run: func(ctx context.Context, _ *Action) error {
				return options.Remove(ctx, optName)
			},
		})
	case optName != "":
		steps = append(steps, step{
			action: Action{Type: ActionSkip, Kind: ownership.KindOption, Ref: optName, Detail: "already absent"},
		})
	}

	return r.execute(ctx, steps, result)
}
