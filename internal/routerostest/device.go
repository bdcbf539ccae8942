// Package routerostest provides an in-memory RouterOS device for tests.
//
// Device implements routeros.Conn over the DHCP lease, DHCP option and DNS
// menus with the trap behaviour of a real router: missing items trap with
// "no such item", duplicate option names trap with "already have", and
// dynamic leases refuse "set". Every command is recorded.
package routerostest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// Menu paths handled by the device.
const (
	LeaseMenu  = "/ip/dhcp-server/lease"
	OptionMenu = "/ip/dhcp-server/option"
	DNSMenu    = "/ip/dns"
)

// Record is one item of a menu, keyed by attribute name.
type Record map[string]string

func (r Record) clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Device is a fake router. The zero value is not usable; call New.
type Device struct {
	mu       sync.Mutex
	nextID   int
	leases   []Record
	options  []Record
	dns      Record
	commands []routeros.Command
	failures map[string]error
	traps    map[string]string
	closed   bool

	// LooseQueries makes print ignore "?" filters and return every item, the
	// way a device matching on a prefix would.
	LooseQueries bool
}

// New returns an empty device with no DNS servers configured.
func New() *Device {
	return &Device{
		nextID:   1,
		dns:      Record{"servers": "", "dynamic-servers": ""},
		failures: make(map[string]error),
		traps:    make(map[string]string),
	}
}

func (d *Device) newID() string {
	id := "*" + strings.ToUpper(strconv.FormatInt(int64(d.nextID), 16))
	d.nextID++
	return id
}

// AddLease seeds a lease and returns its id. "dynamic" defaults to "false".
func (d *Device) AddLease(attrs Record) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := attrs.clone()
	rec[".id"] = d.newID()
	if rec["dynamic"] == "" {
		rec["dynamic"] = "false"
	}
	d.leases = append(d.leases, rec)
	return rec[".id"]
}

// AddOption seeds a DHCP option and returns its id.
func (d *Device) AddOption(attrs Record) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := attrs.clone()
	rec[".id"] = d.newID()
	d.options = append(d.options, rec)
	return rec[".id"]
}

// SetDNS sets the router's own resolver configuration.
func (d *Device) SetDNS(servers, dynamicServers string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dns = Record{"servers": servers, "dynamic-servers": dynamicServers}
}

// Leases returns a copy of every lease in device order.
func (d *Device) Leases() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneAll(d.leases)
}

// Options returns a copy of every option in device order.
func (d *Device) Options() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneAll(d.options)
}

// Lease returns the lease with the given id.
func (d *Device) Lease(id string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := indexOf(d.leases, id); i >= 0 {
		return d.leases[i].clone(), true
	}
	return nil, false
}

// Option returns the option with the given name.
func (d *Device) Option(name string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.options {
		if o["name"] == name {
			return o.clone(), true
		}
	}
	return nil, false
}

// Commands returns every command received, in order.
func (d *Device) Commands() []routeros.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]routeros.Command(nil), d.commands...)
}

// Mutations returns the received commands that change state.
func (d *Device) Mutations() []routeros.Command {
	var out []routeros.Command
	for _, c := range d.Commands() {
		if c.IsMutation() {
			out = append(out, c)
		}
	}
	return out
}

// Paths returns the path of every command received, in order.
func (d *Device) Paths() []string {
	var out []string
	for _, c := range d.Commands() {
		out = append(out, c.Path)
	}
	return out
}

// ResetCommands forgets the recorded commands.
func (d *Device) ResetCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = nil
}

// FailNext makes the next command on path fail with a channel error wrapping err.
func (d *Device) FailNext(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[path] = err
}

// TrapNext makes the next command on path trap with message.
func (d *Device) TrapNext(path, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.traps[path] = message
}

// Close implements routeros.Conn.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Send implements routeros.Channel.
func (d *Device) Send(ctx context.Context, cmd routeros.Command) (routeros.Responses, error) {
	if err := ctx.Err(); err != nil {
		return nil, &routeros.ChannelError{Op: cmd.Path, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, &routeros.ChannelError{Op: cmd.Path, Err: routeros.ErrClosed}
	}

	d.commands = append(d.commands, cmd)

	if err, ok := d.failures[cmd.Path]; ok {
		delete(d.failures, cmd.Path)
		return nil, &routeros.ChannelError{Op: cmd.Path, Err: err}
	}
	if msg, ok := d.traps[cmd.Path]; ok {
		delete(d.traps, cmd.Path)
		return trap(msg), nil
	}

	switch cmd.Menu() {
	case LeaseMenu:
		return d.leaseCommand(cmd)
	case OptionMenu:
		return d.optionCommand(cmd)
	case DNSMenu:
		if cmd.Verb() == "print" {
			return append(routeros.Responses{routeros.Reply{Attrs: d.dns.clone()}}, done("")...), nil
		}
	}
	return trap("no such command prefix"), nil
}

func (d *Device) leaseCommand(cmd routeros.Command) (routeros.Responses, error) {
	switch cmd.Verb() {
	case "print":
		return d.print(d.leases, cmd), nil

	case "add":
		address, _ := cmd.Attr("address")
		if address == "" {
			return trap("failure: address not specified"), nil
		}
		for _, l := range d.leases {
			if l["address"] == address && l["dynamic"] != "true" {
				return trap("failure: already have static lease for this IP address"), nil
			}
		}
		rec := Record{".id": d.newID(), "dynamic": "false"}
		for _, a := range cmd.Attrs {
			rec[a.Key] = a.Value
		}
		d.leases = append(d.leases, rec)
		return done(rec[".id"]), nil

	case "set":
		i := d.target(d.leases, cmd)
		if i < 0 {
			return trap("no such item"), nil
		}
		if d.leases[i]["dynamic"] == "true" {
			return trap("failure: can not change dynamic lease"), nil
		}
		for _, a := range cmd.Attrs {
			if a.Key == ".id" || a.Key == "numbers" {
				continue
			}
			d.leases[i][a.Key] = a.Value
		}
		return done(""), nil

	case "make-static":
		i := d.target(d.leases, cmd)
		if i < 0 {
			return trap("no such item"), nil
		}
		d.leases[i]["dynamic"] = "false"
		return done(""), nil

	case "remove":
		i := d.target(d.leases, cmd)
		if i < 0 {
			return trap("no such item"), nil
		}
		d.leases = append(d.leases[:i], d.leases[i+1:]...)
		return done(""), nil
	}
	return trap("no such command"), nil
}

func (d *Device) optionCommand(cmd routeros.Command) (routeros.Responses, error) {
	switch cmd.Verb() {
	case "print":
		return d.print(d.options, cmd), nil

	case "add":
		name, _ := cmd.Attr("name")
		if name == "" {
			return trap("failure: name not specified"), nil
		}
		for _, o := range d.options {
			if o["name"] == name {
				return trap("failure: already have option with such name"), nil
			}
		}
		rec := Record{".id": d.newID()}
		for _, a := range cmd.Attrs {
			rec[a.Key] = a.Value
		}
		d.options = append(d.options, rec)
		return done(rec[".id"]), nil

	case "set":
		i := d.target(d.options, cmd)
		if i < 0 {
			return trap("no such item"), nil
		}
		for _, a := range cmd.Attrs {
			if a.Key == ".id" || a.Key == "numbers" {
				continue
			}
			d.options[i][a.Key] = a.Value
		}
		return done(""), nil

	case "remove":
		i := d.target(d.options, cmd)
		if i < 0 {
			return trap("no such item"), nil
		}
		d.options = append(d.options[:i], d.options[i+1:]...)
		return done(""), nil
	}
	return trap("no such command"), nil
}

// target resolves ".id" or "numbers" (an id or a name) to an index.
func (d *Device) target(items []Record, cmd routeros.Command) int {
	if id, ok := cmd.Attr(".id"); ok {
		return indexOf(items, id)
	}
	if ref, ok := cmd.Attr("numbers"); ok {
		if i := indexOf(items, ref); i >= 0 {
			return i
		}
		for i, it := range items {
			if it["name"] != "" && it["name"] == ref {
				return i
			}
		}
	}
	return -1
}

func (d *Device) print(items []Record, cmd routeros.Command) routeros.Responses {
	var resps routeros.Responses
	for _, it := range items {
		if !d.LooseQueries && !matches(it, cmd.Queries) {
			continue
		}
		resps = append(resps, routeros.Reply{Attrs: it.clone()})
	}
	return append(resps, done("")...)
}

func matches(rec Record, queries []routeros.Query) bool {
	for _, q := range queries {
		if rec[q.Key] != q.Value {
			return false
		}
	}
	return true
}

func indexOf(items []Record, id string) int {
	for i, it := range items {
		if it[".id"] == id {
			return i
		}
	}
	return -1
}

func cloneAll(items []Record) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.clone())
	}
	return out
}

func trap(msg string) routeros.Responses {
	return routeros.Responses{
		routeros.Trap{Message: msg},
		routeros.Done{Attrs: map[string]string{}},
	}
}

func done(ret string) routeros.Responses {
	attrs := map[string]string{}
	if ret != "" {
		attrs["ret"] = ret
	}
	return routeros.Responses{routeros.Done{Attrs: attrs}}
}

// Describe renders a command as "path k=v ... ?k=v" for test failure output.
func Describe(cmd routeros.Command) string {
	parts := []string{cmd.Path}
	attrs := append([]routeros.Attr(nil), cmd.Attrs...)
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	for _, a := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value))
	}
	for _, q := range cmd.Queries {
		parts = append(parts, fmt.Sprintf("?%s=%s", q.Key, q.Value))
	}
	return strings.Join(parts, " ")
}
