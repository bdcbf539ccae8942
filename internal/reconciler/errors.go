package reconciler

import (
	"errors"
	"fmt"
	"net/netip"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

var (
	// ErrInvalidClient indicates the client address is not an IPv4 address.
	ErrInvalidClient = errors.New("invalid client address")

	// ErrNoServers indicates apply was called without any DNS server to hand out.
	ErrNoServers = errors.New("no custom DNS servers configured")
)

// OperationError wraps an engine failure with the client and operation.
type OperationError struct {
	Client    string
	Operation Operation
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Client, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func wrapError(op Operation, client string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Client: client, Operation: op, Err: err}
}

// parseClient accepts dotted-quad IPv4 only. IPv4-mapped IPv6 is unmapped.
func parseClient(client string) (string, error) {
	addr, err := netip.ParseAddr(client)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidClient, client)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return "", fmt.Errorf("%w: %q is not IPv4", ErrInvalidClient, client)
	}
	return addr.String(), nil
}

// outcome is the metrics label for an operation error.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case ownership.IsConflict(err):
		return "conflict"
	case errors.Is(err, ErrInvalidClient), errors.Is(err, ErrNoServers):
		return "invalid"
	case routeros.IsChannelFailure(err):
		return "channel_failure"
	case errors.Is(err, routeros.ErrDeviceRejected):
		return "rejected"
	default:
		return "error"
	}
}
