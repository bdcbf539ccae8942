package routeros

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for channel operations.
var (
	// ErrDeviceRejected is matched by every *TrapError.
	ErrDeviceRejected = errors.New("device rejected command")

	// ErrChannelFailure is matched by transport and fatal errors. The connection
	// that produced it must not be reused.
	ErrChannelFailure = errors.New("device channel failure")

	// ErrAuthenticationFailed is returned when login is refused.
	ErrAuthenticationFailed = errors.New("device authentication failed")

	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("device connection closed")
)

// TrapError is a "!trap" answer to a command that was expected to succeed.
type TrapError struct {
	Command  string
	Category string
	Message  string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Is makes errors.Is(err, ErrDeviceRejected) true.
func (e *TrapError) Is(target error) bool {
	return target == ErrDeviceRejected
}

// NotFound reports a trap meaning the referenced item does not exist.
func (e *TrapError) NotFound() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "no such item") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not match any value")
}

// AlreadyExists reports a trap meaning the item to add is already present.
func (e *TrapError) AlreadyExists() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "already have") ||
		strings.Contains(msg, "already exists")
}

// FatalError is a "!fatal" answer; the device closes the session after it.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Reason
}

// Is makes errors.Is(err, ErrChannelFailure) true.
func (e *FatalError) Is(target error) bool {
	return target == ErrChannelFailure
}

// ChannelError wraps a transport error with the command that hit it.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrChannelFailure) true.
func (e *ChannelError) Is(target error) bool {
	return target == ErrChannelFailure
}

// IsNotFound reports whether err is a trap about a missing item.
func IsNotFound(err error) bool {
	var te *TrapError
	return errors.As(err, &te) && te.NotFound()
}

// IsAlreadyExists reports whether err is a trap about a duplicate item.
func IsAlreadyExists(err error) bool {
	var te *TrapError
	return errors.As(err, &te) && te.AlreadyExists()
}

// IsChannelFailure reports whether err means the connection is unusable.
func IsChannelFailure(err error) bool {
	return errors.Is(err, ErrChannelFailure)
}
