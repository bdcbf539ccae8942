// Package ownership decides who controls a device record, based on the
// record's comment field.
package ownership

import (
	"errors"
	"fmt"
)

// DefaultMarker is the comment written on records this service manages.
const DefaultMarker = "DNS-Switcher-Managed"

// Ownership classifies a device record.
type Ownership int

const (
	// Unmanaged records have an empty comment.
	Unmanaged Ownership = iota
	// ManagedByUs records carry exactly the configured marker.
	ManagedByUs
	// ManagedByOther records carry any other comment and are never touched.
	ManagedByOther
)

func (o Ownership) String() string {
	switch o {
	case Unmanaged:
		return "unmanaged"
	case ManagedByUs:
		return "managed"
	case ManagedByOther:
		return "foreign"
	default:
		return fmt.Sprintf("ownership(%d)", int(o))
	}
}

// Classify compares comment with marker byte for byte. Whitespace counts.
func Classify(comment, marker string) Ownership {
	switch {
	case comment == "":
		return Unmanaged
	case comment == marker:
		return ManagedByUs
	default:
		return ManagedByOther
	}
}

// Kind names the record type in a conflict.
type Kind string

const (
	KindLease  Kind = "lease"
	KindOption Kind = "option"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("record owned by another tool")

// ConflictError reports a record the engine refused to touch.
type ConflictError struct {
	Kind Kind
	// Ref is the lease id or option name.
	Ref     string
	Comment string
}

func (e *ConflictError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("%s %s is not managed by this service", e.Kind, e.Ref)
	}
	return fmt.Sprintf("%s %s is managed by %q", e.Kind, e.Ref, e.Comment)
}

// Is makes errors.Is(err, ErrConflict) true.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConflict reports whether err is an ownership conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
