package routeros

import "github.com/go-routeros/routeros/v3/proto"

// Response is one element of a device answer. The concrete type is always one
// of Reply, Done, Trap or Fatal.
type Response interface {
	isResponse()
}

// Reply carries one record ("!re").
type Reply struct {
	Attrs map[string]string
}

// Done terminates a successful command ("!done"). Attrs holds "ret" for add.
type Done struct {
	Attrs map[string]string
}

// Trap reports a command-level failure ("!trap"). The channel stays usable.
type Trap struct {
	Category string
	Message  string
}

// Fatal reports that the device is closing the connection ("!fatal").
type Fatal struct {
	Reason string
}

func (Reply) isResponse() {}
func (Done) isResponse()  {}
func (Trap) isResponse()  {}
func (Fatal) isResponse() {}

// Responses is the ordered answer to a single command.
type Responses []Response

// Trap returns the first trap in the answer, if any.
func (rs Responses) Trap() (Trap, bool) {
	for _, r := range rs {
		if t, ok := r.(Trap); ok {
			return t, true
		}
	}
	return Trap{}, false
}

// Ret returns the "ret" attribute of the done sentence (the id of an added item).
func (rs Responses) Ret() string {
	for _, r := range rs {
		if d, ok := r.(Done); ok {
			return d.Attrs["ret"]
		}
	}
	return ""
}

// Replies returns the reply records, or an error if the device trapped or
// failed fatally. Traps become *TrapError, fatals *FatalError.
func (rs Responses) Replies(cmd Command) ([]Reply, error) {
	var replies []Reply
	for _, r := range rs {
		switch r := r.(type) {
		case Reply:
			replies = append(replies, r)
		case Done:
		case Trap:
			return nil, &TrapError{Command: cmd.Path, Category: r.Category, Message: r.Message}
		case Fatal:
			return nil, &FatalError{Reason: r.Reason}
		}
	}
	return replies, nil
}

// Err reduces the answer to its error, ignoring replies.
func (rs Responses) Err(cmd Command) error {
	_, err := rs.Replies(cmd)
	return err
}

// fromSentence converts a reply sentence read by the API library.
func fromSentence(sen *proto.Sentence) Response {
	attrs := make(map[string]string, len(sen.Map))
	for k, v := range sen.Map {
		attrs[k] = v
	}
	switch sen.Word {
	case "!re":
		return Reply{Attrs: attrs}
	case "!trap":
		return Trap{Category: attrs["category"], Message: attrs["message"]}
	case "!fatal":
		reason := attrs["message"]
		if reason == "" {
			reason = "connection closed by device"
		}
		return Fatal{Reason: reason}
	default:
		return Done{Attrs: attrs}
	}
}
