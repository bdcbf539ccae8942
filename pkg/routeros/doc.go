// Package routeros provides the command channel to a MikroTik RouterOS device.
//
// Two transports implement the [Channel] interface:
//
//   - [Client]: the native API protocol (TCP 8728, TLS 8729), optionally dialled
//     through an SSH tunnel
//   - [RESTClient]: the RouterOS v7 REST API over HTTPS
//
// Both return the device's answer as an ordered [Responses] slice whose elements
// are one of [Reply], [Done], [Trap] or [Fatal]. Callers consume it with an
// exhaustive type switch:
//
//	resps, err := ch.Send(ctx, routeros.NewCommand("/ip/dhcp-server/lease/print").
//		Where("address", "10.0.0.50"))
//	if err != nil {
//		return err // transport failure
//	}
//	for _, r := range resps {
//		switch r := r.(type) {
//		case routeros.Reply:
//			fmt.Println(r.Attrs[".id"])
//		case routeros.Done:
//		case routeros.Trap:
//			return &routeros.TrapError{Command: cmd.Path, Message: r.Message}
//		case routeros.Fatal:
//			return &routeros.FatalError{Reason: r.Reason}
//		}
//	}
//
// Or with the helpers on [Responses]:
//
//	replies, err := resps.Replies(cmd)
//
// # Wire format
//
// The native API exchanges sentences: a sequence of length-prefixed words
// terminated by an empty word. Commands start with the command path followed by
// "=key=value" attribute words and "?key=value" query words. Replies start with
// "!re", "!done", "!trap", "!empty" or "!fatal". Framing and login are
// handled by github.com/go-routeros/routeros.
//
// A channel carries one command at a time. Serialising callers is the job of the
// layer above (see internal/device).
package routeros
