// Package flexerr defines the error taxonomy from spec §7. Every
// user-visible failure in the library is one of these types (or wraps
// one), so callers can dispatch on kind with errors.As rather than
// string-matching messages.
package flexerr

import "fmt"

// TransportError wraps a socket failure, TLS handshake failure, or
// unexpected EOF on the command channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed line or packet that could not be
// recovered within its own record. Spec §7: never tears down the
// session by itself.
type ProtocolError struct {
	Context string
	Err     error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s: %v", e.Context, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// CommandError is a non-zero reply status from the radio.
type CommandError struct {
	Code    uint32
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command error 0x%08x: %s", e.Code, e.Message)
}

// Timeout indicates a reply was not received within the configured
// window.
type Timeout struct {
	Seq uint32
}

func (e *Timeout) Error() string { return fmt.Sprintf("timeout waiting for reply to seq %d", e.Seq) }

// Disconnected indicates the session terminated while an operation was
// pending.
type Disconnected struct {
	Reason error
}

func (e *Disconnected) Error() string {
	if e.Reason == nil {
		return "disconnected"
	}
	return fmt.Sprintf("disconnected: %v", e.Reason)
}
func (e *Disconnected) Unwrap() error { return e.Reason }

// OrphanPacket is informational only: a VITA packet whose stream id had
// no matching object-graph entry. It is never returned as an error to a
// caller; it exists so session code can funnel the event through the
// same reporting path as real errors if useful (e.g. structured
// logging), per spec §7's "informational, metric only."
type OrphanPacket struct {
	StreamID uint32
}

func (e *OrphanPacket) Error() string { return fmt.Sprintf("orphan packet for stream 0x%08x", e.StreamID) }
