// Package relayerr holds the sentinel errors for the relay's error
// taxonomy (kinds, not type hierarchies), in the teacher's flat
// errors.New style rather than a custom error-type hierarchy.
package relayerr

import "errors"

var (
	// ErrProtocol marks a malformed inbound introduction message: bad
	// JSON or a missing required field. The introduction connection that
	// produced it is closed and its peer unregistered.
	ErrProtocol = errors.New("relay: malformed introduction message")

	// ErrTransport marks a lower-level I/O failure on a peer transport.
	// It is treated exactly like a close for whatever role the transport
	// held (peer record, rendezvous slot, or bridge side).
	ErrTransport = errors.New("relay: transport failure")

	// ErrPeerGone marks an attempt to send to a peer no longer
	// registered, a race between a match and a close. Never escalated:
	// callers log and continue.
	ErrPeerGone = errors.New("relay: peer no longer registered")

	// ErrBind marks a failure to acquire the listener's port.
	ErrBind = errors.New("relay: listener bind failure")
)
