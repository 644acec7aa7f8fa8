package ws

import "errors"

// Error taxonomy per spec.md §7: protocol violations are fatal for the
// connection and are returned as ErrProtocol (Conn does not send a Close
// frame, 1002 or otherwise, on its own when one occurs), resource-limit
// breaches are a distinct
// variant so callers can tell misuse from peer misbehaviour, and
// ConnectionClosed/ConnectionBroken mark the transient-I/O terminal states.
var (
	// ErrProtocol wraps every frame-shape violation: bad RSV bits, an
	// oversized or fragmented control frame, an unmasked frame from a peer
	// required to mask, and so on. Wrapping errors with %w lets callers
	// match via errors.Is(err, ws.ErrProtocol).
	ErrProtocol = errors.New("ws: protocol violation")

	// ErrPayloadTooLarge is returned when a frame's declared length exceeds
	// the configured max payload, or a fragmented message's accumulated
	// size would exceed it.
	ErrPayloadTooLarge = errors.New("ws: payload exceeds configured limit")

	// ErrConnectionClosed is returned by Write after a Close frame has been
	// sent or received; no further frame emission is permitted.
	ErrConnectionClosed = errors.New("ws: connection closed")

	// ErrConnectionBroken names a connection poisoned by a write that was
	// interrupted mid-frame (e.g. the writing goroutine was cancelled). No
	// code in this package returns it: FrameWriter does not track
	// interrupted writes.
	ErrConnectionBroken = errors.New("ws: connection broken by incomplete write")
)
