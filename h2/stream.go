package h2

import (
	"github.com/outline-cli-ws/protocore/h2/hpack"
	"github.com/outline-cli-ws/protocore/internal/async"
)

// StreamState is an RFC 7540 §5.1 stream state.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (s StreamState) String() string {
	names := [...]string{"idle", "reserved(local)", "reserved(remote)", "open", "half-closed(local)", "half-closed(remote)", "closed"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Stream tracks one multiplexed HTTP/2 request/response exchange's state,
// header/body accumulation, and flow-control window. A stream never
// back-references its owning Conn directly; the driver looks streams up by
// ID in Conn's guarded map instead, which is what makes a stream safe to
// hand to caller code via RefCounted/Weak without forming a cycle.
type Stream struct {
	id    uint32
	state StreamState

	headers    []hpack.HeaderField
	headerDone bool
	body       []byte
	trailers   []hpack.HeaderField

	sendWindow int64
	recvWindow int64

	closedByErr error
}

func newStream(id uint32, initialSendWindow, initialRecvWindow uint32) *Stream {
	return &Stream{
		id:         id,
		state:      StreamIdle,
		sendWindow: int64(initialSendWindow),
		recvWindow: int64(initialRecvWindow),
	}
}

// ID returns the stream identifier, odd for client-initiated streams and
// even for server-initiated (pushed) streams, per RFC 7540 §5.1.1.
func (s *Stream) ID() uint32 { return s.id }

// State returns the stream's current RFC 7540 §5.1 state.
func (s *Stream) State() StreamState { return s.state }

// Headers returns the decoded request/response header list once a HEADERS
// block (and any CONTINUATIONs) has been fully reassembled.
func (s *Stream) Headers() []hpack.HeaderField { return s.headers }

// Body returns the DATA payload accumulated so far.
func (s *Stream) Body() []byte { return s.body }

// openLocal transitions a locally-initiated idle stream to open (client
// sending HEADERS) or half-closed(local) if END_STREAM accompanies it.
func (s *Stream) openLocal(endStream bool) error {
	if s.state != StreamIdle {
		return streamErrorf(s.id, ErrCodeProtocol, "HEADERS sent on stream in state %s", s.state)
	}
	if endStream {
		s.state = StreamHalfClosedLocal
	} else {
		s.state = StreamOpen
	}
	return nil
}

// recvHeaders applies a peer-sent HEADERS frame's effect on state: idle to
// open (or half-closed(remote) with END_STREAM), or a body/trailers
// contribution if the stream is already open.
func (s *Stream) recvHeaders(fields []hpack.HeaderField, endStream bool) error {
	switch s.state {
	case StreamIdle:
		s.state = StreamOpen
		s.headers = fields
	case StreamReservedRemote:
		s.state = StreamHalfClosedLocal
		s.headers = fields
	case StreamOpen, StreamHalfClosedLocal:
		if s.headerDone && s.state == StreamOpen {
			// Trailing HEADERS after body: treat as trailers, valid only
			// with END_STREAM set (RFC 7540 §8.1).
			if !endStream {
				return streamErrorf(s.id, ErrCodeProtocol, "trailer HEADERS without END_STREAM")
			}
			s.trailers = fields
		} else {
			s.headers = fields
		}
	default:
		return streamErrorf(s.id, ErrCodeStreamClosed, "HEADERS received on stream in state %s", s.state)
	}
	s.headerDone = true
	if endStream {
		s.closeRemote()
	}
	return nil
}

// recvData applies a peer-sent DATA frame, appending its payload and
// observing END_STREAM.
func (s *Stream) recvData(payload []byte, endStream bool) error {
	switch s.state {
	case StreamOpen, StreamHalfClosedLocal:
	default:
		return streamErrorf(s.id, ErrCodeStreamClosed, "DATA received on stream in state %s", s.state)
	}
	s.body = append(s.body, payload...)
	s.recvWindow -= int64(len(payload))
	if s.recvWindow < 0 {
		return streamErrorf(s.id, ErrCodeFlowControl, "stream %d recv window went negative", s.id)
	}
	if endStream {
		s.closeRemote()
	}
	return nil
}

// closeLocal marks this side done sending; half-closed(local) if the peer
// hasn't also finished, else fully closed.
func (s *Stream) closeLocal() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	}
}

// closeRemote marks the peer done sending.
func (s *Stream) closeRemote() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	case StreamReservedRemote:
		s.state = StreamClosed
	}
}

// reset forces the stream to Closed due to RST_STREAM, local or remote.
func (s *Stream) reset(err error) {
	s.state = StreamClosed
	s.closedByErr = err
}

// applyWindowDelta retroactively adjusts the send window when a SETTINGS
// change shifts SETTINGS_INITIAL_WINDOW_SIZE for every currently open
// stream, per RFC 7540 §6.9.2.
func (s *Stream) applyWindowDelta(delta int64) error {
	s.sendWindow += delta
	if s.sendWindow > (1<<31 - 1) {
		return streamErrorf(s.id, ErrCodeFlowControl, "stream %d send window overflow after SETTINGS delta", s.id)
	}
	return nil
}

// streamEntry is what Conn's stream map actually stores: a RefCounted handle so
// caller-held ServerStream/fetch results keep the underlying Stream alive
// independent of the driver's own bookkeeping, per the cyclic-ownership
// design in internal/async.
type streamEntry struct {
	ref  async.RefCounted[*Stream]
	weak async.Weak[*Stream]
}
