package h2

import (
	"bytes"
	"context"
	"fmt"

	"github.com/outline-cli-ws/protocore/h2/hpack"
	"github.com/outline-cli-ws/protocore/internal/async"
	"github.com/outline-cli-ws/protocore/internal/buffer"
	"github.com/outline-cli-ws/protocore/internal/obslog"
	"go.uber.org/zap"
)

// ClientPreface is the fixed connection preface RFC 7540 §3.5 requires every
// client to send before any frame.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Side distinguishes the two roles so Conn knows which stream IDs it is
// allowed to initiate (odd for clients, even for servers, RFC 7540 §5.1.1).
type Side int

const (
	SideServer Side = iota
	SideClient
)

// Conn drives a single HTTP/2 connection: the frame codec, HPACK encoder/
// decoder pair, per-stream state keyed by ID (the "SORP"/"SCRP" maps —
// stream-open-received-pending and stream-close-received-pending, tracking
// streams the peer has opened or closed that the local driver hasn't yet
// surfaced to caller code), and the connection-level flow-control window.
//
// Conn itself is guarded by a single internal/async.Lock; callers (server.go
// and client.go) never hold it across a Stream I/O call, only while mutating
// the maps or settings, matching the "one guarded connection state, no long
// holds" design note.
type Conn struct {
	side   Side
	codec  *FrameCodec
	logger *zap.Logger

	mu async.Lock

	localSettings  Settings
	remoteSettings Settings

	enc *hpack.Encoder
	dec *hpack.Decoder

	streams       map[uint32]*streamEntry
	lastPeerID    uint32 // highest stream ID the peer has opened
	nextLocalID   uint32
	goAwaySent    bool
	goAwayRecv    bool
	lastGoodLocal uint32

	connSendWindow int64
	connRecvWindow int64

	// headerFrag accumulates HEADERS+CONTINUATION payloads for the stream
	// currently mid-header-block; RFC 7540 §6.10 forbids interleaving other
	// frames (other than CONTINUATION) while one is open.
	headerFragStream uint32
	headerFrag       []byte
	headerFragEnd    bool
}

// NewConn wires a Conn around an already-connected transport. src/dst are
// typically the same net.Conn wrapped as both a buffer.Source and an
// async.Stream.
func NewConn(side Side, src buffer.Source, dst async.Stream, logger *zap.Logger) *Conn {
	ls := DefaultSettings()
	rs := DefaultSettings()
	c := &Conn{
		side:           side,
		codec:          NewFrameCodec(src, dst, ls.MaxFrameSize),
		logger:         obslog.Or(logger),
		localSettings:  ls,
		remoteSettings: rs,
		enc:            hpack.NewEncoder(ls.HeaderTableSize),
		dec:            hpack.NewDecoder(rs.HeaderTableSize),
		streams:        make(map[uint32]*streamEntry),
		connSendWindow: int64(rs.InitialWindowSize),
		connRecvWindow: int64(ls.InitialWindowSize),
	}
	if side == SideClient {
		c.nextLocalID = 1
	} else {
		c.nextLocalID = 2
	}
	return c
}

// Handshake performs the connection preface exchange: a client writes
// ClientPreface followed by a SETTINGS frame; a server reads the preface
// before anything else. Both sides then exchange an initial SETTINGS frame
// and its ACK.
func (c *Conn) Handshake(ctx context.Context, initial []SettingPair) error {
	if c.side == SideClient {
		if err := c.codec.dst.WriteAll(ctx, []byte(ClientPreface)); err != nil {
			return fmt.Errorf("h2: writing client preface: %w", err)
		}
	} else {
		preface, err := buffer.ReadUntil(ctx, c.codec.src, c.codec.fab, 0, len(ClientPreface))
		if err != nil {
			return connErrorf(ErrCodeProtocol, "reading client preface: %v", err)
		}
		if !bytes.Equal(preface, []byte(ClientPreface)) {
			return connErrorf(ErrCodeProtocol, "client preface mismatch")
		}
		if err := c.codec.fab.CommitCurrent(len(ClientPreface)); err != nil {
			return err
		}
		c.codec.fab.ClearAntecedent()
		c.codec.fab.AdvanceMessage()
	}

	payload := EncodeSettingsPayload(initial)
	if err := c.codec.WriteFrame(ctx, FrameHeader{Type: FrameSettings, Length: uint32(len(payload))}, payload); err != nil {
		return err
	}
	for _, p := range initial {
		applySettingLocally(&c.localSettings, p)
	}
	c.logger.Debug("h2 handshake sent initial SETTINGS", zap.Int("n", len(initial)))
	return nil
}

func applySettingLocally(s *Settings, p SettingPair) {
	_, _ = s.Apply([]SettingPair{p})
}

// Run drives the connection: it reads frames until a read fails, a
// connection error occurs, or ctx is cancelled, passing each affected Stream
// and frame type to dispatch. A received GOAWAY is recorded but does not end
// the loop; a stream error is answered with RST_STREAM and reading goes on.
// server.go and client.go each supply a dispatch callback matching their
// surface.
func (c *Conn) Run(ctx context.Context, dispatch func(*Stream, FrameType)) error {
	for {
		f, err := c.codec.ReadFrame(ctx)
		if err != nil {
			return err
		}
		if err := c.handleFrame(ctx, f, dispatch); err != nil {
			var serr *StreamError
			if asStreamError(err, &serr) {
				if sendErr := c.sendReset(ctx, serr.StreamID, serr.Code); sendErr != nil {
					return sendErr
				}
				continue
			}
			var cerr *ConnError
			if asConnError(err, &cerr) {
				_ = c.sendGoAway(ctx, cerr.Code, cerr.Reason)
				return cerr
			}
			return err
		}
	}
}

func asStreamError(err error, out **StreamError) bool {
	se, ok := err.(*StreamError)
	if ok {
		*out = se
	}
	return ok
}

func asConnError(err error, out **ConnError) bool {
	ce, ok := err.(*ConnError)
	if ok {
		*out = ce
	}
	return ok
}

func (c *Conn) handleFrame(ctx context.Context, f *Frame, dispatch func(*Stream, FrameType)) error {
	switch f.Type {
	case FrameSettings:
		return c.handleSettings(ctx, f)
	case FramePing:
		return c.handlePing(ctx, f)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(f)
	case FrameGoAway:
		c.goAwayRecv = true
		return nil
	case FrameRSTStream:
		return c.handleRSTStream(f)
	case FrameHeaders, FrameContinuation:
		return c.handleHeaderBlock(f, dispatch)
	case FrameData:
		return c.handleData(ctx, f, dispatch)
	case FramePriority:
		return nil // priority signalling is accepted and ignored (spec.md §4.4 Non-goals)
	default:
		return nil // unknown frame types are ignored per RFC 7540 §4.1
	}
}

func (c *Conn) handleSettings(ctx context.Context, f *Frame) error {
	if f.Flags.Has(FlagAck) {
		return nil
	}
	pairs, err := DecodeSettingsPayload(f.Payload)
	if err != nil {
		return err
	}
	guard := c.mu.Acquire()
	windowDelta, err := c.remoteSettings.Apply(pairs)
	if err != nil {
		guard.Release()
		return err
	}
	c.enc.SetMaxTableSize(nil, c.remoteSettings.HeaderTableSize)
	if windowDelta != 0 {
		for _, se := range c.streams {
			_ = se.ref.Value().applyWindowDelta(windowDelta)
		}
	}
	guard.Release()
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameSettings, Flags: FlagAck}, nil)
}

func (c *Conn) handlePing(ctx context.Context, f *Frame) error {
	if f.Flags.Has(FlagAck) {
		return nil
	}
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FramePing, Flags: FlagAck}, f.Payload)
}

func (c *Conn) handleWindowUpdate(f *Frame) error {
	if len(f.Payload) != 4 {
		return connErrorf(ErrCodeFrameSize, "WINDOW_UPDATE payload must be 4 bytes")
	}
	inc := int64(beUint32(f.Payload) & 0x7fffffff)
	if inc == 0 {
		if f.StreamID == 0 {
			return connErrorf(ErrCodeProtocol, "WINDOW_UPDATE increment of 0 on connection")
		}
		return streamErrorf(f.StreamID, ErrCodeProtocol, "WINDOW_UPDATE increment of 0")
	}
	guard := c.mu.Acquire()
	defer guard.Release()
	if f.StreamID == 0 {
		c.connSendWindow += inc
		if c.connSendWindow > (1<<31 - 1) {
			return connErrorf(ErrCodeFlowControl, "connection send window overflow")
		}
		return nil
	}
	se, ok := c.streams[f.StreamID]
	if !ok {
		return nil // window update for a stream we've already forgotten; ignore
	}
	s := se.ref.Value()
	s.sendWindow += inc
	if s.sendWindow > (1<<31 - 1) {
		return streamErrorf(f.StreamID, ErrCodeFlowControl, "stream send window overflow")
	}
	return nil
}

func (c *Conn) handleRSTStream(f *Frame) error {
	if len(f.Payload) != 4 {
		return connErrorf(ErrCodeFrameSize, "RST_STREAM payload must be 4 bytes")
	}
	code := ErrCode(beUint32(f.Payload))
	guard := c.mu.Acquire()
	defer guard.Release()
	if se, ok := c.streams[f.StreamID]; ok {
		se.ref.Value().reset(streamErrorf(f.StreamID, code, "reset by peer"))
	}
	return nil
}

// handleHeaderBlock accumulates HEADERS/CONTINUATION fragments and, once
// END_HEADERS arrives, HPACK-decodes the full block and applies it to the
// stream, enforcing that no other frame type may interleave (RFC 7540
// §6.10) by tracking headerFragStream.
func (c *Conn) handleHeaderBlock(f *Frame, dispatch func(*Stream, FrameType)) error {
	guard := c.mu.Acquire()
	if c.headerFragStream != 0 && c.headerFragStream != f.StreamID {
		guard.Release()
		return connErrorf(ErrCodeProtocol, "frame for stream %d while header block for %d is open", f.StreamID, c.headerFragStream)
	}
	if f.Type == FrameHeaders {
		c.headerFragStream = f.StreamID
		c.headerFrag = nil
		c.headerFragEnd = f.Flags.Has(FlagEndStream)
		payload := f.Payload
		if f.Flags.Has(FlagPadded) {
			var err error
			payload, err = stripPadding(payload)
			if err != nil {
				guard.Release()
				return streamErrorf(f.StreamID, ErrCodeProtocol, "%v", err)
			}
		}
		c.headerFrag = append(c.headerFrag, payload...)
	} else {
		c.headerFrag = append(c.headerFrag, f.Payload...)
	}

	if !f.Flags.Has(FlagEndHeaders) {
		guard.Release()
		return nil
	}

	block := c.headerFrag
	endStream := c.headerFragEnd
	c.headerFragStream = 0
	c.headerFrag = nil

	fields, err := c.dec.DecodeFields(block)
	if err != nil {
		guard.Release()
		return connErrorf(ErrCodeCompression, "HPACK decode failed: %v", err)
	}

	s, err := c.streamFor(f.StreamID, true)
	if err != nil {
		guard.Release()
		return err
	}
	if err := s.recvHeaders(fields, endStream); err != nil {
		guard.Release()
		return err
	}
	guard.Release()
	dispatch(s, FrameHeaders)
	return nil
}

func stripPadding(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("padded frame missing pad length byte")
	}
	padLen := int(payload[0])
	payload = payload[1:]
	if padLen > len(payload) {
		return nil, fmt.Errorf("pad length %d exceeds payload", padLen)
	}
	return payload[:len(payload)-padLen], nil
}

func (c *Conn) handleData(ctx context.Context, f *Frame, dispatch func(*Stream, FrameType)) error {
	payload := f.Payload
	if f.Flags.Has(FlagPadded) {
		var err error
		payload, err = stripPadding(payload)
		if err != nil {
			return streamErrorf(f.StreamID, ErrCodeProtocol, "%v", err)
		}
	}
	guard := c.mu.Acquire()
	c.connRecvWindow -= int64(len(f.Payload))
	se, ok := c.streams[f.StreamID]
	if !ok {
		guard.Release()
		return streamErrorf(f.StreamID, ErrCodeStreamClosed, "DATA for unknown stream")
	}
	s := se.ref.Value()
	endStream := f.Flags.Has(FlagEndStream)
	if err := s.recvData(payload, endStream); err != nil {
		guard.Release()
		return err
	}
	needConnUpdate := c.connRecvWindow < int64(c.localSettings.InitialWindowSize)/2
	if needConnUpdate {
		c.connRecvWindow += int64(c.localSettings.InitialWindowSize)
	}
	guard.Release()
	if needConnUpdate {
		if err := c.sendWindowUpdate(ctx, 0, uint32(c.localSettings.InitialWindowSize)); err != nil {
			return err
		}
	}
	dispatch(s, FrameData)
	return nil
}

func (c *Conn) sendWindowUpdate(ctx context.Context, streamID, inc uint32) error {
	var payload [4]byte
	putUint32(payload[:], inc&0x7fffffff)
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameWindowUpdate, StreamID: streamID}, payload[:])
}

func (c *Conn) sendReset(ctx context.Context, streamID uint32, code ErrCode) error {
	var payload [4]byte
	putUint32(payload[:], uint32(code))
	guard := c.mu.Acquire()
	if se, ok := c.streams[streamID]; ok {
		se.ref.Value().reset(streamErrorf(streamID, code, "reset locally"))
	}
	guard.Release()
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameRSTStream, StreamID: streamID}, payload[:])
}

func (c *Conn) sendGoAway(ctx context.Context, code ErrCode, reason string) error {
	guard := c.mu.Acquire()
	if c.goAwaySent {
		guard.Release()
		return nil
	}
	c.goAwaySent = true
	last := c.lastPeerID
	guard.Release()

	payload := make([]byte, 8+len(reason))
	putUint32(payload[0:4], last&0x7fffffff)
	putUint32(payload[4:8], uint32(code))
	copy(payload[8:], reason)
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameGoAway}, payload)
}

// streamFor looks up or, if allowCreate and the stream is peer-initiated and
// unseen, creates a Stream entry, enforcing the 31-bit ID space and that
// peer-initiated IDs only increase (RFC 7540 §5.1.1).
func (c *Conn) streamFor(id uint32, allowCreate bool) (*Stream, error) {
	if se, ok := c.streams[id]; ok {
		return se.ref.Value(), nil
	}
	if !allowCreate {
		return nil, streamErrorf(id, ErrCodeStreamClosed, "frame for unknown stream %d", id)
	}
	if isLocalID(c.side, id) {
		return nil, connErrorf(ErrCodeProtocol, "peer opened locally-numbered stream %d", id)
	}
	if id <= c.lastPeerID {
		return nil, connErrorf(ErrCodeProtocol, "stream id %d is not greater than last peer id %d", id, c.lastPeerID)
	}
	if c.goAwaySent {
		return nil, streamErrorf(id, ErrCodeRefusedStream, "stream %d opened after GOAWAY was sent", id)
	}
	c.lastPeerID = id
	s := newStream(id, c.remoteSettings.InitialWindowSize, c.localSettings.InitialWindowSize)
	ref := async.NewRefCounted(s, func(*Stream) {})
	entry := &streamEntry{ref: ref, weak: ref.Downgrade()}
	c.streams[id] = entry
	return s, nil
}

// OpenStream allocates the next locally-numbered stream ID for a
// client-initiated request or server push, registers it, and returns the
// Stream handle.
func (c *Conn) OpenStream() *Stream {
	guard := c.mu.Acquire()
	defer guard.Release()
	id := c.nextLocalID
	c.nextLocalID += 2
	s := newStream(id, c.remoteSettings.InitialWindowSize, c.localSettings.InitialWindowSize)
	ref := async.NewRefCounted(s, func(*Stream) {})
	c.streams[id] = &streamEntry{ref: ref, weak: ref.Downgrade()}
	return s
}

// WriteHeaders HPACK-encodes fields and writes one or more HEADERS/
// CONTINUATION frames, splitting at localSettings... actually remote's max
// frame size, since that's what the peer will accept.
func (c *Conn) WriteHeaders(ctx context.Context, streamID uint32, fields []hpack.HeaderField, endStream bool) error {
	guard := c.mu.Acquire()
	block := c.enc.EncodeFields(nil, fields)
	maxFrame := int(c.remoteSettings.MaxFrameSize)
	guard.Release()

	flags := FlagEndHeaders
	if endStream {
		flags |= FlagEndStream
	}
	if len(block) <= maxFrame {
		return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameHeaders, Flags: flags, StreamID: streamID}, block)
	}

	first := block[:maxFrame]
	rest := block[maxFrame:]
	if err := c.codec.WriteFrame(ctx, FrameHeader{Type: FrameHeaders, Flags: flags &^ FlagEndHeaders, StreamID: streamID}, first); err != nil {
		return err
	}
	for len(rest) > maxFrame {
		if err := c.codec.WriteFrame(ctx, FrameHeader{Type: FrameContinuation, StreamID: streamID}, rest[:maxFrame]); err != nil {
			return err
		}
		rest = rest[maxFrame:]
	}
	return c.codec.WriteFrame(ctx, FrameHeader{Type: FrameContinuation, Flags: FlagEndHeaders, StreamID: streamID}, rest)
}

// WriteData writes payload as one or more DATA frames, respecting both the
// stream's and the connection's current send windows: each chunk is at most
// the smaller of the two windows and the peer's max frame size, and while
// either window is exhausted it re-checks them in a loop until one opens up
// or ctx is cancelled.
func (c *Conn) WriteData(ctx context.Context, s *Stream, payload []byte, endStream bool) error {
	if len(payload) == 0 {
		flags := Flags(0)
		if endStream {
			flags |= FlagEndStream
		}
		if err := c.codec.WriteFrame(ctx, FrameHeader{Type: FrameData, Flags: flags, StreamID: s.id}, nil); err != nil {
			return err
		}
		if endStream {
			guard := c.mu.Acquire()
			s.closeLocal()
			guard.Release()
		}
		return nil
	}
	for len(payload) > 0 {
		guard := c.mu.Acquire()
		avail := s.sendWindow
		if c.connSendWindow < avail {
			avail = c.connSendWindow
		}
		maxFrame := int64(c.remoteSettings.MaxFrameSize)
		if avail > maxFrame {
			avail = maxFrame
		}
		guard.Release()

		if avail <= 0 && len(payload) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		n := avail
		if int64(len(payload)) < n {
			n = int64(len(payload))
		}
		chunk := payload[:n]
		payload = payload[n:]

		flags := Flags(0)
		last := len(payload) == 0
		if last && endStream {
			flags |= FlagEndStream
		}
		if err := c.codec.WriteFrame(ctx, FrameHeader{Type: FrameData, Flags: flags, StreamID: s.id}, chunk); err != nil {
			return err
		}
		guard = c.mu.Acquire()
		s.sendWindow -= n
		c.connSendWindow -= n
		if last {
			s.closeLocal()
		}
		guard.Release()
		if last {
			return nil
		}
	}
	return nil
}

func isLocalID(side Side, id uint32) bool {
	if side == SideClient {
		return id%2 == 1
	}
	return id%2 == 0
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putUint32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}
