package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/outline-cli-ws/protocore/internal/async"
	"github.com/outline-cli-ws/protocore/internal/buffer"
	"go.uber.org/zap"

	"github.com/outline-cli-ws/protocore/internal/obslog"
)

// Message is a fully reassembled, non-control WebSocket message.
type Message struct {
	Opcode  Opcode // OpText or OpBinary
	Payload []byte
}

// Config bundles the construction-time policy for a Conn.
type Config struct {
	Role          Role
	NoMasking     bool
	MaxPayloadLen uint64
	Compressor    Compressor // nil => NoCompression{}
	Logger        *zap.Logger
}

// Conn is a single-owner WebSocket engine instance: one read half, one
// write half, matching spec.md §5 ("The WebSocket engine is single-owner
// too"). It owns fragment reassembly and the close handshake.
type Conn struct {
	reader *FrameReader
	writer *FrameWriter
	comp   Compressor
	log    *zap.Logger

	mu         sync.Mutex
	closeSent  bool
	closeRecvd bool

	// fragmentation state
	assembling bool
	fragOpcode Opcode
	fragBuf    []byte
}

// NewConn wires a Conn over src/dst (commonly the two halves of the same
// net.Conn, or an async.Stream wrapper around it).
func NewConn(src buffer.Source, dst async.Stream, cfg Config) *Conn {
	comp := cfg.Compressor
	if comp == nil {
		comp = NoCompression{}
	}
	return &Conn{
		reader: NewFrameReader(cfg.Role, src, cfg.MaxPayloadLen, cfg.NoMasking, comp.RSV1()),
		writer: NewFrameWriter(cfg.Role, dst, cfg.NoMasking),
		comp:   comp,
		log:    obslog.Or(cfg.Logger),
	}
}

// ReadMessage returns the next complete data message, transparently
// answering Ping with Pong and completing the Close handshake when a Close
// frame arrives. It loops internally over control frames interleaved with
// fragments, per spec.md §4.3 ("control frames may interleave but never
// fragment").
func (c *Conn) ReadMessage(ctx context.Context) (*Message, error) {
	for {
		f, err := c.reader.ReadFrame(ctx)
		if err != nil {
			return nil, err
		}

		if f.Opcode.IsControl() {
			if done, err := c.handleControl(ctx, f); err != nil {
				return nil, err
			} else if done {
				continue
			}
		}

		switch {
		case !f.Opcode.IsControl() && !c.assembling:
			if f.Opcode == OpContinuation {
				return nil, fmt.Errorf("%w: continuation frame with no message in progress", ErrProtocol)
			}
			if f.Fin {
				payload, err := c.maybeDecompress(f)
				if err != nil {
					return nil, err
				}
				return &Message{Opcode: f.Opcode, Payload: payload}, nil
			}
			c.assembling = true
			c.fragOpcode = f.Opcode
			c.fragBuf = append([]byte(nil), f.Payload...)
		case !f.Opcode.IsControl() && c.assembling:
			if f.Opcode != OpContinuation {
				return nil, fmt.Errorf("%w: expected continuation frame, got %s", ErrProtocol, f.Opcode)
			}
			if limit := c.reader.maxPayloadLen; limit != 0 && uint64(len(c.fragBuf))+uint64(len(f.Payload)) > limit {
				return nil, fmt.Errorf("%w: fragmented message exceeds limit %d", ErrPayloadTooLarge, limit)
			}
			c.fragBuf = append(c.fragBuf, f.Payload...)
			if f.Fin {
				c.assembling = false
				msg := &Message{Opcode: c.fragOpcode, Payload: c.fragBuf}
				c.fragBuf = nil
				payload, err := c.maybeDecompressBytes(f.RSV1, msg.Payload)
				if err != nil {
					return nil, err
				}
				msg.Payload = payload
				return msg, nil
			}
		}
	}
}

func (c *Conn) maybeDecompress(f *Frame) ([]byte, error) {
	return c.maybeDecompressBytes(f.RSV1, f.Payload)
}

func (c *Conn) maybeDecompressBytes(rsv1 bool, payload []byte) ([]byte, error) {
	if !rsv1 {
		return payload, nil
	}
	return c.comp.Decompress(RestoreTrailer(payload))
}

// handleControl answers Ping/Pong/Close control frames. It returns
// done=true when the caller should continue reading (the control frame is
// fully handled and carries no user-visible message).
func (c *Conn) handleControl(ctx context.Context, f *Frame) (bool, error) {
	switch f.Opcode {
	case OpPing:
		if err := c.writeLocked(ctx, OpPong, f.Payload); err != nil {
			return false, err
		}
		return true, nil
	case OpPong:
		return true, nil
	case OpClose:
		code, reason := parseClosePayload(f.Payload)
		c.log.Debug("ws: received close", zap.Uint16("code", uint16(code)), zap.String("reason", reason))
		c.mu.Lock()
		alreadySent := c.closeSent
		c.closeRecvd = true
		c.mu.Unlock()
		if !alreadySent {
			// Echo the peer's code, or 1000 if it was absent/invalid.
			echo := code
			if echo == 0 || !ValidOutbound(echo) {
				echo = StatusNormalClosure
			}
			_ = c.Close(ctx, echo, "")
		}
		return true, fmt.Errorf("%w", ErrConnectionClosed)
	default:
		return true, nil
	}
}

func parseClosePayload(p []byte) (StatusCode, string) {
	if len(p) < 2 {
		return 0, ""
	}
	code := StatusCode(uint16(p[0])<<8 | uint16(p[1]))
	return code, string(p[2:])
}

// Close performs (or completes) the close handshake: sends a Close frame
// with code/reason, and thereafter refuses further writes with
// ErrConnectionClosed, per spec.md §4.3.
func (c *Conn) Close(ctx context.Context, code StatusCode, reason string) error {
	c.mu.Lock()
	if c.closeSent {
		c.mu.Unlock()
		return nil
	}
	c.closeSent = true
	c.mu.Unlock()

	if code != 0 && !ValidOutbound(code) {
		return fmt.Errorf("%w: status code %d is not valid for an outbound close", ErrProtocol, code)
	}
	payload := []byte{}
	if code != 0 {
		payload = append([]byte{byte(code >> 8), byte(code)}, reason...)
	}
	return c.writer.WriteFrame(ctx, &Frame{Fin: true, Opcode: OpClose, Payload: payload})
}

// WriteMessage sends a single unfragmented data message, compressing it
// first when a Compressor other than NoCompression is configured.
func (c *Conn) WriteMessage(ctx context.Context, opcode Opcode, payload []byte) error {
	c.mu.Lock()
	closed := c.closeSent
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}

	rsv1 := false
	if c.comp.RSV1() {
		compressed, err := c.comp.Compress(payload)
		if err != nil {
			return err
		}
		payload = StripTrailer(compressed)
		rsv1 = true
	}
	return c.writer.WriteFrame(ctx, &Frame{Fin: true, RSV1: rsv1, Opcode: opcode, Payload: payload})
}

func (c *Conn) writeLocked(ctx context.Context, opcode Opcode, payload []byte) error {
	c.mu.Lock()
	closed := c.closeSent
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}
	return c.writer.WriteFrame(ctx, &Frame{Fin: true, Opcode: opcode, Payload: payload})
}
