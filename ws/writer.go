package ws

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/outline-cli-ws/protocore/internal/async"
)

// FrameWriter serializes frames onto an async.Stream, masking outbound
// payloads when the connection's role requires it.
type FrameWriter struct {
	role      Role
	noMasking bool
	dst       async.Stream
}

func NewFrameWriter(role Role, dst async.Stream, noMasking bool) *FrameWriter {
	return &FrameWriter{role: role, noMasking: noMasking, dst: dst}
}

// shouldMask mirrors checkMaskPolicy's inverse: a server sends unmasked
// frames, a client sends masked ones, unless no_masking flips both to
// unmasked.
func (w *FrameWriter) shouldMask() bool {
	if w.noMasking {
		return false
	}
	return w.role == RoleClient
}

// WriteFrame serializes and writes f. Fin/Opcode/RSV bits come from f;
// masking is applied (and a fresh mask generated) according to role.
func (w *FrameWriter) WriteFrame(ctx context.Context, f *Frame) error {
	masked := w.shouldMask()

	var head [14]byte
	b0 := byte(f.Opcode) & 0x0F
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	head[0] = b0

	n := len(f.Payload)
	pos := 2
	switch {
	case n < 126:
		head[1] = byte(n)
	case n <= 0xFFFF:
		head[1] = 126
		binary.BigEndian.PutUint16(head[2:4], uint16(n))
		pos = 4
	default:
		head[1] = 127
		binary.BigEndian.PutUint64(head[2:10], uint64(n))
		pos = 10
	}

	var mask [4]byte
	payload := f.Payload
	if masked {
		head[1] |= 0x80
		if _, err := rand.Read(mask[:]); err != nil {
			return err
		}
		copy(head[pos:pos+4], mask[:])
		pos += 4
		// Mask a copy: callers may reuse f.Payload's backing array.
		payload = append([]byte(nil), f.Payload...)
		ApplyMask(payload, mask)
	}

	bufs := [][]byte{append([]byte(nil), head[:pos]...)}
	if len(payload) > 0 {
		bufs = append(bufs, payload)
	}
	return w.dst.WriteAllVectored(ctx, bufs)
}

// WriteMessage is the common-case helper: a single unfragmented data frame.
func (w *FrameWriter) WriteMessage(ctx context.Context, opcode Opcode, payload []byte) error {
	return w.WriteFrame(ctx, &Frame{Fin: true, Opcode: opcode, Payload: payload})
}
