package ws

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/outline-cli-ws/protocore/internal/buffer"
)

// Role selects which side of the masking contract a FrameReader enforces:
// spec.md §4.3 — servers require masked frames (unless no_masking was
// negotiated, in which case they must reject masked=1), clients require
// the opposite.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

// FrameReader parses frames off a byte stream through a buffer.Fabric,
// applying the masking and size policy for a fixed Role.
type FrameReader struct {
	role           Role
	noMasking      bool
	maxPayloadLen  uint64
	compressionNeg bool

	fab *buffer.Fabric
	src buffer.Source
}

// NewFrameReader constructs a reader for the given role. maxPayloadLen
// bounds any single frame's payload (0 means use RFC 6455's own 2^63-1
// ceiling on the 64-bit length encoding). compressionNegotiated gates
// whether RSV1 is accepted.
func NewFrameReader(role Role, src buffer.Source, maxPayloadLen uint64, noMasking, compressionNegotiated bool) *FrameReader {
	return &FrameReader{
		role:           role,
		noMasking:      noMasking,
		maxPayloadLen:  maxPayloadLen,
		compressionNeg: compressionNegotiated,
		fab:            buffer.New(4096),
		src:            src,
	}
}

// ReadFrame parses exactly one frame, validates it against the fragment/
// control policy, unmasks the payload in place, and advances past it.
func (r *FrameReader) ReadFrame(ctx context.Context) (*Frame, error) {
	head, err := buffer.ReadUntil(ctx, r.src, r.fab, 0, 2)
	if err != nil {
		return nil, err
	}
	b0, b1 := head[0], head[1]

	f := &Frame{
		Fin:    b0&0x80 != 0,
		RSV1:   b0&0x40 != 0,
		RSV2:   b0&0x20 != 0,
		RSV3:   b0&0x10 != 0,
		Opcode: Opcode(b0 & 0x0F),
		Masked: b1&0x80 != 0,
	}
	lenCode := b1 & 0x7F

	hdrLen := 2
	var payloadLen uint64
	switch {
	case lenCode < 126:
		payloadLen = uint64(lenCode)
	case lenCode == 126:
		ext, err := buffer.ReadUntil(ctx, r.src, r.fab, hdrLen, 2)
		if err != nil {
			return nil, err
		}
		payloadLen = uint64(binary.BigEndian.Uint16(ext))
		hdrLen += 2
	default: // 127
		ext, err := buffer.ReadUntil(ctx, r.src, r.fab, hdrLen, 8)
		if err != nil {
			return nil, err
		}
		payloadLen = binary.BigEndian.Uint64(ext)
		if payloadLen >= 1<<63 {
			return nil, fmt.Errorf("%w: 64-bit payload length has high bit set (%d)", ErrProtocol, payloadLen)
		}
		hdrLen += 8
	}

	if err := r.checkMaskPolicy(f.Masked); err != nil {
		return nil, err
	}
	if f.Masked {
		maskBytes, err := buffer.ReadUntil(ctx, r.src, r.fab, hdrLen, 4)
		if err != nil {
			return nil, err
		}
		copy(f.Mask[:], maskBytes)
		hdrLen += 4
	}

	if r.maxPayloadLen != 0 && payloadLen > r.maxPayloadLen {
		return nil, fmt.Errorf("%w: frame payload %d exceeds limit %d", ErrPayloadTooLarge, payloadLen, r.maxPayloadLen)
	}

	payload, err := buffer.ReadUntil(ctx, r.src, r.fab, hdrLen, int(payloadLen))
	if err != nil {
		return nil, err
	}
	// Copy out: the fabric's window is only valid until the next read, and
	// callers retain the frame across subsequent ReadFrame calls.
	f.Payload = append([]byte(nil), payload...)
	if f.Masked {
		ApplyMask(f.Payload, f.Mask)
	}

	if err := f.validate(r.compressionNeg); err != nil {
		return nil, err
	}

	if err := r.fab.CommitCurrent(hdrLen + int(payloadLen)); err != nil {
		return nil, err
	}
	r.fab.ClearAntecedent()
	r.fab.AdvanceMessage()
	return f, nil
}

// checkMaskPolicy validates a received frame's masked bit against what the
// peer is required to send. A FrameReader with RoleServer reads frames
// originated by a client, which RFC 6455 §5.1 requires to be masked; a
// FrameReader with RoleClient reads frames originated by a server, which
// must never be masked. The no_masking extension (spec.md §4.3) inverts
// both expectations to "never masked".
func (r *FrameReader) checkMaskPolicy(masked bool) error {
	if r.noMasking {
		if masked {
			return fmt.Errorf("%w: masked frame received under no_masking extension", ErrProtocol)
		}
		return nil
	}
	switch r.role {
	case RoleServer:
		if !masked {
			return fmt.Errorf("%w: server role requires masked frames from client", ErrProtocol)
		}
	case RoleClient:
		if masked {
			return fmt.Errorf("%w: client role requires unmasked frames from server", ErrProtocol)
		}
	}
	return nil
}
