package h2

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/outline-cli-ws/protocore/internal/async"
	"github.com/outline-cli-ws/protocore/internal/buffer"
)

// FrameType is the RFC 7540 §11.2 frame type registry subset this engine
// handles; anything else is an unknown type, discarded after length-skip.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

func (t FrameType) String() string {
	names := []string{"DATA", "HEADERS", "PRIORITY", "RST_STREAM", "SETTINGS", "PUSH_PROMISE", "PING", "GOAWAY", "WINDOW_UPDATE", "CONTINUATION"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", uint8(t))
}

// Flags defined across frame types; only the bits a given type uses are
// meaningful.
type Flags uint8

const (
	FlagEndStream  Flags = 0x1
	FlagAck        Flags = 0x1
	FlagEndHeaders Flags = 0x4
	FlagPadded     Flags = 0x8
	FlagPriority   Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// frameHeaderLen is the fixed RFC 7540 §4.1 header size.
const frameHeaderLen = 9

// DefaultMaxFrameSize is SETTINGS_MAX_FRAME_SIZE's RFC-mandated default.
const DefaultMaxFrameSize = 1 << 14

// FrameHeader is the decoded 9-byte frame prefix.
type FrameHeader struct {
	Length   uint32 // 24 bits
	Type     FrameType
	Flags    Flags
	StreamID uint32 // 31 bits; top bit is reserved and always read as 0
}

// Frame is a decoded frame: header plus raw payload bytes (still HPACK- or
// field-encoded, as appropriate for Type).
type Frame struct {
	FrameHeader
	Payload []byte
}

// FrameCodec reads and writes frames on a connection, honoring the peer's
// and our own SETTINGS_MAX_FRAME_SIZE.
type FrameCodec struct {
	src         buffer.Source
	dst         async.Stream
	fab         *buffer.Fabric
	maxRecvSize uint32
}

func NewFrameCodec(src buffer.Source, dst async.Stream, maxRecvSize uint32) *FrameCodec {
	if maxRecvSize == 0 {
		maxRecvSize = DefaultMaxFrameSize
	}
	return &FrameCodec{src: src, dst: dst, fab: buffer.New(DefaultMaxFrameSize + frameHeaderLen), maxRecvSize: maxRecvSize}
}

// ReadFrame reads and returns the next frame. Frames whose declared length
// exceeds maxRecvSize are a connection error (FRAME_SIZE_ERROR); read EOF
// mid-frame is always a connection error per spec.md §4.4.
func (c *FrameCodec) ReadFrame(ctx context.Context) (*Frame, error) {
	head, err := buffer.ReadUntil(ctx, c.src, c.fab, 0, frameHeaderLen)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	length := uint32(head[0])<<16 | uint32(head[1])<<8 | uint32(head[2])
	typ := FrameType(head[3])
	flags := Flags(head[4])
	streamID := binary.BigEndian.Uint32(head[5:9]) & 0x7fffffff

	if length > c.maxRecvSize {
		return nil, connErrorf(ErrCodeFrameSize, "frame type=%s stream=%d length=%d exceeds max %d", typ, streamID, length, c.maxRecvSize)
	}

	payload, err := buffer.ReadUntil(ctx, c.src, c.fab, frameHeaderLen, int(length))
	if err != nil {
		return nil, wrapReadErr(err)
	}
	out := &Frame{
		FrameHeader: FrameHeader{Length: length, Type: typ, Flags: flags, StreamID: streamID},
		Payload:     append([]byte(nil), payload...),
	}
	if err := c.fab.CommitCurrent(frameHeaderLen + int(length)); err != nil {
		return nil, err
	}
	c.fab.ClearAntecedent()
	c.fab.AdvanceMessage()
	return out, nil
}

func wrapReadErr(err error) error {
	// Any read failure mid-frame (including our own ErrUnexpectedEOF) is a
	// connection error; the caller's driver loop tears the connection down.
	return connErrorf(ErrCodeInternal, "frame read failed: %v", err)
}

// WriteFrame serializes header+payload and writes them as one vectored
// write so HEADERS+DATA can be coalesced by the caller.
func (c *FrameCodec) WriteFrame(ctx context.Context, h FrameHeader, payload []byte) error {
	var head [frameHeaderLen]byte
	length := uint32(len(payload))
	head[0] = byte(length >> 16)
	head[1] = byte(length >> 8)
	head[2] = byte(length)
	head[3] = byte(h.Type)
	head[4] = byte(h.Flags)
	binary.BigEndian.PutUint32(head[5:9], h.StreamID&0x7fffffff)
	return c.dst.WriteAllVectored(ctx, [][]byte{head[:], payload})
}

// WriteFrames writes several frames back to back as one vectored write,
// used for HEADERS immediately followed by DATA so send_res (spec.md §4.4)
// completes as a single write_all_vectored call.
func (c *FrameCodec) WriteFrames(ctx context.Context, frames []Frame) error {
	bufs := make([][]byte, 0, len(frames)*2)
	for _, f := range frames {
		var head [frameHeaderLen]byte
		length := uint32(len(f.Payload))
		head[0] = byte(length >> 16)
		head[1] = byte(length >> 8)
		head[2] = byte(length)
		head[3] = byte(f.Type)
		head[4] = byte(f.Flags)
		binary.BigEndian.PutUint32(head[5:9], f.StreamID&0x7fffffff)
		bufs = append(bufs, head[:], f.Payload)
	}
	return c.dst.WriteAllVectored(ctx, bufs)
}
