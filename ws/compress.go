package ws

// Compressor is the pluggable permessage-deflate capability spec.md §1 and
// §4.3 describe: protocore specifies only the negotiation contract and the
// trailer-stripping/appending behaviour, and leaves the actual DEFLATE
// codec to a caller-supplied implementation (commonly compress/flate, or a
// cgo zlib binding for speed). This mirrors the teacher's
// internal/shadowsocks.Cipher interface: a small capability object chosen
// by name/config and handed to the engine, rather than the engine importing
// a concrete codec.
type Compressor interface {
	// RSV1 is non-zero when this capability is active, i.e. when
	// permessage-deflate was successfully negotiated. The frame reader
	// consults it to decide whether an incoming RSV1 bit is legal.
	RSV1() bool
	// Decompress inflates a message payload that had its trailing
	// 0x00 0x00 0xff 0xff restored (see deflateTrailer), returning the
	// original uncompressed bytes.
	Decompress(compressed []byte) ([]byte, error)
	// Compress deflates payload and strips the standard trailer before
	// returning, ready to be marked RSV1 and sent.
	Compress(payload []byte) ([]byte, error)
}

// deflateTrailer is the fixed 4-byte sync-flush marker permessage-deflate
// strips before sending and restores before inflating (RFC 7692 §7.2.1).
var deflateTrailer = [4]byte{0x00, 0x00, 0xff, 0xff}

// RestoreTrailer appends the deflate sync-flush marker a compressed message
// had stripped before transmission.
func RestoreTrailer(compressed []byte) []byte {
	return append(append([]byte(nil), compressed...), deflateTrailer[:]...)
}

// StripTrailer removes a trailing sync-flush marker if present; compressors
// call this on their own deflate output before it goes on the wire.
func StripTrailer(compressed []byte) []byte {
	if len(compressed) >= 4 {
		tail := compressed[len(compressed)-4:]
		if tail[0] == deflateTrailer[0] && tail[1] == deflateTrailer[1] && tail[2] == deflateTrailer[2] && tail[3] == deflateTrailer[3] {
			return compressed[:len(compressed)-4]
		}
	}
	return compressed
}

// NoCompression is the zero-value Compressor: RSV1 is always rejected.
type NoCompression struct{}

func (NoCompression) RSV1() bool                                  { return false }
func (NoCompression) Decompress(compressed []byte) ([]byte, error) { return compressed, nil }
func (NoCompression) Compress(payload []byte) ([]byte, error)      { return payload, nil }
