package ws

import (
	"crypto/sha1"
	"encoding/base64"
)

// acceptGUID is the fixed magic string RFC 6455 §1.3 defines for computing
// Sec-WebSocket-Accept from Sec-WebSocket-Key. The HTTP upgrade exchange
// itself is generated by the HTTP layer (spec.md §6); this engine only
// computes the value.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ComputeAccept returns the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key.
func ComputeAccept(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}
