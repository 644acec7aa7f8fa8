// Package obslog centralizes the zap.Logger every engine is handed at
// construction. The teacher's debug lines (rfcdbg in rfc8441_raw_h2.go,
// the OUTLINE_WS_DEBUG-gated log.Printf calls) are env-gated free-text
// logging; this keeps the same "cheap when disabled" posture but emits
// structured fields so a caller can wire it to any zap sink.
package obslog

import "go.uber.org/zap"

// Nop is the zero-cost logger used when an engine is constructed without an
// explicit *zap.Logger, equivalent to the teacher's rfc8441Debug == false
// fast path.
func Nop() *zap.Logger { return zap.NewNop() }

// Or returns l if non-nil, else Nop(). Every engine constructor calls this
// once so the rest of its code can log unconditionally.
func Or(l *zap.Logger) *zap.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
