// Package buffer implements the partitioned byte buffer shared by every
// wire engine in protocore: WebSocket framing and HTTP/2 frame reads go
// through a Fabric instead of re-deriving their own "read at least N bytes,
// keep the residue" bookkeeping. The Postgres executor reads through
// pgproto3's own buffered reader instead.
//
// One contiguous byte slice is split into five logical spans by four
// cursors:
//
//	[0, antecedent)         discarded, retained only to keep indices stable
//	[antecedent, start)     already consumed by the caller
//	[start, end)            the in-flight message
//	[end, following)        already read off the wire, belongs to the next message
//	[following, cap)        free space the I/O layer may fill
//
// Invariant: 0 <= antecedent <= start <= end <= following <= cap(buf).
package buffer

import "fmt"

// Fabric is a reusable, growable byte buffer with consumed/current/following
// partitioning. It is not safe for concurrent use; callers needing
// concurrent access wrap it behind internal/async.Lock.
type Fabric struct {
	buf        []byte
	antecedent int
	start      int
	end        int
	following  int

	// compactThreshold is set by New but not consulted by Reserve, which
	// compacts only when the free tail is smaller than the n it was asked for.
	compactThreshold int
}

// New returns a Fabric with the given initial capacity.
func New(initialCap int) *Fabric {
	if initialCap <= 0 {
		initialCap = 4096
	}
	return &Fabric{
		buf:              make([]byte, initialCap),
		compactThreshold: 4096,
	}
}

// Len returns the current capacity of the backing slice.
func (f *Fabric) Len() int { return len(f.buf) }

// Current returns the in-flight message bytes, [start, end).
func (f *Fabric) Current() []byte { return f.buf[f.start:f.end] }

// Following returns bytes already read but belonging to the next message.
func (f *Fabric) Following() []byte { return f.buf[f.end:f.following] }

// FollowingLen is the number of unread bytes already buffered past the
// current message boundary.
func (f *Fabric) FollowingLen() int { return f.following - f.end }

// Reserve ensures at least n bytes of writable tail capacity exist past
// `following`, compacting or growing the backing slice as needed. It
// returns nothing; callers obtain the mutable tail via FollowMut.
func (f *Fabric) Reserve(n int) {
	if n <= 0 {
		return
	}
	free := len(f.buf) - f.following
	if free >= n {
		return
	}
	// First try compaction: drop the antecedent span, which is dead weight.
	if f.antecedent > 0 {
		f.compact()
		free = len(f.buf) - f.following
		if free >= n {
			return
		}
	}
	// Still short: grow. Double until it fits, matching the doubling
	// growth strategy used throughout the pack's reusable-buffer code.
	need := f.following + n
	newCap := len(f.buf)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < need {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, f.buf[:f.following])
	f.buf = grown
}

// compact slides the live suffix ([antecedent, following)) down to offset
// zero, discarding antecedent bytes for good. Called lazily: advancing past
// a message never copies eagerly, only Reserve does, and only when free
// tail capacity actually runs short.
func (f *Fabric) compact() {
	if f.antecedent == 0 {
		return
	}
	n := copy(f.buf, f.buf[f.antecedent:f.following])
	f.start -= f.antecedent
	f.end -= f.antecedent
	f.following = n
	f.antecedent = 0
}

// FollowMut returns a mutable slice of the writable tail. The caller's I/O
// layer fills some prefix of it and reports progress via AdvanceFollowing.
// The returned slice is only valid until the next Reserve call.
func (f *Fabric) FollowMut() []byte { return f.buf[f.following:] }

// AdvanceFollowing records that n additional bytes, read into the slice
// returned by FollowMut, now belong to the following span.
func (f *Fabric) AdvanceFollowing(n int) {
	if n < 0 || f.following+n > len(f.buf) {
		panic(fmt.Sprintf("buffer: AdvanceFollowing(%d) overruns capacity (following=%d cap=%d)", n, f.following, len(f.buf)))
	}
	f.following += n
}

// CommitCurrent extends the current-message span by len bytes, pulling them
// out of the following span (they must already have been read). Used once
// a frame header declares its payload length and the payload bytes have
// already landed in `following`.
func (f *Fabric) CommitCurrent(length int) error {
	if f.end+length > f.following {
		return fmt.Errorf("buffer: commit %d bytes exceeds buffered following span (%d available)", length, f.following-f.end)
	}
	f.end += length
	return nil
}

// ClearAntecedent discards the consumed span, moving `antecedent` up to
// `start`. It does not itself copy memory; the next Reserve call may
// compact lazily once free space actually runs low.
func (f *Fabric) ClearAntecedent() {
	f.antecedent = f.start
}

// AdvanceMessage moves to the next message: the current span becomes
// antecedent, and a new current span starts at the old end, initially
// empty. No bytes are copied.
func (f *Fabric) AdvanceMessage() {
	f.antecedent = f.start
	f.start = f.end
}

// Cursors exposes the four offsets for invariant checks and tests.
func (f *Fabric) Cursors() (antecedent, start, end, following, capacity int) {
	return f.antecedent, f.start, f.end, f.following, len(f.buf)
}
