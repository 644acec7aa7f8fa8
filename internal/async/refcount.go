package async

import "go.uber.org/atomic"

// RefCounted is a cheap-to-clone shared-ownership handle around a value T.
// All clones observe the same guarded resource; the underlying value is
// released (via the supplied release func) when the last clone is dropped.
//
// This backs the HTTP/2 stream<->connection back-reference described in
// spec.md's "cyclic ownership" design note: the connection's stream map
// holds a RefCounted handle (plus its Weak downgrade) for each Stream,
// caller-facing handles such as h2.ServerStream hold Clones of it, and a
// Stream keeps no reference back to the connection.
type RefCounted[T any] struct {
	shared *shared[T]
}

type shared[T any] struct {
	value   T
	count   *atomic.Int64
	release func(T)
}

// NewRefCounted wraps value in a RefCounted handle with an initial count of
// one. release, if non-nil, runs exactly once when the count reaches zero.
func NewRefCounted[T any](value T, release func(T)) RefCounted[T] {
	return RefCounted[T]{shared: &shared[T]{
		value:   value,
		count:   atomic.NewInt64(1),
		release: release,
	}}
}

// Value returns the shared value. Valid as long as this handle (or any
// clone) has not been dropped past a matching Release call count.
func (r RefCounted[T]) Value() T { return r.shared.value }

// Clone increments the refcount and returns a new handle sharing the same
// underlying value.
func (r RefCounted[T]) Clone() RefCounted[T] {
	r.shared.count.Inc()
	return r
}

// Release decrements the refcount, invoking the release callback once it
// reaches zero. Calling Release more times than Clone+1 is a caller bug:
// the count drops below zero without running release again, and every
// later Weak.Upgrade fails.
func (r RefCounted[T]) Release() {
	if r.shared.count.Dec() == 0 && r.shared.release != nil {
		r.shared.release(r.shared.value)
	}
}

// Weak is a non-owning observer of a RefCounted value: it can be upgraded
// back to a strong handle only while at least one strong handle is still
// alive, which callback-driven code (the HTTP/2 driver goroutine handing
// frames to per-stream handles) uses to avoid resurrecting a stream entry
// that the owning caller already dropped.
type Weak[T any] struct {
	shared *shared[T]
}

// Downgrade produces a Weak observer of r without affecting its refcount.
func (r RefCounted[T]) Downgrade() Weak[T] { return Weak[T]{shared: r.shared} }

// Upgrade returns a new strong handle and true if the value is still alive
// (count > 0 at the time of the call), or the zero handle and false.
func (w Weak[T]) Upgrade() (RefCounted[T], bool) {
	for {
		cur := w.shared.count.Load()
		if cur <= 0 {
			return RefCounted[T]{}, false
		}
		if w.shared.count.CompareAndSwap(cur, cur+1) {
			return RefCounted[T]{shared: w.shared}, true
		}
	}
}
