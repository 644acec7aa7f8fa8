package async

import (
	"bytes"
	"context"
	"testing"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestConnWriteAllVectoredWritesInOrder(t *testing.T) {
	var buf bytes.Buffer
	c := Conn{RW: nopCloser{&buf}}

	err := c.WriteAllVectored(context.Background(), [][]byte{[]byte("hello "), []byte("world")})
	if err != nil {
		t.Fatalf("WriteAllVectored: %v", err)
	}
	if buf.String() != "hello world" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestConnWriteAllRespectsCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	c := Conn{RW: nopCloser{&buf}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.WriteAll(ctx, []byte("data")); err == nil {
		t.Fatalf("expected WriteAll to observe a cancelled context")
	}
}

func TestRefCountedReleasesOnLastDrop(t *testing.T) {
	released := false
	r := NewRefCounted(42, func(int) { released = true })

	clone := r.Clone()
	r.Release()
	if released {
		t.Fatalf("release fired with a clone still outstanding")
	}
	clone.Release()
	if !released {
		t.Fatalf("expected release to fire once the last clone dropped")
	}
}

func TestWeakUpgradeFailsAfterRelease(t *testing.T) {
	r := NewRefCounted("stream", nil)
	w := r.Downgrade()

	if _, ok := w.Upgrade(); !ok {
		t.Fatalf("expected Upgrade to succeed while the strong handle is alive")
	}
	r.Release()
	if _, ok := w.Upgrade(); ok {
		t.Fatalf("expected Upgrade to fail after the last strong handle released")
	}
}

func TestWeakUpgradeKeepsValueAliveUntilUpgradedHandleReleases(t *testing.T) {
	released := false
	r := NewRefCounted(1, func(int) { released = true })
	w := r.Downgrade()

	upgraded, ok := w.Upgrade()
	if !ok {
		t.Fatalf("expected Upgrade to succeed")
	}
	r.Release()
	if released {
		t.Fatalf("release fired while the upgraded handle is still outstanding")
	}
	upgraded.Release()
	if !released {
		t.Fatalf("expected release once the upgraded handle also released")
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	var l Lock
	g := l.Acquire()
	g.Release()
	g.Release() // must not double-unlock

	// Acquiring again proves the underlying mutex was actually unlocked.
	g2 := l.Acquire()
	g2.Release()
}
