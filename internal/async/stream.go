package async

import (
	"context"
	"io"
)

// Stream is the byte-oriented duplex every engine reads frames off of and
// writes frames onto. It is satisfied directly by net.Conn; engines never
// import net themselves so they stay testable against net.Pipe or an
// in-memory fake.
type Stream interface {
	// Read behaves like io.Reader.Read, but callers that need cancellation
	// pass ctx through a wrapping deadline (SetReadDeadline) rather than
	// expecting Read itself to observe ctx.Done(); plain net.Conn has no
	// context-aware Read, and protocore never blocks a thread waiting on
	// one, per spec.md §5.
	Read(p []byte) (int, error)
	// WriteAll writes the entirety of p, returning early only on error.
	WriteAll(ctx context.Context, p []byte) error
	// WriteAllVectored coalesces multiple buffers into as few underlying
	// writes as possible; HTTP/2 uses it to send a HEADERS frame and its
	// first DATA frame without an intermediate copy.
	WriteAllVectored(ctx context.Context, bufs [][]byte) error
	Close() error
}

// Conn adapts any io.ReadWriteCloser (concretely, a net.Conn) to Stream.
type Conn struct {
	RW io.ReadWriteCloser
}

func (c Conn) Read(p []byte) (int, error) { return c.RW.Read(p) }

func (c Conn) WriteAll(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.RW.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c Conn) WriteAllVectored(ctx context.Context, bufs [][]byte) error {
	for _, b := range bufs {
		if err := c.WriteAll(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (c Conn) Close() error { return c.RW.Close() }
