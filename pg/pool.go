package pg

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Pool is a bounded set of single-owner Conns, matching spec.md §5's
// single-owner connection model: a Conn is never shared between concurrent
// callers, so the pool hands out exclusive leases instead of a shared
// handle, mirroring the ClientFramework pooling pattern in h2/client.go.
type Pool struct {
	dial   func(ctx context.Context) (net.Conn, error)
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	idle    []*Conn
	leased  int
	maxSize int
}

// NewPool constructs a pool that dials new connections via dial, up to
// maxSize concurrently leased at once.
func NewPool(dial func(ctx context.Context) (net.Conn, error), cfg Config, maxSize int, logger *zap.Logger) *Pool {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &Pool{dial: dial, cfg: cfg, maxSize: maxSize, logger: logger}
}

// Acquire returns an idle Conn if one exists, else dials a new one if the
// pool has room, else retries in a loop until an idle Conn or a free slot
// appears or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	for {
		p.mu.Lock()
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.leased++
			p.mu.Unlock()
			return c, nil
		}
		if p.leased < p.maxSize {
			p.leased++
			p.mu.Unlock()
			nc, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.leased--
				p.mu.Unlock()
				return nil, fmt.Errorf("pg: pool dial: %w", err)
			}
			c, err := Connect(ctx, nc, p.cfg, p.logger)
			if err != nil {
				p.mu.Lock()
				p.leased--
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Release frees c's lease slot and returns c to the idle set; a Conn that
// is already closed is dropped instead. Release never closes a Conn itself.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leased--
	if c.closed {
		return
	}
	p.idle = append(p.idle, c)
}

// Close closes every idle connection. Leased connections are the caller's
// responsibility to Release (and Close, if desired) first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
