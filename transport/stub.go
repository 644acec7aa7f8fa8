package transport

import (
	"context"
	"errors"
)

// ErrStubClosed is returned by a closed Stub's operations.
var ErrStubClosed = errors.New("transport: stub closed")

// Stub is the "unit" Transport spec.md §4.6 names: it loops Sends back as
// Recv results with no network involvement, useful for exercising a typed
// RPC layer built on top of Transport without a live h2 or ws connection.
type Stub struct {
	inbox  chan Package
	closed chan struct{}
}

// NewStub constructs a Stub with the given inbox buffer depth.
func NewStub(buffer int) *Stub {
	return &Stub{inbox: make(chan Package, buffer), closed: make(chan struct{})}
}

func (s *Stub) Send(ctx context.Context, pkg Package) error {
	select {
	case <-s.closed:
		return ErrStubClosed
	default:
	}
	select {
	case s.inbox <- pkg:
		return nil
	case <-s.closed:
		return ErrStubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stub) SendAndRetrieve(ctx context.Context, pkg Package) (Package, error) {
	if err := s.Send(ctx, pkg); err != nil {
		return Package{}, err
	}
	return s.Recv(ctx)
}

func (s *Stub) Recv(ctx context.Context) (Package, error) {
	select {
	case pkg := <-s.inbox:
		return pkg, nil
	case <-s.closed:
		return Package{}, ErrStubClosed
	case <-ctx.Done():
		return Package{}, ctx.Err()
	}
}

func (s *Stub) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
		return nil
	}
}
