package h2

import (
	"context"
	"fmt"
	"sync"

	"github.com/outline-cli-ws/protocore/h2/hpack"
	"github.com/outline-cli-ws/protocore/internal/async"
	"github.com/outline-cli-ws/protocore/internal/buffer"
	"go.uber.org/zap"
)

// Response is a completed server reply: headers plus the full body, once
// END_STREAM has arrived. fetch (below) only returns once a Response is
// complete; streaming consumption is a Non-goal of spec.md §4.4.
type Response struct {
	Headers []hpack.HeaderField
	Body    []byte
}

// Client drives a single HTTP/2 connection from the dialing side.
type Client struct {
	conn *Conn

	mu      sync.Mutex
	waiters map[uint32]chan *Response
	runErr  error
	closed  chan struct{}
}

// NewClient wraps src/dst as an HTTP/2 client connection and performs the
// client side of the connection preface handshake.
func NewClient(ctx context.Context, src buffer.Source, dst async.Stream, logger *zap.Logger) (*Client, error) {
	conn := NewConn(SideClient, src, dst, logger)
	if err := conn.Handshake(ctx, nil); err != nil {
		return nil, err
	}
	cl := &Client{conn: conn, waiters: make(map[uint32]chan *Response), closed: make(chan struct{})}
	go cl.drive(ctx)
	return cl, nil
}

func (cl *Client) drive(ctx context.Context) {
	err := cl.conn.Run(ctx, func(stream *Stream, ft FrameType) {
		if stream.State() != StreamClosed && stream.State() != StreamHalfClosedRemote {
			return
		}
		cl.mu.Lock()
		ch, ok := cl.waiters[stream.ID()]
		if ok {
			delete(cl.waiters, stream.ID())
		}
		cl.mu.Unlock()
		if ok {
			ch <- &Response{Headers: stream.Headers(), Body: stream.Body()}
		}
	})
	cl.mu.Lock()
	cl.runErr = err
	for id, ch := range cl.waiters {
		close(ch)
		delete(cl.waiters, id)
	}
	cl.mu.Unlock()
	close(cl.closed)
}

// Fetch opens a new stream, sends headers (and optional body), and blocks
// until the full response has arrived.
func (cl *Client) Fetch(ctx context.Context, headers []hpack.HeaderField, body []byte) (*Response, error) {
	stream := cl.conn.OpenStream()
	if err := stream.openLocal(len(body) == 0); err != nil {
		return nil, err
	}

	ch := make(chan *Response, 1)
	cl.mu.Lock()
	cl.waiters[stream.ID()] = ch
	cl.mu.Unlock()

	endHeaders := len(body) == 0
	if err := cl.conn.WriteHeaders(ctx, stream.ID(), headers, endHeaders); err != nil {
		return nil, err
	}
	if !endHeaders {
		if err := cl.conn.WriteData(ctx, stream, body, true); err != nil {
			return nil, err
		}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, cl.runError()
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cl *Client) runError() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.runErr != nil {
		return cl.runErr
	}
	return fmt.Errorf("h2: connection closed")
}

// Close releases the underlying connection.
func (cl *Client) Close() error { return cl.conn.codec.dst.Close() }

// ClientFramework pools Client connections keyed by host, so repeated
// fetch calls against the same origin reuse one multiplexed connection
// instead of dialing anew each time (spec.md §4.4 "client pool surface").
type ClientFramework struct {
	mu      sync.Mutex
	dial    func(ctx context.Context, host string) (buffer.Source, async.Stream, error)
	logger  *zap.Logger
	clients map[string]*Client
}

// NewClientFramework constructs a pool that dials new connections via dial
// on first use of a given host.
func NewClientFramework(dial func(ctx context.Context, host string) (buffer.Source, async.Stream, error), logger *zap.Logger) *ClientFramework {
	return &ClientFramework{dial: dial, logger: logger, clients: make(map[string]*Client)}
}

// Fetch returns the pooled Client for host, dialing a new connection if none
// exists yet, and performs the request.
func (f *ClientFramework) Fetch(ctx context.Context, host string, headers []hpack.HeaderField, body []byte) (*Response, error) {
	cl, err := f.clientFor(ctx, host)
	if err != nil {
		return nil, err
	}
	return cl.Fetch(ctx, headers, body)
}

func (f *ClientFramework) clientFor(ctx context.Context, host string) (*Client, error) {
	f.mu.Lock()
	if cl, ok := f.clients[host]; ok {
		f.mu.Unlock()
		return cl, nil
	}
	f.mu.Unlock()

	src, dst, err := f.dial(ctx, host)
	if err != nil {
		return nil, err
	}
	cl, err := NewClient(ctx, src, dst, f.logger)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.clients[host]; ok {
		_ = cl.Close()
		return existing, nil
	}
	f.clients[host] = cl
	return cl, nil
}

// Close tears down every pooled connection.
func (f *ClientFramework) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for host, cl := range f.clients {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.clients, host)
	}
	return firstErr
}
