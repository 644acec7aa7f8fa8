package h2

import (
	"context"
	"fmt"

	"github.com/outline-cli-ws/protocore/h2/hpack"
	"github.com/outline-cli-ws/protocore/internal/async"
	"github.com/outline-cli-ws/protocore/internal/buffer"
	"go.uber.org/zap"
)

// Request is a peer-initiated HEADERS (+ its DATA body) surfaced to server
// code once the peer has finished sending it (END_STREAM received).
type Request struct {
	Stream  *ServerStream
	Headers []hpack.HeaderField
}

// ServerStream is the caller-facing handle for one accepted request. It
// wraps a RefCounted[*Stream] so the stream entry stays alive as long as the
// caller holds a ServerStream, independent of Conn's own bookkeeping.
type ServerStream struct {
	conn *Server
	ref  async.RefCounted[*Stream]
}

// ID returns the underlying stream's identifier.
func (s *ServerStream) ID() uint32 { return s.ref.Value().ID() }

// Body returns the request body accumulated so far.
func (s *ServerStream) Body() []byte { return s.ref.Value().Body() }

// Release drops this handle's claim on the underlying stream entry. Callers
// invoke it once they're done with a ServerStream (typically via defer right
// after RecvReq), matching the RefCounted contract in internal/async.
func (s *ServerStream) Release() { s.ref.Release() }

// Server drives the accept side of an HTTP/2 connection: recv_req surfaces
// newly completed requests, send_res writes a response, send_go_away begins
// graceful shutdown, and send_reset aborts a single stream.
type Server struct {
	conn     *Conn
	requests chan *Request
	runErr   chan error
}

// NewServer wraps src/dst (typically the same net.Conn, already past ALPN
// negotiation or h2c upgrade) as an HTTP/2 server connection and performs
// the server side of the connection preface handshake.
func NewServer(ctx context.Context, src buffer.Source, dst async.Stream, logger *zap.Logger) (*Server, error) {
	conn := NewConn(SideServer, src, dst, logger)
	if err := conn.Handshake(ctx, nil); err != nil {
		return nil, err
	}
	srv := &Server{conn: conn, requests: make(chan *Request, 16), runErr: make(chan error, 1)}
	go srv.drive(ctx)
	return srv, nil
}

func (s *Server) drive(ctx context.Context) {
	err := s.conn.Run(ctx, func(stream *Stream, ft FrameType) {
		// recv_req only surfaces a request once the peer has finished
		// sending it (END_STREAM reached on HEADERS or a later DATA frame);
		// a request with an unfinished body isn't delivered at all, mirroring
		// the gate client.go's drive applies before resolving a fetch.
		if stream.State() != StreamHalfClosedRemote && stream.State() != StreamClosed {
			return
		}
		guard := s.conn.mu.Acquire()
		se := s.conn.streams[stream.ID()]
		guard.Release()
		if se == nil {
			return
		}
		select {
		case s.requests <- &Request{Stream: &ServerStream{conn: s, ref: se.ref.Clone()}, Headers: stream.Headers()}:
		case <-ctx.Done():
		}
	})
	s.runErr <- err
	close(s.requests)
}

// RecvReq blocks until the next complete request (headers and body, up to
// END_STREAM) has arrived, or the connection ends.
func (s *Server) RecvReq(ctx context.Context) (*Request, error) {
	select {
	case req, ok := <-s.requests:
		if !ok {
			select {
			case err := <-s.runErr:
				return nil, err
			default:
				return nil, fmt.Errorf("h2: connection closed")
			}
		}
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendRes writes a response's headers and full body as HEADERS (+DATA,
// END_STREAM).
func (s *Server) SendRes(ctx context.Context, stream *ServerStream, headers []hpack.HeaderField, body []byte) error {
	st := stream.ref.Value()
	endHeaders := len(body) == 0
	if err := s.conn.WriteHeaders(ctx, st.id, headers, endHeaders); err != nil {
		return err
	}
	if endHeaders {
		guard := s.conn.mu.Acquire()
		st.closeLocal()
		guard.Release()
		return nil
	}
	return s.conn.WriteData(ctx, st, body, true)
}

// SendGoAway begins graceful shutdown: no new peer-initiated streams above
// the last one already accepted will be processed.
func (s *Server) SendGoAway(ctx context.Context, code ErrCode, reason string) error {
	return s.conn.sendGoAway(ctx, code, reason)
}

// SendReset aborts a single stream without tearing down the connection.
func (s *Server) SendReset(ctx context.Context, stream *ServerStream, code ErrCode) error {
	return s.conn.sendReset(ctx, stream.ref.Value().id, code)
}

// Close releases the underlying connection.
func (s *Server) Close() error { return s.conn.codec.dst.Close() }
