package h2

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/outline-cli-ws/protocore/h2/hpack"
	"github.com/outline-cli-ws/protocore/internal/async"
)

func TestConnHandleHeaderBlockReassemblesContinuation(t *testing.T) {
	c := NewConn(SideServer, nil, nil, nil)

	enc := hpack.NewEncoder(4096)
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: "x-big", Value: strings.Repeat("a", 100)},
	}
	block := enc.EncodeFields(nil, fields)
	if len(block) < 10 {
		t.Fatalf("test setup: encoded block too small to usefully split")
	}
	split := len(block) / 2

	var dispatched *Stream
	dispatch := func(s *Stream, ft FrameType) { dispatched = s }

	headersFrame := &Frame{
		FrameHeader: FrameHeader{Type: FrameHeaders, StreamID: 1},
		Payload:     block[:split],
	}
	if err := c.handleHeaderBlock(headersFrame, dispatch); err != nil {
		t.Fatalf("handleHeaderBlock (HEADERS): %v", err)
	}
	if dispatched != nil {
		t.Fatalf("dispatch fired before END_HEADERS arrived via CONTINUATION")
	}

	contFrame := &Frame{
		FrameHeader: FrameHeader{Type: FrameContinuation, Flags: FlagEndHeaders, StreamID: 1},
		Payload:     block[split:],
	}
	if err := c.handleHeaderBlock(contFrame, dispatch); err != nil {
		t.Fatalf("handleHeaderBlock (CONTINUATION): %v", err)
	}
	if dispatched == nil {
		t.Fatalf("expected dispatch once CONTINUATION completed the header block")
	}

	got := dispatched.Headers()
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i].Name != f.Name || got[i].Value != f.Value {
			t.Fatalf("field %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func TestConnHandleHeaderBlockRejectsInterleavedStream(t *testing.T) {
	c := NewConn(SideServer, nil, nil, nil)
	dispatch := func(*Stream, FrameType) {}

	first := &Frame{FrameHeader: FrameHeader{Type: FrameHeaders, StreamID: 1}, Payload: []byte{0x82}}
	if err := c.handleHeaderBlock(first, dispatch); err != nil {
		t.Fatalf("handleHeaderBlock: %v", err)
	}

	other := &Frame{FrameHeader: FrameHeader{Type: FrameHeaders, StreamID: 3}, Payload: []byte{0x82}}
	err := c.handleHeaderBlock(other, dispatch)
	if err == nil {
		t.Fatalf("expected a HEADERS frame for a different stream while a block is open to be rejected")
	}
	var cerr *ConnError
	if !asConnError(err, &cerr) {
		t.Fatalf("expected a ConnError, got %T: %v", err, err)
	}
}

// TestConnRequestResponseRoundTrip drives a real Server/Client pair over a
// net.Pipe end to end: it exercises the connection preface handshake, HPACK
// encode/decode, and the fix requiring recv_req to withhold a request until
// END_STREAM closes the request body, not merely once headers arrive.
func TestConnRequestResponseRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type clientResult struct {
		cl  *Client
		err error
	}
	clientCh := make(chan clientResult, 1)
	go func() {
		cl, err := NewClient(ctx, clientConn, async.Conn{RW: clientConn}, nil)
		clientCh <- clientResult{cl, err}
	}()

	srv, err := NewServer(ctx, serverConn, async.Conn{RW: serverConn}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	cr := <-clientCh
	if cr.err != nil {
		t.Fatalf("NewClient: %v", cr.err)
	}
	cl := cr.cl

	fetchErr := make(chan error, 1)
	fetchDone := make(chan *Response, 1)
	go func() {
		resp, err := cl.Fetch(ctx, []hpack.HeaderField{
			{Name: ":method", Value: "POST"},
			{Name: ":path", Value: "/widgets"},
		}, []byte("request body"))
		if err != nil {
			fetchErr <- err
			return
		}
		fetchDone <- resp
	}()

	req, err := srv.RecvReq(ctx)
	if err != nil {
		t.Fatalf("RecvReq: %v", err)
	}
	defer req.Stream.Release()
	if string(req.Stream.Body()) != "request body" {
		t.Fatalf("request body = %q, want %q", req.Stream.Body(), "request body")
	}

	if err := srv.SendRes(ctx, req.Stream, []hpack.HeaderField{{Name: ":status", Value: "200"}}, []byte("response body")); err != nil {
		t.Fatalf("SendRes: %v", err)
	}

	select {
	case err := <-fetchErr:
		t.Fatalf("Fetch: %v", err)
	case resp := <-fetchDone:
		if string(resp.Body) != "response body" {
			t.Fatalf("response body = %q, want %q", resp.Body, "response body")
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for the fetch to complete")
	}
}

// TestConnRequestNotSurfacedUntilBodyComplete pins the regression this
// engine's recv_req gate fixes: a request whose HEADERS arrived but whose
// DATA has not yet completed must not appear on RecvReq.
func TestConnRequestNotSurfacedUntilBodyComplete(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type clientResult struct {
		cl  *Client
		err error
	}
	clientCh := make(chan clientResult, 1)
	go func() {
		cl, err := NewClient(ctx, clientConn, async.Conn{RW: clientConn}, nil)
		clientCh <- clientResult{cl, err}
	}()

	srv, err := NewServer(ctx, serverConn, async.Conn{RW: serverConn}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	cr := <-clientCh
	if cr.err != nil {
		t.Fatalf("NewClient: %v", cr.err)
	}
	cl := cr.cl

	stream := cl.conn.OpenStream()
	if err := stream.openLocal(false); err != nil {
		t.Fatalf("openLocal: %v", err)
	}
	if err := cl.conn.WriteHeaders(ctx, stream.ID(), []hpack.HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/widgets"},
	}, false); err != nil {
		t.Fatalf("WriteHeaders: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer recvCancel()
	if _, err := srv.RecvReq(recvCtx); err == nil {
		t.Fatalf("expected RecvReq to block while the request body is still open")
	}

	if err := cl.conn.WriteData(ctx, stream, []byte("done"), true); err != nil {
		t.Fatalf("WriteData: %v", err)
	}

	req, err := srv.RecvReq(ctx)
	if err != nil {
		t.Fatalf("RecvReq after END_STREAM: %v", err)
	}
	defer req.Stream.Release()
	if string(req.Stream.Body()) != "done" {
		t.Fatalf("body = %q, want %q", req.Stream.Body(), "done")
	}
}
