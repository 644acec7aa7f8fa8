package h2

import (
	"testing"

	"github.com/outline-cli-ws/protocore/h2/hpack"
)

func TestStreamOpenLocalTransitions(t *testing.T) {
	s := newStream(1, 65535, 65535)
	if s.State() != StreamIdle {
		t.Fatalf("new stream state = %s, want idle", s.State())
	}
	if err := s.openLocal(false); err != nil {
		t.Fatalf("openLocal: %v", err)
	}
	if s.State() != StreamOpen {
		t.Fatalf("state after openLocal(false) = %s, want open", s.State())
	}
	if err := s.openLocal(false); err == nil {
		t.Fatalf("expected re-opening an already-open stream to fail")
	}
}

func TestStreamOpenLocalWithEndStreamGoesHalfClosed(t *testing.T) {
	s := newStream(3, 65535, 65535)
	if err := s.openLocal(true); err != nil {
		t.Fatalf("openLocal: %v", err)
	}
	if s.State() != StreamHalfClosedLocal {
		t.Fatalf("state = %s, want half-closed(local)", s.State())
	}
}

func TestStreamRecvHeadersIdleToOpen(t *testing.T) {
	s := newStream(2, 65535, 65535)
	fields := []hpack.HeaderField{{Name: ":status", Value: "200"}}
	if err := s.recvHeaders(fields, false); err != nil {
		t.Fatalf("recvHeaders: %v", err)
	}
	if s.State() != StreamOpen {
		t.Fatalf("state = %s, want open", s.State())
	}
	if len(s.Headers()) != 1 || s.Headers()[0].Value != "200" {
		t.Fatalf("headers not recorded: %+v", s.Headers())
	}
}

func TestStreamRecvHeadersWithEndStreamClosesRemote(t *testing.T) {
	s := newStream(2, 65535, 65535)
	if err := s.recvHeaders(nil, true); err != nil {
		t.Fatalf("recvHeaders: %v", err)
	}
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("state = %s, want half-closed(remote)", s.State())
	}
}

func TestStreamRecvDataAccumulatesBodyAndObservesEndStream(t *testing.T) {
	s := newStream(2, 65535, 65535)
	if err := s.recvHeaders(nil, false); err != nil {
		t.Fatalf("recvHeaders: %v", err)
	}
	if err := s.recvData([]byte("hello "), false); err != nil {
		t.Fatalf("recvData: %v", err)
	}
	if err := s.recvData([]byte("world"), true); err != nil {
		t.Fatalf("recvData: %v", err)
	}
	if string(s.Body()) != "hello world" {
		t.Fatalf("body = %q, want %q", s.Body(), "hello world")
	}
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("state after END_STREAM data = %s, want half-closed(remote)", s.State())
	}
}

func TestStreamRecvDataOnIdleStreamIsAnError(t *testing.T) {
	s := newStream(2, 65535, 65535)
	if err := s.recvData([]byte("x"), false); err == nil {
		t.Fatalf("expected DATA on an idle stream to be rejected")
	}
}

func TestStreamFullRequestResponseCycleReachesClosed(t *testing.T) {
	// Client opens with headers, sends body with END_STREAM (half-closed
	// local), then receives a response with END_STREAM (half-closed remote
	// on top of half-closed local becomes fully closed), mirroring a single
	// unary HTTP/2 exchange end to end.
	s := newStream(1, 65535, 65535)
	if err := s.openLocal(false); err != nil {
		t.Fatalf("openLocal: %v", err)
	}
	s.closeLocal() // DATA frame with END_STREAM written
	if s.State() != StreamHalfClosedLocal {
		t.Fatalf("state after closeLocal = %s, want half-closed(local)", s.State())
	}
	if err := s.recvHeaders([]hpack.HeaderField{{Name: ":status", Value: "200"}}, true); err != nil {
		t.Fatalf("recvHeaders: %v", err)
	}
	if s.State() != StreamClosed {
		t.Fatalf("state after response END_STREAM = %s, want closed", s.State())
	}
}

func TestStreamTrailerHeadersRequireEndStream(t *testing.T) {
	s := newStream(2, 65535, 65535)
	if err := s.recvHeaders(nil, false); err != nil {
		t.Fatalf("recvHeaders: %v", err)
	}
	if err := s.recvData([]byte("body"), false); err != nil {
		t.Fatalf("recvData: %v", err)
	}
	if err := s.recvHeaders([]hpack.HeaderField{{Name: "x-trailer", Value: "1"}}, false); err == nil {
		t.Fatalf("expected trailer HEADERS without END_STREAM to be rejected")
	}
	if err := s.recvHeaders([]hpack.HeaderField{{Name: "x-trailer", Value: "1"}}, true); err != nil {
		t.Fatalf("recvHeaders trailers: %v", err)
	}
	if len(s.trailers) != 1 {
		t.Fatalf("expected trailers recorded, got %+v", s.trailers)
	}
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("state = %s, want half-closed(remote)", s.State())
	}
}

func TestStreamHeadersOnClosedStreamIsAnError(t *testing.T) {
	s := newStream(2, 65535, 65535)
	s.reset(streamErrorf(2, ErrCodeCancel, "test"))
	if s.State() != StreamClosed {
		t.Fatalf("state after reset = %s, want closed", s.State())
	}
	if err := s.recvHeaders(nil, false); err == nil {
		t.Fatalf("expected HEADERS on a closed stream to be rejected")
	}
}

func TestStreamApplyWindowDeltaRejectsOverflow(t *testing.T) {
	s := newStream(1, 65535, 65535)
	s.sendWindow = 1 << 31
	if err := s.applyWindowDelta(1); err == nil {
		t.Fatalf("expected send window overflow to be rejected")
	}
}

func TestStreamStateStringCoversEveryState(t *testing.T) {
	for st := StreamIdle; st <= StreamClosed; st++ {
		if got := st.String(); got == "unknown" {
			t.Fatalf("state %d has no name", st)
		}
	}
}
