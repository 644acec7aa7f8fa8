package transport

import (
	"context"
	"testing"
	"time"
)

func TestStubSendAndRetrieveLoopsBack(t *testing.T) {
	s := NewStub(1)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.Send(ctx, Package{Tag: "ping", Payload: []byte("hello")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Tag != "ping" || string(got.Payload) != "hello" {
		t.Fatalf("unexpected package: %+v", got)
	}
}

func TestStubSendAndRetrieveCombined(t *testing.T) {
	s := NewStub(1)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := s.SendAndRetrieve(ctx, Package{Tag: "echo", Payload: []byte("x")})
	if err != nil {
		t.Fatalf("SendAndRetrieve: %v", err)
	}
	if got.Tag != "echo" {
		t.Fatalf("unexpected tag %q", got.Tag)
	}
}

func TestStubOperationsFailAfterClose(t *testing.T) {
	s := NewStub(1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx := context.Background()
	if err := s.Send(ctx, Package{}); err != ErrStubClosed {
		t.Fatalf("expected ErrStubClosed, got %v", err)
	}
	if _, err := s.Recv(ctx); err != ErrStubClosed {
		t.Fatalf("expected ErrStubClosed, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindStub:      "stub",
		KindHTTP2:     "http2",
		KindWebSocket: "websocket",
		Kind(99):      "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
