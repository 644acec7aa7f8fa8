// Package transport defines the external client-framework surface spec.md
// §4.6 describes as reference-only: a Transport capability parameterised by
// TransportParams, with send/send_and_retrieve/recv primitives that a
// higher-level typed RPC layer would build Package values around. This is
// explicitly a Non-goal to flesh out into a full RPC framework (spec.md
// §1); protocore ships the contract and three grounded implementations
// (stub, HTTP/2, WebSocket) that exercise h2.Client and ws.Conn directly,
// the way the teacher's ClientFramework in h2/client.go composes dial
// functions rather than owning transport selection itself.
package transport

import "context"

// Package is the minimal envelope a Transport moves: an opaque tag plus a
// payload. Higher layers (the schema-manager surface, an RPC codec) build
// typed values around this; protocore does not specify their shape.
type Package struct {
	Tag     string
	Payload []byte
}

// TransportParams describes a Transport family, host and headers, the way
// the teacher's dial-hint structs (parseTransportHints in ws.go) carry
// fields specific to one upstream family. NewStub, NewHTTP2 and
// NewWebSocket take their dependencies directly and do not read it; nothing
// in this package selects an implementation from it.
type TransportParams struct {
	Kind    Kind
	Host    string
	Headers map[string]string
}

// Kind names a Transport family.
type Kind int

const (
	KindStub Kind = iota
	KindHTTP2
	KindWebSocket
)

func (k Kind) String() string {
	switch k {
	case KindStub:
		return "stub"
	case KindHTTP2:
		return "http2"
	case KindWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Transport is the capability spec.md §4.6 names: a caller hands it
// Packages and gets Packages back, independent of what's underneath.
type Transport interface {
	// Send delivers pkg without waiting for a reply.
	Send(ctx context.Context, pkg Package) error
	// SendAndRetrieve delivers pkg and waits for the corresponding reply.
	SendAndRetrieve(ctx context.Context, pkg Package) (Package, error)
	// Recv blocks for the next unsolicited Package (a push, or a reply to
	// a Send that the caller did not correlate itself).
	Recv(ctx context.Context) (Package, error)
	// Close releases the underlying connection.
	Close() error
}
