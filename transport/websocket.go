package transport

import (
	"context"

	"github.com/outline-cli-ws/protocore/ws"
)

// WebSocket adapts a ws.Conn to the Transport contract. Packages are
// carried as binary WebSocket messages; pkg.Tag has no wire representation
// here (ws.Message carries only an opcode and a payload), so SendAndRetrieve
// relies on strict request/response alternation the way a caller using a
// single WebSocket connection as an RPC channel would.
type WebSocket struct {
	conn *ws.Conn
}

// NewWebSocket wraps an already-handshaken ws.Conn.
func NewWebSocket(conn *ws.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (t *WebSocket) Send(ctx context.Context, pkg Package) error {
	return t.conn.WriteMessage(ctx, ws.OpBinary, pkg.Payload)
}

func (t *WebSocket) SendAndRetrieve(ctx context.Context, pkg Package) (Package, error) {
	if err := t.Send(ctx, pkg); err != nil {
		return Package{}, err
	}
	return t.Recv(ctx)
}

func (t *WebSocket) Recv(ctx context.Context) (Package, error) {
	msg, err := t.conn.ReadMessage(ctx)
	if err != nil {
		return Package{}, err
	}
	return Package{Payload: msg.Payload}, nil
}

func (t *WebSocket) Close() error {
	return t.conn.Close(context.Background(), ws.StatusNormalClosure, "")
}
