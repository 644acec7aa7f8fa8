package transport

import (
	"context"
	"errors"

	"github.com/outline-cli-ws/protocore/h2"
	"github.com/outline-cli-ws/protocore/h2/hpack"
)

// ErrHTTP2RecvUnsupported documents the one primitive the HTTP/2 Transport
// cannot implement faithfully: h2.Client.Fetch is request/response, so
// there is no unsolicited-push channel for Recv to drain. A server-pushed
// stream would need its own API on h2.Client, not currently part of
// SPEC_FULL.md's HTTP/2 engine scope.
var ErrHTTP2RecvUnsupported = errors.New("transport: http2 does not support unsolicited Recv")

// HTTP2 adapts an h2.ClientFramework to the Transport contract. pkg.Tag is
// used verbatim as the request path; pkg.Payload is the request body.
type HTTP2 struct {
	framework *h2.ClientFramework
	host      string
}

// NewHTTP2 wraps an already-constructed h2.ClientFramework for one host.
func NewHTTP2(framework *h2.ClientFramework, host string) *HTTP2 {
	return &HTTP2{framework: framework, host: host}
}

func (t *HTTP2) Send(ctx context.Context, pkg Package) error {
	_, err := t.SendAndRetrieve(ctx, pkg)
	return err
}

func (t *HTTP2) SendAndRetrieve(ctx context.Context, pkg Package) (Package, error) {
	headers := []hpack.HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: pkg.Tag},
	}
	resp, err := t.framework.Fetch(ctx, t.host, headers, pkg.Payload)
	if err != nil {
		return Package{}, err
	}
	return Package{Tag: pkg.Tag, Payload: resp.Body}, nil
}

func (t *HTTP2) Recv(ctx context.Context) (Package, error) {
	return Package{}, ErrHTTP2RecvUnsupported
}

func (t *HTTP2) Close() error {
	return t.framework.Close()
}
