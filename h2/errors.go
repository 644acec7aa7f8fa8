// Package h2 implements the HTTP/2 wire engine: connection preface, frame
// codec, HPACK (via h2/hpack), multiplexed stream state machines, flow
// control, and the server/client surfaces described in spec.md §4.4.
package h2

import "fmt"

// ErrCode is an RFC 7540 §7 error code.
type ErrCode uint32

const (
	ErrCodeNone               ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

func (c ErrCode) String() string {
	names := map[ErrCode]string{
		ErrCodeNone: "NO_ERROR", ErrCodeProtocol: "PROTOCOL_ERROR", ErrCodeInternal: "INTERNAL_ERROR",
		ErrCodeFlowControl: "FLOW_CONTROL_ERROR", ErrCodeSettingsTimeout: "SETTINGS_TIMEOUT",
		ErrCodeStreamClosed: "STREAM_CLOSED", ErrCodeFrameSize: "FRAME_SIZE_ERROR",
		ErrCodeRefusedStream: "REFUSED_STREAM", ErrCodeCancel: "CANCEL", ErrCodeCompression: "COMPRESSION_ERROR",
		ErrCodeConnect: "CONNECT_ERROR", ErrCodeEnhanceYourCalm: "ENHANCE_YOUR_CALM",
		ErrCodeInadequateSecurity: "INADEQUATE_SECURITY", ErrCodeHTTP11Required: "HTTP_1_1_REQUIRED",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("ERR_CODE(0x%x)", uint32(c))
}

// ConnError is fatal for the whole connection: the driver sends GOAWAY with
// Code and tears the connection down.
type ConnError struct {
	Code   ErrCode
	Reason string
}

func (e *ConnError) Error() string { return fmt.Sprintf("h2: connection error %s: %s", e.Code, e.Reason) }

// StreamError resets a single stream; the connection survives.
type StreamError struct {
	StreamID uint32
	Code     ErrCode
	Reason   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("h2: stream %d error %s: %s", e.StreamID, e.Code, e.Reason)
}

func connErrorf(code ErrCode, format string, args ...any) error {
	return &ConnError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func streamErrorf(streamID uint32, code ErrCode, format string, args ...any) error {
	return &StreamError{StreamID: streamID, Code: code, Reason: fmt.Sprintf(format, args...)}
}
