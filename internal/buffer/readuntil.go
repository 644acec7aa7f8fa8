package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrUnexpectedEOF is returned by ReadUntil when the stream ends before
// the required prefix length has arrived. It wraps io.ErrUnexpectedEOF so
// callers can match on either.
var ErrUnexpectedEOF = fmt.Errorf("buffer: stream closed before required bytes arrived: %w", io.ErrUnexpectedEOF)

// Source is the minimal read surface ReadUntil needs. ws.Conn and h2's
// framer both satisfy this with their underlying net.Conn (or a test
// io.Reader).
type Source interface {
	Read(p []byte) (int, error)
}

// ReadUntil blocks until at least K+N bytes have been read from src into f,
// then returns the N-byte window starting at offset K relative to the
// current message start. No bytes past K+N are consumed from src beyond
// what ends up buffered in `following`; ReadUntil only ever reads as many
// extra bytes as a single underlying Read call happens to return, so
// trailing data from the next message may legitimately land in the
// following span and is preserved there for the next call.
//
// ctx is checked between read attempts so a cancelled context unblocks a
// caller waiting on a slow/stalled peer.
func ReadUntil(ctx context.Context, src Source, f *Fabric, k, n int) ([]byte, error) {
	if n < 0 || k < 0 {
		return nil, fmt.Errorf("buffer: ReadUntil requires non-negative k,n (k=%d n=%d)", k, n)
	}
	need := f.start + k + n
	for f.following < need {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.Reserve(need - f.following)
		tail := f.FollowMut()
		if len(tail) == 0 {
			return nil, errors.New("buffer: Reserve did not produce writable tail capacity")
		}
		nr, err := src.Read(tail)
		if nr > 0 {
			f.AdvanceFollowing(nr)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if f.following >= need {
					break
				}
				return nil, ErrUnexpectedEOF
			}
			return nil, err
		}
		if nr == 0 {
			return nil, errors.New("buffer: underlying Read returned (0, nil); violates io.Reader contract")
		}
	}
	lo := f.start + k
	hi := lo + n
	return f.buf[lo:hi], nil
}
