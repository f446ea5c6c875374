// Package netbuf provides a bufiox.Reader-compatible decode buffer fed
// incrementally from a reactor readiness callback instead of blocking on an
// io.Reader. bufiox.DefaultReader latches its first error permanently
// (its own contract: once set, every later call keeps returning it), which
// is wrong for an event-driven decode loop where "not enough data yet" is
// routine and must be retried on the next wake rather than wedging the
// connection forever. Buffer instead reports a plain io.EOF on a short read
// and is fully usable again the moment more bytes are fed in.
package netbuf

import (
	"errors"
	"io"
)

var errNegativeCount = errors.New("netbuf: negative count")

// Buffer holds bytes accumulated across reactor wakes and serves them to a
// codec exactly like bufiox.DefaultReader, but without DefaultReader's
// sticky error state.
type Buffer struct {
	buf []byte
	ri  int // buf[ri:] is unread
	rn  int // bytes consumed since the last Release
}

// New returns an empty Buffer ready for Feed.
func New() *Buffer {
	return &Buffer{}
}

// Feed appends freshly read bytes, first compacting away the already
// consumed prefix so a long-lived connection's buffer doesn't grow without
// bound.
func (b *Buffer) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.ri > 0 {
		b.buf = append(b.buf[:0], b.buf[b.ri:]...)
		b.ri = 0
	}
	b.buf = append(b.buf, p...)
}

// Buffered reports how many unread bytes are currently held.
func (b *Buffer) Buffered() int { return len(b.buf) - b.ri }

// Next reads the next n bytes, advancing past them. Returns io.EOF — never
// latched — if fewer than n bytes are currently buffered; the caller (a
// codec, normally) should retry once ConnReader's next OnReadable feeds more
// data.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeCount
	}
	if n > b.Buffered() {
		return nil, io.EOF
	}
	p := b.buf[b.ri : b.ri+n : b.ri+n]
	b.ri += n
	b.rn += n
	return p, nil
}

// Peek behaves like Next without advancing.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeCount
	}
	if n > b.Buffered() {
		return nil, io.EOF
	}
	return b.buf[b.ri : b.ri+n : b.ri+n], nil
}

// Skip discards the next n bytes without returning them.
func (b *Buffer) Skip(n int) error {
	if n < 0 {
		return errNegativeCount
	}
	if n > b.Buffered() {
		return io.EOF
	}
	b.ri += n
	b.rn += n
	return nil
}

// ReadBinary copies up to len(bs) buffered bytes into bs, returning io.EOF
// (not latched) if fewer than len(bs) are currently available.
func (b *Buffer) ReadBinary(bs []byte) (int, error) {
	avail := b.Buffered()
	if avail < len(bs) {
		return 0, io.EOF
	}
	n := copy(bs, b.buf[b.ri:])
	b.ri += n
	b.rn += n
	return n, nil
}

// ReadLen returns the number of bytes consumed since the last Release.
func (b *Buffer) ReadLen() int { return b.rn }

// Release resets the consumed-byte counter. The already-read prefix is
// reclaimed lazily by the next Feed's compaction rather than here; e is
// accepted only to satisfy bufiox.Reader and is otherwise unused, since
// Buffer has no sticky error state for it to seed.
func (b *Buffer) Release(error) error {
	b.rn = 0
	return nil
}
