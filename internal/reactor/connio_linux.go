//go:build linux

package reactor

import (
	"fmt"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wolfhead/meridian/internal/bufpool"
)

const connReadChunk = 16 * 1024

// ConnReader drives one connection's reads through a Reactor's poll loop
// instead of a dedicated blocking goroutine, satisfying reactor affinity:
// once registered, this descriptor is serviced only by the Reactor it was
// registered on, for its whole lifetime. It implements Handler so the
// owning Reactor calls OnReadable directly on its own goroutine.
type ConnReader struct {
	fd      int
	r       *Reactor
	raw     syscall.RawConn
	onData  func(p []byte)
	onClose func(cause error)

	mu     sync.Mutex
	closed bool
}

// NewConnReader extracts conn's raw file descriptor and registers it for
// read readiness on r. onData is called with each chunk read, on r's own
// goroutine, for the caller to feed into its decode buffer; onClose is
// called exactly once, with the reason the descriptor stopped being
// readable (io.EOF on a clean peer close, or the syscall error otherwise).
func NewConnReader(conn syscall.Conn, r *Reactor, onData func([]byte), onClose func(error)) (*ConnReader, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("reactor: conn has no raw fd: %w", err)
	}

	var fd int
	var ctrlErr error
	err = raw.Control(func(sysfd uintptr) {
		fd = int(sysfd)
		// EpollWait needs the fd in non-blocking mode; net.Conn's fd is
		// blocking by default under the runtime netpoller.
		ctrlErr = unix.SetNonblock(fd, true)
	})
	if err != nil {
		return nil, fmt.Errorf("reactor: raw control: %w", err)
	}
	if ctrlErr != nil {
		return nil, fmt.Errorf("reactor: set nonblock: %w", ctrlErr)
	}

	cr := &ConnReader{fd: fd, r: r, raw: raw, onData: onData, onClose: onClose}
	if err := r.RegisterRead(fd, cr); err != nil {
		return nil, fmt.Errorf("reactor: register read: %w", err)
	}
	return cr, nil
}

// FD returns the underlying descriptor this ConnReader was registered with.
func (cr *ConnReader) FD() int { return cr.fd }

// OnReadable drains everything currently available on fd in a loop of
// non-blocking reads, since edge-triggered-style epoll readiness only
// guarantees "at least one byte", not "exactly one chunk" — a single wake
// can carry many chunks worth of data.
func (cr *ConnReader) OnReadable(fd int) {
	for {
		scratch := bufpool.Get(connReadChunk)
		var n int
		var readErr error
		ctrlErr := cr.raw.Read(func(sysfd uintptr) bool {
			n, readErr = unix.Read(int(sysfd), scratch)
			// Control's callback contract: return false to ask the runtime
			// to wait for readability again. This callback always returns
			// true, so an EAGAIN comes back as readErr and is handled
			// below by returning to the reactor, which owns readiness.
			return true
		})
		if ctrlErr != nil {
			bufpool.Put(scratch)
			cr.teardown(ctrlErr)
			return
		}
		if readErr != nil {
			bufpool.Put(scratch)
			if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK {
				return
			}
			cr.teardown(readErr)
			return
		}
		if n == 0 {
			bufpool.Put(scratch)
			cr.teardown(nil)
			return
		}
		cr.onData(scratch[:n])
		bufpool.Put(scratch)
		if n < connReadChunk {
			// Short read: the socket buffer is drained for now, further
			// reads would just return EAGAIN.
			return
		}
	}
}

// OnWritable is unused: writes on this connection go through the blocking
// net.Conn write path directly rather than being multiplexed by the
// reactor, a deliberate simplification documented alongside this type.
func (cr *ConnReader) OnWritable(fd int) {}

// OnError reports a poller-detected error condition (peer reset, EPOLLHUP)
// on fd.
func (cr *ConnReader) OnError(fd int, err error) {
	cr.teardown(err)
}

func (cr *ConnReader) teardown(cause error) {
	cr.mu.Lock()
	if cr.closed {
		cr.mu.Unlock()
		return
	}
	cr.closed = true
	cr.mu.Unlock()

	_ = cr.r.Close(cr.fd)
	cr.onClose(cause)
}

// Close unregisters fd from the reactor without reporting onClose, for a
// caller that is tearing the connection down on its own terms (not in
// response to a read error).
func (cr *ConnReader) Close() error {
	cr.mu.Lock()
	if cr.closed {
		cr.mu.Unlock()
		return nil
	}
	cr.closed = true
	cr.mu.Unlock()
	return cr.r.Close(cr.fd)
}
