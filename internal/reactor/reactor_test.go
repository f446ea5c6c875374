//go:build linux

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordingHandler struct {
	mu        sync.Mutex
	readable  int
	writable  int
	lastError error
}

func (h *recordingHandler) OnReadable(int) {
	h.mu.Lock()
	h.readable++
	h.mu.Unlock()
}

func (h *recordingHandler) OnWritable(int) {
	h.mu.Lock()
	h.writable++
	h.mu.Unlock()
}

func (h *recordingHandler) OnError(_ int, err error) {
	h.mu.Lock()
	h.lastError = err
	h.mu.Unlock()
}

func (h *recordingHandler) snapshot() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readable, h.writable
}

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	p, err := NewEpollPoller()
	require.NoError(t, err)
	r, err := NewReactor(0, p, 64)
	require.NoError(t, err)
	return r
}

// TestReactorDispatchesReadable exercises readiness-dispatch plumbing at the
// reactor layer: a socket pair end becomes readable and the registered handler's
// OnReadable fires.
func TestReactorDispatchesReadable(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	r := newTestReactor(t)
	h := &recordingHandler{}
	require.NoError(t, r.RegisterRead(fds[0], h))

	go r.Run()
	defer r.Shutdown()

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		readable, _ := h.snapshot()
		return readable > 0
	}, time.Second, 5*time.Millisecond)
}

// TestReactorPostRunsOnReactorGoroutine verifies the cross-thread mailbox:
// a function handed to Post via a different goroutine executes exactly
// once, even while the reactor is parked in epoll_wait.
func TestReactorPostRunsOnReactorGoroutine(t *testing.T) {
	r := newTestReactor(t)
	go r.Run()
	defer r.Shutdown()

	done := make(chan struct{})
	require.True(t, r.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}

// TestFleetRoutesBySlotModulo verifies reactor affinity: the
// same slot always resolves to the same reactor.
func TestFleetRoutesBySlotModulo(t *testing.T) {
	f, err := NewFleet(3, NewEpollPoller)
	require.NoError(t, err)
	defer f.Shutdown()

	for slot := uint32(0); slot < 10; slot++ {
		first := f.ForSlot(slot)
		second := f.ForSlot(slot)
		require.Same(t, first, second)
	}
	require.Same(t, f.Reactor(0), f.ForSlot(0))
	require.Same(t, f.Reactor(1), f.ForSlot(1))
	require.Same(t, f.Reactor(0), f.ForSlot(3))
}

func TestReactorTimerFiresAfterDelay(t *testing.T) {
	r := newTestReactor(t)
	go r.Run()
	defer r.Shutdown()

	fired := make(chan struct{})
	r.Post(func() {
		r.StartTimer(10*time.Millisecond, func() { close(fired) })
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestReactorCancelTimerSuppressesIt(t *testing.T) {
	r := newTestReactor(t)
	go r.Run()
	defer r.Shutdown()

	fired := make(chan struct{}, 1)
	armed := make(chan struct{})
	r.Post(func() {
		e := r.StartTimer(20*time.Millisecond, func() { fired <- struct{}{} })
		r.CancelTimer(e)
		close(armed)
	})
	<-armed

	select {
	case <-fired:
		t.Fatal("cancelled timer fired anyway")
	case <-time.After(50 * time.Millisecond):
	}
}
