//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wolfhead/meridian/internal/sequencer"
)

// task is a cross-thread function handed to a Reactor to run on its own
// goroutine, the mechanism Post uses to move work (a Send from another
// stage's worker, a client channel write) onto the reactor that owns the
// target descriptor without taking a lock shared with the poll loop.
type task func()

// notifier is the cross-thread mailbox a Reactor drains every iteration of
// its main loop. It pairs an MPSC sequencer.Sequencer (many goroutines may
// Post, only the owning reactor ever Pops) with an eventfd so Wait can be
// woken even while blocked in the kernel poll call — the Go analogue of the
// teacher's ioLoop waking on ring completions instead of a condition
// variable, generalized here to "wake a blocked epoll_wait".
type notifier struct {
	mailbox *sequencer.Sequencer[task]
	eventfd int
}

func newNotifier(mailboxSize uint64) (*notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	return &notifier{
		mailbox: sequencer.New[task](sequencer.Config{
			Size:     mailboxSize,
			Producer: sequencer.MultiCAS,
			Consumer: sequencer.Single,
		}),
		eventfd: fd,
	}, nil
}

// post enqueues fn to run on the reactor owning this notifier and wakes it.
// It returns false if the mailbox is full; Reactor.Post and Fleet.Post
// pass that false up to their caller and do not retry, so fn is not queued.
func (n *notifier) post(fn task) bool {
	if !n.mailbox.Push(fn) {
		return false
	}
	n.wake()
	return true
}

func (n *notifier) wake() {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, _ = unix.Write(n.eventfd, buf[:])
}

// drainWake consumes the eventfd's accumulated counter so a subsequent
// epoll_wait blocks again instead of spinning on a already-signalled fd.
func (n *notifier) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(n.eventfd, buf[:])
}

// drain runs every pending task in FIFO order. Called once per reactor
// iteration after waking, never concurrently with itself.
func (n *notifier) drain() {
	for {
		fn, ok := n.mailbox.Pop(0)
		if !ok {
			return
		}
		fn()
	}
}

func (n *notifier) close() error {
	return unix.Close(n.eventfd)
}
