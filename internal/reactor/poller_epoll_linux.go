//go:build linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the default Poller backend: readiness-based polling via
// raw unix.EpollCreate1/EpollCtl/EpollWait calls.
type epollPoller struct {
	epfd int
	buf  []unix.EpollEvent
}

// NewEpollPoller creates an epoll-backed Poller.
func NewEpollPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd, buf: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(interest EventMask) uint32 {
	var ev uint32
	if interest&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Add(fd int, interest EventMask) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Modify(fd int, interest EventMask) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Remove(fd int) error {
	// Linux ignores the event argument for EPOLL_CTL_DEL but pre-2.6.9
	// kernels required a non-nil pointer; pass one for safety.
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.buf, ms)
	if err != nil {
		if err == unix.EINTR {
			return events, nil
		}
		return events, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		raw := p.buf[i]
		var ready EventMask
		var evErr error
		if raw.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			ready |= EventRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			ready |= EventWrite
		}
		if raw.Events&unix.EPOLLERR != 0 {
			evErr = fmt.Errorf("reactor: EPOLLERR on fd %d", raw.Fd)
		}
		events = append(events, Event{FD: int(raw.Fd), Ready: ready, Err: evErr})
	}
	return events, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
