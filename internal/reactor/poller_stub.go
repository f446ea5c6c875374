//go:build !linux

package reactor

import (
	"fmt"
	"time"
)

// stubPoller reports a clear error rather than silently no-op-ing on
// platforms without epoll: a build-tag-gated stand-in that fails loudly
// instead of pretending to work.
type stubPoller struct{}

// NewEpollPoller is unavailable outside linux; build for linux to use the
// epoll-backed reactor fleet.
func NewEpollPoller() (Poller, error) {
	return nil, fmt.Errorf("reactor: epoll poller requires linux")
}

func (stubPoller) Add(int, EventMask) error    { return fmt.Errorf("reactor: no poller backend") }
func (stubPoller) Modify(int, EventMask) error { return fmt.Errorf("reactor: no poller backend") }
func (stubPoller) Remove(int) error            { return fmt.Errorf("reactor: no poller backend") }
func (stubPoller) Wait(events []Event, _ time.Duration) ([]Event, error) {
	return events, fmt.Errorf("reactor: no poller backend")
}
func (stubPoller) Close() error { return nil }
