package reactor

import (
	"fmt"

	"github.com/wolfhead/meridian/internal/logging"
)

const defaultMailboxSize = 4096

// Fleet owns N reactors and routes a descriptor to exactly one of them by
// slot, routing a descriptor to its reactor by slot mod N — a
// descriptor's reactor is chosen once, at registration, and never changes
// for the descriptor's lifetime (reactor affinity).
type Fleet struct {
	reactors []*Reactor
	log      *logging.Logger
}

// NewFleet builds n reactors, each with its own epoll-backed poller (linux)
// or configured backend. n must be at least 1.
func NewFleet(n int, newPoller func() (Poller, error)) (*Fleet, error) {
	if n < 1 {
		return nil, fmt.Errorf("reactor: fleet size must be >= 1, got %d", n)
	}
	if newPoller == nil {
		newPoller = NewEpollPoller
	}
	f := &Fleet{log: logging.Default()}
	for i := 0; i < n; i++ {
		p, err := newPoller()
		if err != nil {
			f.shutdownBuilt()
			return nil, fmt.Errorf("reactor: building reactor %d: %w", i, err)
		}
		rt, err := NewReactor(i, p, defaultMailboxSize)
		if err != nil {
			_ = p.Close()
			f.shutdownBuilt()
			return nil, fmt.Errorf("reactor: building reactor %d: %w", i, err)
		}
		f.reactors = append(f.reactors, rt)
	}
	return f, nil
}

func (f *Fleet) shutdownBuilt() {
	for _, r := range f.reactors {
		r.Shutdown()
	}
}

// Size returns the number of reactors in the fleet.
func (f *Fleet) Size() int { return len(f.reactors) }

// Start launches every reactor's main loop on its own goroutine.
func (f *Fleet) Start() {
	for _, r := range f.reactors {
		go r.Run()
	}
}

// ForSlot deterministically picks the reactor owning descriptor slot s —
// slot mod N — so the same slot always resolves to the same reactor for the
// life of the process.
func (f *Fleet) ForSlot(slot uint32) *Reactor {
	return f.reactors[int(slot)%len(f.reactors)]
}

// Reactor returns the reactor at index i.
func (f *Fleet) Reactor(i int) *Reactor {
	return f.reactors[i]
}

// Post hands fn to the reactor owning slot, regardless of which goroutine
// calls Post.
func (f *Fleet) Post(slot uint32, fn func()) bool {
	return f.ForSlot(slot).Post(fn)
}

// Shutdown stops every reactor and waits for each to return.
func (f *Fleet) Shutdown() {
	for _, r := range f.reactors {
		r.Shutdown()
	}
}
