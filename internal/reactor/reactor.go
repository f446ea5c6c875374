package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfhead/meridian/internal/logging"
)

// Handler receives readiness callbacks for one registered fd. OnReadable and
// OnWritable run on the reactor's own goroutine — never concurrently with
// each other or with any other handler on the same reactor — so a handler
// never needs its own lock for state only that reactor touches.
type Handler interface {
	OnReadable(fd int)
	OnWritable(fd int)
	// OnError is invoked when the poller itself reports an error condition
	// on fd (peer reset, EPOLLHUP); the handler should treat the
	// descriptor as closed.
	OnError(fd int, err error)
}

type registration struct {
	handler  Handler
	interest EventMask
}

// Reactor is one event loop pinned to its own OS thread, owning a
// disjoint slice of registered descriptors. A descriptor is always driven by
// exactly one Reactor for its whole lifetime — the "reactor affinity"
// property — enforced by Fleet routing registration to a single
// Reactor and never migrating it.
type Reactor struct {
	id       int
	poller   Poller
	notifier *notifier
	log      *logging.Logger

	mu    sync.Mutex
	regs  map[int]*registration
	timer timerQueue

	closing int32
	done    chan struct{}
}

// NewReactor constructs Reactor id with its own Poller and notifier
// mailbox. The caller starts it with Run in a dedicated goroutine.
func NewReactor(id int, poller Poller, mailboxSize uint64) (*Reactor, error) {
	n, err := newNotifier(mailboxSize)
	if err != nil {
		return nil, err
	}
	return &Reactor{
		id:       id,
		poller:   poller,
		notifier: n,
		log:      logging.Default().With("reactor_id", id),
		regs:     make(map[int]*registration),
		done:     make(chan struct{}),
	}, nil
}

// ID returns this reactor's index within its Fleet, the index that
// descriptor routing (slot mod N) resolves to.
func (r *Reactor) ID() int { return r.id }

// Post hands fn to run on this reactor's own goroutine, waking it if it is
// blocked in the poller. Safe to call from any goroutine. Returns false if
// the mailbox is full (back-pressure, never a silent drop).
func (r *Reactor) Post(fn func()) bool {
	return r.notifier.post(fn)
}

// RegisterRead arms fd for read readiness, invoking h.OnReadable on each
// wake. Combines with RegisterWrite on the same fd via independent interest
// bits — both can be armed at once.
func (r *Reactor) RegisterRead(fd int, h Handler) error {
	return r.register(fd, h, EventRead)
}

// RegisterWrite arms fd for write readiness.
func (r *Reactor) RegisterWrite(fd int, h Handler) error {
	return r.register(fd, h, EventWrite)
}

func (r *Reactor) register(fd int, h Handler, bit EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[fd]
	if !ok {
		reg = &registration{handler: h}
		r.regs[fd] = reg
		reg.interest = bit
		return r.poller.Add(fd, reg.interest)
	}
	reg.handler = h
	reg.interest |= bit
	return r.poller.Modify(fd, reg.interest)
}

// UnregisterRead clears read interest on fd without closing it.
func (r *Reactor) UnregisterRead(fd int) error {
	return r.unregister(fd, EventRead)
}

// UnregisterWrite clears write interest on fd without closing it.
func (r *Reactor) UnregisterWrite(fd int) error {
	return r.unregister(fd, EventWrite)
}

func (r *Reactor) unregister(fd int, bit EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[fd]
	if !ok {
		return nil
	}
	reg.interest &^= bit
	if reg.interest == 0 {
		delete(r.regs, fd)
		return r.poller.Remove(fd)
	}
	return r.poller.Modify(fd, reg.interest)
}

// Close deregisters fd entirely, clearing read and write interest in one
// call (unlike the Unregister* pair, which clear one interest each). It does
// not close the underlying fd itself — callers own that — only the
// reactor's bookkeeping for it.
func (r *Reactor) Close(fd int) error {
	r.mu.Lock()
	_, ok := r.regs[fd]
	delete(r.regs, fd)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.poller.Remove(fd)
}

// StartTimer arms fn to run on this reactor's goroutine no earlier than d
// from now — the timer-wait yield point coroutines suspend on, and what the
// client router's reconnect backoff schedules through. Must be called from
// the reactor's own goroutine (use Post to get there from elsewhere).
func (r *Reactor) StartTimer(d time.Duration, fn func()) *timerEntry {
	return r.timer.schedule(d, fn)
}

// CancelTimer suppresses a timer armed by StartTimer if it has not yet
// fired. Must be called from the reactor's own goroutine.
func (r *Reactor) CancelTimer(e *timerEntry) {
	r.timer.cancel(e)
}

// Run is the reactor's main loop: drain the mailbox, poll with a timeout
// bounded by the nearest timer, dispatch ready events, then run expired
// timers. Pins itself to its OS thread for the life of the reactor.
func (r *Reactor) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	events := make([]Event, 0, 256)
	for atomic.LoadInt32(&r.closing) == 0 {
		r.notifier.drain()

		timeout := r.timer.nextDeadline(time.Now())
		var err error
		events, err = r.poller.Wait(events[:0], timeout)
		if err != nil {
			r.log.Warn("poll wait error", "error", err)
		}

		r.notifier.drainWake()

		for _, ev := range events {
			r.dispatch(ev)
		}
		r.timer.runExpired(time.Now())
	}
}

func (r *Reactor) dispatch(ev Event) {
	r.mu.Lock()
	reg, ok := r.regs[ev.FD]
	r.mu.Unlock()
	if !ok {
		return
	}
	if ev.Err != nil {
		reg.handler.OnError(ev.FD, ev.Err)
		return
	}
	// Read before write: a
	// handler that both drains incoming data and flushes a pending write
	// on the same wake should see the data first.
	if ev.Ready&EventRead != 0 {
		reg.handler.OnReadable(ev.FD)
	}
	if ev.Ready&EventWrite != 0 {
		reg.handler.OnWritable(ev.FD)
	}
}

// Shutdown stops the main loop after its current iteration and waits for
// Run to return.
func (r *Reactor) Shutdown() {
	atomic.StoreInt32(&r.closing, 1)
	r.notifier.wake()
	<-r.done
	_ = r.poller.Close()
	_ = r.notifier.close()
}
