package coro

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/rterrors"
)

// Scheduler owns a set of in-flight Tasks, one per suspended handler
// invocation, keyed by id for cancellation fan-out (the client router uses
// this to resume every task waiting on a connection that just dropped, with
// a Transport error, rather than leaving them to time out one by one).
type Scheduler struct {
	nextID atomic.Uint64

	mu    sync.Mutex
	tasks map[uint64]*Task
}

// New returns an empty Scheduler. A Scheduler is not tied to any worker
// thread: each Task it spawns runs on its own goroutine, and one Scheduler
// may be shared by many stage workers (the Runtime shares one across every
// registered service).
func New() *Scheduler {
	return &Scheduler{tasks: make(map[uint64]*Task)}
}

// Spawn starts fn on a fresh goroutine bound to a new Task and returns it
// immediately; fn runs concurrently with the caller. descriptorHint, if
// non-zero, names the client channel this task's SendReceive calls will
// address, purely for diagnostics on timeout.
func (s *Scheduler) Spawn(fn func(t *Task), descriptorHint iodesc.Descriptor) *Task {
	id := s.nextID.Add(1)
	t := newTask(id, descriptorHint)

	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
			close(t.done)
		}()
		fn(t)
	}()
	return t
}

// Deliver resumes the task with the given id carrying payload, if it is
// currently suspended and awaiting resumption. Returns false if the task is
// unknown or was not awaiting anything (e.g. a stale or duplicate
// correlation key) — the caller should treat that as "response for nothing
// in flight", not an error.
func (s *Scheduler) Deliver(id uint64, payload any) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return t.resume(resumeResult{payload: payload})
}

// Cancel marks the task cancelled and, if it is currently suspended,
// resumes it immediately with a Cancelled error.
func (s *Scheduler) Cancel(id uint64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancelled.Store(true)
	t.resume(resumeResult{err: rterrors.Cancelled("Cancel")})
}

// CancelAll resumes every currently-suspended task of this scheduler with
// reason (the client router passes a Transport error) — the connection-loss
// fan-out the client router performs when a channel's underlying connection
// drops while tasks are waiting on it.
func (s *Scheduler) CancelAll(reason error) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		t, ok := s.tasks[id]
		s.mu.Unlock()
		if ok {
			t.resume(resumeResult{err: reason})
		}
	}
}

// ActiveCount reports how many tasks this scheduler is currently tracking,
// suspended or still running.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// post runs fn asynchronously, the mechanism Task.Yield uses to hand control
// back to the scheduler between cooperative steps. A dedicated goroutine
// per yield keeps this decoupled from any particular reactor; callers that
// need a yielded task to resume specifically on a reactor's own goroutine
// should have fn call reactor.Reactor.Post instead of doing work directly.
func (s *Scheduler) post(fn func()) {
	go fn()
}

// scheduleTimeout arms fn to run after d and returns a handle cancelTimeout
// can use to suppress it. Backed by time.AfterFunc rather than a reactor
// timer so coro has no dependency on the reactor package; a scheduler
// driven by a particular reactor fleet can still have its Tasks' sends
// routed through that reactor via the send callback passed to SendReceive.
func (s *Scheduler) scheduleTimeout(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, fn)
}

func (s *Scheduler) cancelTimeout(timer *time.Timer) {
	timer.Stop()
}
