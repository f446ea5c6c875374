package sequencer

import (
	"sync"
	"time"

	"code.hybscloud.com/spin"
)

// WaitStrategy governs how Pop blocks when the queue is empty. Push never
// blocks on a WaitStrategy — only Pop does.
type WaitStrategy interface {
	// Notify wakes any waiter after a successful Push.
	Notify()
	// Wait blocks until Notify fires or the strategy gives up immediately
	// (NoWaitStrategy never blocks and always returns false).
	Wait() bool
	// TimedWait blocks for at most d.
	TimedWait(d time.Duration) bool
	// WouldBlock reports whether this strategy can block at all.
	WouldBlock() bool
}

// NoWaitStrategy never blocks; Pop fails fast on an empty queue.
type NoWaitStrategy struct{}

func (NoWaitStrategy) Notify() {}

func (NoWaitStrategy) Wait() bool { return false }

func (NoWaitStrategy) TimedWait(time.Duration) bool { return false }

func (NoWaitStrategy) WouldBlock() bool { return false }

// BusyLoopStrategy spins using an exponential/backoff-aware spin.Wait
// between re-checks of the slot, rather than parking the goroutine.
type BusyLoopStrategy struct{}

func (BusyLoopStrategy) Notify() {}

func (BusyLoopStrategy) Wait() bool {
	sw := spin.Wait{}
	sw.Once()
	return true
}

func (BusyLoopStrategy) TimedWait(time.Duration) bool {
	sw := spin.Wait{}
	sw.Once()
	return true
}

func (BusyLoopStrategy) WouldBlock() bool { return true }

// ConditionStrategy parks the calling goroutine on a condition variable,
// woken by Notify. This is the strategy used by stage workers whose
// Pop has a bounded timed wait.
type ConditionStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
	gen  uint64 // bumped only by Notify, used to tell a real wake from a timeout
}

// NewConditionStrategy returns a ready-to-use condition-variable strategy.
func NewConditionStrategy() *ConditionStrategy {
	s := &ConditionStrategy{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *ConditionStrategy) Notify() {
	s.mu.Lock()
	s.gen++
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *ConditionStrategy) Wait() bool {
	s.mu.Lock()
	startGen := s.gen
	for s.gen == startGen {
		s.cond.Wait()
	}
	s.mu.Unlock()
	return true
}

// TimedWait waits for at most d for a Notify. Implemented by racing a timer
// goroutine against the condition variable since sync.Cond has no native
// timed wait. The timer's own Broadcast is indistinguishable from a real one
// at the cond.Wait layer, so gen (bumped only inside Notify) and a fired flag
// set by the timer callback are compared under the same lock to tell which
// one actually woke the waiter.
func (s *ConditionStrategy) TimedWait(d time.Duration) bool {
	s.mu.Lock()
	startGen := s.gen
	fired := false
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		fired = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	for s.gen == startGen && !fired {
		s.cond.Wait()
	}
	woken := s.gen != startGen
	s.mu.Unlock()

	timer.Stop()
	return woken
}

func (s *ConditionStrategy) WouldBlock() bool { return true }
