package reactor

import (
	"container/heap"
	"time"
)

// timerEntry is one armed timer: StartTimer (coroutine timer-wait yield, the
// client router's reconnect backoff) all go through this, never a raw
// time.Timer per caller, so a single reactor thread owns all deadline book
// keeping without synchronization.
type timerEntry struct {
	deadline time.Time
	seq      uint64 // tie-breaker for equal deadlines, FIFO among them
	fn       func()
	index    int
	cancelled bool
}

// timerQueue is a min-heap of pending timers ordered by deadline, grounded
// on the same "bounded poll timeout driven by nearest deadline" shape the
// teacher's runner uses a 50ms fixed Pop timeout for, generalized here to an
// arbitrary per-timer deadline instead of one fixed constant.
type timerQueue struct {
	entries []*timerEntry
	nextSeq uint64
}

func (q *timerQueue) Len() int { return len(q.entries) }
func (q *timerQueue) Less(i, j int) bool {
	return q.entries[i].deadline.Before(q.entries[j].deadline) ||
		(q.entries[i].deadline.Equal(q.entries[j].deadline) && q.entries[i].seq < q.entries[j].seq)
}
func (q *timerQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}
func (q *timerQueue) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}
func (q *timerQueue) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.entries = old[:n-1]
	return e
}

// schedule arms fn to run no earlier than d from now, returning a handle
// that cancel can use to suppress it before it fires.
func (q *timerQueue) schedule(d time.Duration, fn func()) *timerEntry {
	e := &timerEntry{deadline: time.Now().Add(d), seq: q.nextSeq, fn: fn}
	q.nextSeq++
	heap.Push(q, e)
	return e
}

func (q *timerQueue) cancel(e *timerEntry) {
	e.cancelled = true
}

// nextDeadline reports how long until the nearest uncancelled timer fires,
// or -1 if there are none (the reactor then polls with no timeout bound).
func (q *timerQueue) nextDeadline(now time.Time) time.Duration {
	for q.Len() > 0 && q.entries[0].cancelled {
		heap.Pop(q)
	}
	if q.Len() == 0 {
		return -1
	}
	d := q.entries[0].deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// runExpired fires every timer whose deadline has passed, in deadline order.
func (q *timerQueue) runExpired(now time.Time) {
	for q.Len() > 0 {
		top := q.entries[0]
		if top.cancelled {
			heap.Pop(q)
			continue
		}
		if top.deadline.After(now) {
			return
		}
		heap.Pop(q)
		top.fn()
	}
}
