// Package sequencer implements the bounded lock-free ring-buffer queue
// family: SPSC, SPMC, MPSC, and MPMC, parameterised by cursor cardinality
// and wait strategy, as specified for the Ring-Buffer Sequencer (C1).
//
// Geometry is a configuration-time choice (Config picks the cursor kinds),
// not a runtime-polymorphic one: once built, a Sequencer's Push/Pop never
// branch on cardinality again, preserving the lock-free fast path.
package sequencer

import (
	"math/bits"
	"time"

	"code.hybscloud.com/atomix"
)

func durationMs(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

const (
	flagEmpty    uint32 = 0
	flagOccupied uint32 = 1
)

type bufferItem[T any] struct {
	flag  atomix.Uint32
	value T
}

// Cardinality selects which cursor implementation backs the producer or
// consumer side of a Sequencer.
type Cardinality uint8

const (
	// Single means exactly one goroutine ever advances this cursor.
	Single Cardinality = iota
	// MultiVolatile means multiple goroutines advance this cursor via an
	// optimistic single-attempt CAS per retry-loop iteration.
	MultiVolatile
	// MultiCAS means multiple goroutines advance this cursor via
	// guaranteed-progress CAS retry.
	MultiCAS
)

// Config parameterises a Sequencer at construction time.
type Config struct {
	// Size must be a power of two. Size == 1 degenerates to a one-slot
	// rendezvous queue.
	Size uint64
	// Producer and Consumer select the cursor cardinality on each side.
	Producer Cardinality
	Consumer Cardinality
	// Wait governs Pop's blocking behaviour. Defaults to NoWaitStrategy.
	Wait WaitStrategy
}

// Sequencer is a bounded ring-buffer queue of T. The zero value is not
// usable; construct with New.
type Sequencer[T any] struct {
	ring []bufferItem[T]
	mask uint64

	producer cursor
	consumer cursor
	wait     WaitStrategy
}

func newCursor(c Cardinality) cursor {
	switch c {
	case MultiVolatile:
		return newVolatileCursor()
	case MultiCAS:
		return newCASCursor()
	default:
		return newPlainCursor()
	}
}

// New builds a Sequencer per cfg. Panics if Size is not a power of two or
// is zero, matching the "size must be a power of two" invariant.
func New[T any](cfg Config) *Sequencer[T] {
	if cfg.Size == 0 || bits.OnesCount64(cfg.Size) != 1 {
		panic("sequencer: size must be a power of two")
	}
	wait := cfg.Wait
	if wait == nil {
		wait = NoWaitStrategy{}
	}
	return &Sequencer[T]{
		ring:     make([]bufferItem[T], cfg.Size),
		mask:     cfg.Size - 1,
		producer: newCursor(cfg.Producer),
		consumer: newCursor(cfg.Consumer),
		wait:     wait,
	}
}

// Push enqueues value. It never blocks: on a full queue it returns false
// immediately and the caller applies back-pressure (Send
// contract). No data is lost without an explicit false return.
func (s *Sequencer[T]) Push(value T) bool {
	var producerSeq uint64
	var item *bufferItem[T]

	for {
		producerSeq = s.producer.load()
		item = &s.ring[(producerSeq+1)&s.mask]
		if item.flag.LoadAcquire() != flagEmpty {
			return false
		}
		if s.producer.trySet(producerSeq, producerSeq+1) {
			break
		}
	}

	item.value = value
	item.flag.StoreRelease(flagOccupied)
	s.wait.Notify()
	return true
}

// Pop dequeues the next value in FIFO (per-producer) order. If the queue is
// empty, it waits according to the configured WaitStrategy: NoWaitStrategy
// returns false immediately; ConditionStrategy waits for at most timeoutMs
// (timeoutMs == 0 waits indefinitely for a Push); BusyLoopStrategy spins
// until a value arrives, whatever timeoutMs is.
func (s *Sequencer[T]) Pop(timeoutMs uint32) (T, bool) {
	var zero T
	var consumerSeq uint64
	var item *bufferItem[T]

	for {
		consumerSeq = s.consumer.load()
		item = &s.ring[(consumerSeq+1)&s.mask]
		if item.flag.LoadAcquire() != flagOccupied {
			var woken bool
			if timeoutMs == 0 {
				woken = s.wait.Wait()
			} else {
				woken = s.wait.TimedWait(durationMs(timeoutMs))
			}
			if woken {
				continue
			}
			return zero, false
		}
		if s.consumer.trySet(consumerSeq, consumerSeq+1) {
			break
		}
	}

	value := item.value
	var cleared T
	item.value = cleared
	item.flag.StoreRelease(flagEmpty)
	return value, true
}

// Size is a best-effort snapshot of producer-minus-consumer. It is not a
// synchronisation point and may transiently read stale halves; treat it as
// an estimate, never an exact count.
func (s *Sequencer[T]) Size() uint64 {
	p := s.producer.load()
	c := s.consumer.load()
	if p >= c {
		return p - c
	}
	return 0
}

// Cap returns the configured capacity.
func (s *Sequencer[T]) Cap() uint64 {
	return s.mask + 1
}

// WouldBlock reports whether Pop can block on this Sequencer's wait
// strategy.
func (s *Sequencer[T]) WouldBlock() bool {
	return s.wait.WouldBlock()
}
