package sequencer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequencerSPSCBasic(t *testing.T) {
	s := New[int](Config{Size: 4})

	require.True(t, s.Push(1))
	require.True(t, s.Push(2))

	v, ok := s.Pop(0)
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = s.Pop(0)
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestSequencerRejectsNonPowerOfTwoSize(t *testing.T) {
	require.Panics(t, func() {
		New[int](Config{Size: 3})
	})
}

func TestSequencerSingleSlotRendezvous(t *testing.T) {
	s := New[int](Config{Size: 1})
	require.True(t, s.Push(7))
	require.False(t, s.Push(8), "single slot queue must reject a second push before the first is popped")

	v, ok := s.Pop(0)
	require.True(t, ok)
	require.Equal(t, 7, v)
	require.True(t, s.Push(9))
}

// TestSequencerConservation verifies queue conservation: at no point does
// the number of occupied slots exceed capacity, and every successful push is
// observed by exactly one successful pop.
func TestSequencerConservation(t *testing.T) {
	const capacity = 64
	const producers = 8
	const perProducer = 500

	s := New[int](Config{
		Size:     capacity,
		Producer: MultiCAS,
		Consumer: Single,
	})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !s.Push(id*perProducer + i) {
					// back off and retry: producers never silently drop.
				}
			}
		}(p)
	}

	received := make(map[int]bool)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	total := producers * perProducer
	count := 0
	for count < total {
		v, ok := s.Pop(50)
		if !ok {
			select {
			case <-done:
				if s.Size() == 0 {
					t.Fatalf("producers finished but only popped %d/%d items", count, total)
				}
			default:
			}
			continue
		}
		mu.Lock()
		require.False(t, received[v], "value %d observed twice", v)
		received[v] = true
		mu.Unlock()
		count++
	}

	require.Equal(t, total, len(received))
	require.LessOrEqual(t, s.Size(), uint64(capacity))
}

func TestSequencerFIFOSingleProducer(t *testing.T) {
	s := New[int](Config{Size: 8})
	for i := 0; i < 5; i++ {
		require.True(t, s.Push(i))
	}
	for i := 0; i < 5; i++ {
		v, ok := s.Pop(0)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestSequencerPopTimesOutOnEmpty(t *testing.T) {
	s := New[int](Config{Size: 4, Wait: NewConditionStrategy()})
	start := time.Now()
	_, ok := s.Pop(20)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSequencerMPMC(t *testing.T) {
	s := New[int](Config{Size: 128, Producer: MultiCAS, Consumer: MultiCAS})

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for !s.Push(id*1000 + i) {
				}
			}
		}(p)
	}

	var consumed int64
	var cmu sync.Mutex
	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				cmu.Lock()
				if consumed >= 400 {
					cmu.Unlock()
					return
				}
				cmu.Unlock()
				if _, ok := s.Pop(10); ok {
					cmu.Lock()
					consumed++
					cmu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	cwg.Wait()
	require.Equal(t, int64(400), consumed)
}
