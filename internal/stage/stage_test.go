package stage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfhead/meridian/internal/proto"
)

type collector struct {
	mu   sync.Mutex
	seen []proto.Message
}

func (c *collector) Handle(msg proto.Message) {
	c.mu.Lock()
	c.seen = append(c.seen, msg)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func waitForCount(t *testing.T, c *collector, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.count() >= n }, time.Second, 2*time.Millisecond)
}

// TestStageIsolatedShape is the ShareQueue=false/ShareHandler=false shape:
// every worker gets its own queue and handler instance.
func TestStageIsolatedShape(t *testing.T) {
	var collectors []*collector
	var mu sync.Mutex
	s, err := New("isolated", Config{
		WorkerCount: 2,
		QueueSize:   8,
		NewHandler: func() Handler {
			c := &collector{}
			mu.Lock()
			collectors = append(collectors, c)
			mu.Unlock()
			return c
		},
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.True(t, s.Send(proto.Message{CorrelationID: 0}))
	require.True(t, s.Send(proto.Message{CorrelationID: 2}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return collectors[0].count()+collectors[1].count() == 2
	}, time.Second, 2*time.Millisecond)
}

// TestStageSharedHandlerShape is the ShareHandler=true shape: one Handler
// instance receives messages from every worker's own queue.
func TestStageSharedHandlerShape(t *testing.T) {
	shared := &collector{}
	s, err := New("shared-handler", Config{
		WorkerCount:  3,
		QueueSize:    8,
		ShareHandler: true,
		NewHandler:   func() Handler { return shared },
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	for i := uint64(0); i < 6; i++ {
		require.True(t, s.Send(proto.Message{CorrelationID: i}))
	}
	waitForCount(t, shared, 6)
}

// TestStagePriorityPrecedence verifies priority precedence: a
// priority message queued behind a backlog of normal messages is still
// handled before them.
func TestStagePriorityPrecedence(t *testing.T) {
	var mu sync.Mutex
	var order []uint64
	s, err := New("priority", Config{
		WorkerCount: 1,
		QueueSize:   16,
		NewHandler: func() Handler {
			return HandlerFunc(func(m proto.Message) {
				mu.Lock()
				order = append(order, m.CorrelationID)
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
			})
		},
	})
	require.NoError(t, err)

	// Queue normal work before starting the worker so it is waiting when
	// the priority message arrives.
	require.True(t, s.Send(proto.Message{CorrelationID: 100}))
	require.True(t, s.SendPriority(proto.Message{CorrelationID: 1}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{1, 100}, order)
}

// TestStageSendFalseOnFullQueue is the lossless-back-pressure property: Send
// returns false rather than dropping when the target queue is full.
func TestStageSendFalseOnFullQueue(t *testing.T) {
	s, err := New("full", Config{
		WorkerCount: 1,
		QueueSize:   2,
		NewHandler:  func() Handler { return HandlerFunc(func(proto.Message) {}) },
	})
	require.NoError(t, err)
	// Do not Start: nothing drains the queue, so it fills deterministically.

	require.True(t, s.Send(proto.Message{CorrelationID: 0}))
	full := false
	for i := 0; i < 4; i++ {
		if !s.Send(proto.Message{CorrelationID: uint64(i + 1)}) {
			full = true
			break
		}
	}
	require.True(t, full, "expected Send to report false once the queue filled")
}
