package coro

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/rterrors"
)

func TestSendReceiveDeliveredResponse(t *testing.T) {
	s := New()
	results := make(chan any, 1)

	var id uint64
	var ready sync.WaitGroup
	ready.Add(1)

	s.Spawn(func(task *Task) {
		id = task.ID()
		ready.Done()
		payload, err := task.SendReceive(s, time.Second, func() error { return nil })
		results <- struct {
			payload any
			err     error
		}{payload, err}
	}, iodesc.Descriptor{})

	ready.Wait()
	// The task arms itself inside SendReceive, just after ready fires, so
	// Deliver may report false until then.
	require.Eventually(t, func() bool { return s.Deliver(id, "pong") }, time.Second, time.Millisecond)

	got := (<-results).(struct {
		payload any
		err     error
	})
	require.NoError(t, got.err)
	require.Equal(t, "pong", got.payload)
}

// TestSendReceiveTimesOutAtMostOnce is the at-most-once resumption property
// when nothing ever delivers a response, the timeout resumes the
// task exactly once and a late, spurious Deliver for the same id is a no-op.
func TestSendReceiveTimesOutAtMostOnce(t *testing.T) {
	s := New()
	results := make(chan error, 1)

	var id uint64
	var ready sync.WaitGroup
	ready.Add(1)

	s.Spawn(func(task *Task) {
		id = task.ID()
		ready.Done()
		_, err := task.SendReceive(s, 20*time.Millisecond, func() error { return nil })
		results <- err
	}, iodesc.Descriptor{})

	ready.Wait()
	err := <-results
	require.True(t, rterrors.IsCode(err, rterrors.CodeTimeout))

	// SendReceive has returned, so the task is no longer armed (and soon
	// unregisters itself); a late Deliver for the same id must not panic or
	// resume anything.
	require.Eventually(t, func() bool { return !s.Deliver(id, "too late") }, time.Second, time.Millisecond)
}

func TestCancelAllResumesEverySuspendedTask(t *testing.T) {
	s := New()
	const n = 5
	results := make(chan error, n)
	var ready sync.WaitGroup
	ready.Add(n)

	for i := 0; i < n; i++ {
		s.Spawn(func(task *Task) {
			ready.Done()
			_, err := task.SendReceive(s, time.Minute, func() error { return nil })
			results <- err
		}, iodesc.Descriptor{})
	}
	ready.Wait()
	require.Eventually(t, func() bool { return s.ActiveCount() == n }, time.Second, time.Millisecond)

	reason := rterrors.Transport("reconnect", iodesc.Descriptor{}, "connection lost")
	s.CancelAll(reason)

	for i := 0; i < n; i++ {
		err := <-results
		require.True(t, rterrors.IsCode(err, rterrors.CodeTransport))
	}
}

func TestYieldResumesWithoutBlockingForever(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Spawn(func(task *Task) {
		task.Yield(s)
		close(done)
	}, iodesc.Descriptor{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("yielded task never resumed")
	}
}
