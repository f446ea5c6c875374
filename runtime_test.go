//go:build linux

package meridian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfhead/meridian/internal/coro"
	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/proto"
	"github.com/wolfhead/meridian/internal/rterrors"
	"github.com/wolfhead/meridian/internal/runtimecfg"
	"github.com/wolfhead/meridian/internal/stage"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(runtimecfg.Default())
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	t.Cleanup(func() { rt.Stop() })
	return rt
}

// TestEchoRoundTrip verifies an echo round trip end to end: a client request is dispatched
// through a stage worker and its reply delivered back to the originating
// task.
func TestEchoRoundTrip(t *testing.T) {
	rt := newRuntime(t)

	err := rt.RegisterService("echo", "meridian://127.0.0.1:0", ServiceHandlerFunc(
		func(task *coro.Task, msg proto.Message) ([]byte, error) {
			return msg.Payload, nil
		},
	), stage.Config{WorkerCount: 2})
	require.NoError(t, err)

	addr := rt.testListenerAddr(t, "echo")

	sched := coro.New()
	ch, err := rt.DialClient("echo", "meridian://"+addr, sched)
	require.NoError(t, err)
	require.Eventually(t, ch.IsConnected, time.Second, 5*time.Millisecond)

	result := make(chan struct {
		msg proto.Message
		err error
	}, 1)
	sched.Spawn(func(task *coro.Task) {
		msg, err := ch.SendReceive(task, time.Second, []byte("ping"))
		result <- struct {
			msg proto.Message
			err error
		}{msg, err}
	}, iodesc.Descriptor{})

	got := <-result
	require.NoError(t, got.err)
	require.Equal(t, []byte("ping"), got.msg.Payload)
}

// TestSendReceiveTimesOutAgainstSlowService verifies that a client
// suspended in SendReceive against a service that does not reply within the
// client's deadline is resumed with a Timeout error, not left hanging.
func TestSendReceiveTimesOutAgainstSlowService(t *testing.T) {
	rt := newRuntime(t)

	err := rt.RegisterService("blackhole", "meridian://127.0.0.1:0", ServiceHandlerFunc(
		func(task *coro.Task, msg proto.Message) ([]byte, error) {
			time.Sleep(3 * time.Second) // outlives the client's own timeout below
			return msg.Payload, nil
		},
	), stage.Config{WorkerCount: 1})
	require.NoError(t, err)

	addr := rt.testListenerAddr(t, "blackhole")

	sched := coro.New()
	ch, err := rt.DialClient("blackhole", "meridian://"+addr, sched)
	require.NoError(t, err)
	require.Eventually(t, ch.IsConnected, time.Second, 5*time.Millisecond)

	result := make(chan error, 1)
	sched.Spawn(func(task *coro.Task) {
		_, err := ch.SendReceive(task, 100*time.Millisecond, []byte("ping"))
		result <- err
	}, iodesc.Descriptor{})

	select {
	case err := <-result:
		require.Error(t, err)
		require.True(t, rterrors.IsCode(err, rterrors.CodeTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("SendReceive did not time out")
	}
}

// TestStageQueueFullRejectsRequest verifies that once a stage's
// queue is saturated, Send reports back pressure instead of silently
// dropping or blocking forever.
func TestStageQueueFullRejectsRequest(t *testing.T) {
	s, err := stage.New("full", stage.Config{
		WorkerCount: 1,
		QueueSize:   1,
		NewHandler: func() stage.Handler {
			return stage.HandlerFunc(func(msg proto.Message) { time.Sleep(50 * time.Millisecond) })
		},
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	ok := true
	for i := 0; i < 100 && ok; i++ {
		ok = s.Send(proto.Message{CorrelationID: uint64(i)})
	}
	require.False(t, ok, "expected Send to eventually report a full queue")
}

// testListenerAddr returns the resolved address of the first listener
// RegisterService opened (it opens it before returning, so no wait is
// needed); service is used only in the failure message. Tests register one
// service each on port 0 and need the OS-assigned port back.
func (rt *Runtime) testListenerAddr(t *testing.T, service string) string {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, ln := range rt.listeners {
		return ln.Addr().String()
	}
	t.Fatalf("no listener registered for service %q", service)
	return ""
}
