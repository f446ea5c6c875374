// Package client implements the client side of the request router: a
// logical service name resolves to a pool of Channels, each owning one
// connection and its own correlation-key -> suspended-task table, with
// bounded exponential-backoff reconnection driven by reactor timers.
package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cloudwego/gopkg/bufiox"

	"github.com/wolfhead/meridian/internal/codec"
	"github.com/wolfhead/meridian/internal/coro"
	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/logging"
	"github.com/wolfhead/meridian/internal/netbuf"
	"github.com/wolfhead/meridian/internal/proto"
	"github.com/wolfhead/meridian/internal/reactor"
	"github.com/wolfhead/meridian/internal/rterrors"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Channel owns one connection to a service endpoint, reconnecting with
// bounded exponential backoff whenever it drops. Start must be called
// before SendReceive; SendReceive fails fast with a Transport error if
// called before Start or while disconnected, rather than silently queuing
// against a connection that doesn't exist yet.
type Channel struct {
	endpoint string
	dial     func() (net.Conn, error)
	codec    codec.Codec
	sched    *coro.Scheduler
	reactor  *reactor.Reactor
	registry *iodesc.Registry
	log      *logging.Logger

	started atomic.Bool
	closing atomic.Bool

	mu         sync.Mutex
	conn       net.Conn
	connReader *reactor.ConnReader
	writer     bufiox.Writer
	connected  bool
	descriptor iodesc.Descriptor
	backoff    time.Duration

	nextCorrelationID atomic.Uint64

	inflightMu sync.Mutex
	inflight   map[uint64]uint64 // correlation id -> task id
}

// NewChannel builds a Channel. dial opens a fresh net.Conn to endpoint;
// callers typically pass net.Dial bound to a parsed <scheme>://host:port
// endpoint (scheme selects codec via the registry upstream of this call).
func NewChannel(endpoint string, dial func() (net.Conn, error), c codec.Codec, sched *coro.Scheduler, r *reactor.Reactor, registry *iodesc.Registry) *Channel {
	return &Channel{
		endpoint: endpoint,
		dial:     dial,
		codec:    c,
		sched:    sched,
		reactor:  r,
		registry: registry,
		log:      logging.Default().With("endpoint", endpoint),
		backoff:  initialBackoff,
		inflight: make(map[uint64]uint64),
	}
}

// Start dials the endpoint, registers the connection's reader with the
// channel's reactor, and arms automatic reconnection for future drops. Safe
// to call once per Channel.
func (c *Channel) Start() error {
	c.started.Store(true)
	return c.connect()
}

func (c *Channel) connect() error {
	conn, err := c.dial()
	if err != nil {
		c.log.Warn("dial failed", "error", err)
		c.scheduleReconnect()
		return rterrors.Transport("connect", iodesc.Descriptor{}, err.Error())
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = bufiox.NewDefaultWriter(conn)
	c.connected = true
	c.descriptor = c.registry.Allocate(iodesc.KindClientChannel, c)
	c.backoff = initialBackoff
	c.mu.Unlock()

	c.log.Info("connected")

	sc, ok := conn.(syscall.Conn)
	if !ok {
		c.handleDisconnect(fmt.Errorf("client: connection has no raw fd"))
		return nil
	}

	buf := netbuf.New()
	var cr *reactor.ConnReader
	onData := func(p []byte) {
		buf.Feed(p)
		for {
			msg, err := c.codec.Decode(buf)
			if err != nil {
				if err == codec.ErrNeedMore {
					return
				}
				cr.Close()
				c.handleDisconnect(err)
				return
			}
			c.deliver(msg)
		}
	}
	onClose := func(cause error) {
		if cause == nil {
			cause = io.EOF
		}
		c.handleDisconnect(cause)
	}

	cr, err = reactor.NewConnReader(sc, c.reactor, onData, onClose)
	if err != nil {
		c.handleDisconnect(err)
		return nil
	}
	c.mu.Lock()
	c.connReader = cr
	c.mu.Unlock()
	return nil
}

// Close stops reconnection attempts and closes the current connection.
func (c *Channel) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	conn := c.conn
	cr := c.connReader
	c.connected = false
	c.mu.Unlock()
	if cr != nil {
		cr.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) deliver(msg proto.Message) {
	c.inflightMu.Lock()
	taskID, ok := c.inflight[msg.CorrelationID]
	if ok {
		delete(c.inflight, msg.CorrelationID)
	}
	c.inflightMu.Unlock()
	if !ok {
		c.log.Warn("response for unknown correlation id", "correlation_id", msg.CorrelationID)
		return
	}
	c.sched.Deliver(taskID, msg)
}

func (c *Channel) handleDisconnect(cause error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if !c.descriptor.Zero() {
		c.registry.Release(c.descriptor)
	}
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	c.log.Warn("disconnected", "cause", cause)

	c.inflightMu.Lock()
	c.inflight = make(map[uint64]uint64)
	c.inflightMu.Unlock()

	// Connection-loss fan-out: every task suspended in SendReceive against
	// this channel is resumed now with a Transport error instead of
	// waiting out its individual timeout.
	c.sched.CancelAll(rterrors.Transport("readLoop", iodesc.Descriptor{}, "connection lost: "+cause.Error()))

	if !c.closing.Load() {
		c.scheduleReconnect()
	}
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	d := c.backoff
	c.backoff *= 2
	if c.backoff > maxBackoff {
		c.backoff = maxBackoff
	}
	c.mu.Unlock()

	c.reactor.Post(func() {
		c.reactor.StartTimer(d, func() {
			if c.closing.Load() {
				return
			}
			if err := c.connect(); err != nil {
				c.log.Debug("reconnect attempt failed", "error", err, "next_backoff", d)
			}
		})
	})
}

// IsConnected reports whether the channel currently has a live connection.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendReceive sends payload as a request and suspends task until a matching
// response arrives or d elapses. It fails fast — without touching the
// network — if Start has not been called or the channel is currently
// disconnected.
func (c *Channel) SendReceive(task *coro.Task, d time.Duration, payload []byte) (proto.Message, error) {
	if !c.started.Load() {
		return proto.Message{}, rterrors.Transport("SendReceive", iodesc.Descriptor{}, "channel not started")
	}
	c.mu.Lock()
	connected := c.connected
	writer := c.writer
	c.mu.Unlock()
	if !connected {
		return proto.Message{}, rterrors.Transport("SendReceive", iodesc.Descriptor{}, "channel disconnected")
	}

	correlationID := c.nextCorrelationID.Add(1)
	c.inflightMu.Lock()
	c.inflight[correlationID] = task.ID()
	c.inflightMu.Unlock()

	payloadResult, err := task.SendReceive(c.sched, d, func() error {
		req := proto.Message{Direction: proto.DirectionRequest, CorrelationID: correlationID, Payload: payload}
		return c.codec.Encode(req, writer)
	})

	c.inflightMu.Lock()
	delete(c.inflight, correlationID)
	c.inflightMu.Unlock()

	if err != nil {
		return proto.Message{}, err
	}
	msg, ok := payloadResult.(proto.Message)
	if !ok {
		return proto.Message{}, fmt.Errorf("client: unexpected resume payload type %T", payloadResult)
	}
	return msg, nil
}
