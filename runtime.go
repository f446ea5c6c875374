// Package meridian is the main API for embedding the network-service
// runtime: a reactor fleet driving connections, a staged worker pool
// dispatching decoded messages to registered service handlers, and a
// client router for making outbound requests to other services. Bootstrap
// order is fleet -> listener -> stage -> ready.
package meridian

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cloudwego/gopkg/bufiox"

	"github.com/wolfhead/meridian/internal/client"
	"github.com/wolfhead/meridian/internal/codec"
	"github.com/wolfhead/meridian/internal/coro"
	"github.com/wolfhead/meridian/internal/iodesc"
	"github.com/wolfhead/meridian/internal/logging"
	"github.com/wolfhead/meridian/internal/netbuf"
	"github.com/wolfhead/meridian/internal/proto"
	"github.com/wolfhead/meridian/internal/reactor"
	"github.com/wolfhead/meridian/internal/runtimecfg"
	"github.com/wolfhead/meridian/internal/stage"
)

// ServiceHandler processes a decoded request Message and returns the
// response payload to write back, the handler contract RegisterService
// expects. task is the coroutine this invocation runs on — a handler that
// needs to make an outbound request dials a Channel on
// Runtime.InboundScheduler and calls SendReceive(task, ...), suspending this
// task (not its worker thread) until the reply arrives.
type ServiceHandler interface {
	Handle(task *coro.Task, msg proto.Message) (response []byte, err error)
}

// ServiceHandlerFunc adapts a function to ServiceHandler.
type ServiceHandlerFunc func(task *coro.Task, msg proto.Message) ([]byte, error)

func (f ServiceHandlerFunc) Handle(task *coro.Task, msg proto.Message) ([]byte, error) {
	return f(task, msg)
}

// Runtime is the embeddable network-service runtime core: RegisterService
// opens a listener and starts its dispatch stage, Start launches the reactor
// fleet, Stop tears everything down, and Wait blocks until Stop completes
// the shutdown. A poller error is logged by its reactor and does not stop
// the runtime, so Wait returns only after an explicit Stop.
type Runtime struct {
	cfg      *runtimecfg.Config
	fleet    *reactor.Fleet
	registry *iodesc.Registry
	codecs   *codec.Registry
	router   *client.Router
	log      *logging.Logger
	metrics  *Metrics

	// inboundSched owns every coroutine task spawned to run a dispatched
	// service handler, shared across all registered services so a handler
	// that calls DialClient(..., rt.InboundScheduler()) gets a Channel whose
	// SendReceive suspends the very task the worker spawned for it.
	inboundSched *coro.Scheduler
	nextReactor  atomic.Uint32

	mu        sync.Mutex
	services  map[string]*stage.Stage
	listeners []net.Listener

	stopped chan struct{}
	stopErr error
}

// New builds a Runtime from cfg. It opens no sockets itself; listeners are
// opened by RegisterService.
func New(cfg *runtimecfg.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = runtimecfg.Default()
	}
	fleet, err := reactor.NewFleet(cfg.ReactorCount, nil)
	if err != nil {
		return nil, fmt.Errorf("meridian: %w", err)
	}

	codecs := codec.NewRegistry()
	codecs.Register("meridian", codec.LengthPrefixed{})

	return &Runtime{
		cfg:          cfg,
		fleet:        fleet,
		registry:     iodesc.NewRegistry(),
		codecs:       codecs,
		router:       client.NewRouter(),
		log:          logging.Default(),
		metrics:      NewMetrics(),
		inboundSched: coro.New(),
		services:     make(map[string]*stage.Stage),
		stopped:      make(chan struct{}),
	}, nil
}

// InboundScheduler returns the coroutine scheduler that owns every task
// spawned to run a dispatched service handler. A handler that wants to
// issue its own outbound requests should dial its Channel with this
// scheduler so SendReceive suspends the same task the worker spawned.
func (rt *Runtime) InboundScheduler() *coro.Scheduler { return rt.inboundSched }

// RegisterCodec wires scheme to codec, overriding the default
// length-prefixed wire format for endpoints using that scheme.
func (rt *Runtime) RegisterCodec(scheme string, c codec.Codec) {
	rt.codecs.Register(scheme, c)
}

// RegisterService deploys a Stage named name backed by handler, listening
// on endpoint (<scheme>://host:port). stageCfg controls the worker-pool
// deployment shape (share_queue x share_handler); its NewHandler field is
// overwritten by this call since the handler comes from the ServiceHandler
// argument, not from stage.Config directly. A zero QueueSize takes the
// Runtime's configured QueueSize.
func (rt *Runtime) RegisterService(name, endpoint string, handler ServiceHandler, stageCfg stage.Config) error {
	scheme, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return err
	}
	c, ok := rt.codecs.Lookup(scheme)
	if !ok {
		return fmt.Errorf("meridian: no codec registered for scheme %q", scheme)
	}
	if stageCfg.QueueSize == 0 {
		stageCfg.QueueSize = rt.cfg.QueueSize
	}

	stageCfg.NewHandler = func() stage.Handler {
		return stage.HandlerFunc(func(msg proto.Message) {
			// Spawning hands msg off to its own task goroutine and returns
			// immediately, so the worker loops straight back to Pop instead
			// of blocking for the handler's full duration — the point of
			// running handlers as coroutines rather than inline.
			rt.inboundSched.Spawn(func(task *coro.Task) {
				defer msg.Release()
				resp, err := handler.Handle(task, msg)
				if err != nil {
					rt.log.Warn("service handler error", "service", name, "error", err)
					return
				}
				rt.metrics.RequestsHandled.Add(1)
				if msg.Direction == proto.DirectionOneWay {
					return
				}
				rt.writeReply(msg, resp, c)
			}, msg.Source)
		})
	}
	s, err := stage.New(name, stageCfg)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	rt.services[name] = s
	rt.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("meridian: listen %s: %w", addr, err)
	}
	rt.mu.Lock()
	rt.listeners = append(rt.listeners, ln)
	rt.mu.Unlock()

	s.Start()
	go rt.acceptLoop(name, ln, s, c)
	return nil
}

func (rt *Runtime) acceptLoop(service string, ln net.Listener, s *stage.Stage, c codec.Codec) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		descriptor := rt.registry.Allocate(iodesc.KindConnection, conn)
		rt.driveConnection(service, conn, descriptor, s, c)
	}
}

// driveConnection registers conn with the reactor its descriptor's slot
// routes to (Fleet.ForSlot — the slot-mod-reactor-count affinity rule) and
// decodes frames from the bytes its ConnReader callback feeds in, rather
// than spinning a dedicated goroutine blocked in net.Conn.Read. Once
// registered, this connection is serviced only by that one reactor's poll
// loop for its whole lifetime.
func (rt *Runtime) driveConnection(service string, conn net.Conn, descriptor iodesc.Descriptor, s *stage.Stage, c codec.Codec) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		rt.log.Warn("connection does not expose a raw fd, dropping", "service", service)
		rt.registry.Release(descriptor)
		_ = conn.Close()
		return
	}

	buf := netbuf.New()
	r := rt.fleet.ForSlot(descriptor.Slot)
	var cr *reactor.ConnReader

	decode := func(p []byte) {
		buf.Feed(p)
		for {
			msg, err := c.Decode(buf)
			if err != nil {
				if err == codec.ErrNeedMore {
					return
				}
				rt.log.Warn("decode error, closing connection", "service", service, "error", err)
				cr.Close()
				rt.registry.Release(descriptor)
				_ = conn.Close()
				return
			}
			msg.Source = descriptor
			msg.Service = service
			if !s.Send(msg) {
				rt.metrics.RequestsRejected.Add(1)
				rt.log.Warn("stage queue full, request dropped", "service", service)
			}
		}
	}

	closed := func(cause error) {
		rt.registry.Release(descriptor)
		_ = conn.Close()
	}

	var err error
	cr, err = reactor.NewConnReader(sc, r, decode, closed)
	if err != nil {
		rt.log.Warn("failed to register connection with reactor", "service", service, "error", err)
		rt.registry.Release(descriptor)
		_ = conn.Close()
	}
}

// writeReply resolves msg.Source back to its net.Conn through the
// descriptor registry and writes the encoded response — the reverse-lookup
// the descriptor registry exists to avoid doing through a raw pointer
// (resolving via the descriptor registry instead of a raw pointer).
func (rt *Runtime) writeReply(msg proto.Message, payload []byte, c codec.Codec) {
	obj, kind, ok := rt.registry.Lookup(msg.Source)
	if !ok || kind != iodesc.KindConnection {
		return
	}
	conn := obj.(net.Conn)
	w := bufiox.NewDefaultWriter(conn)
	if err := c.Encode(msg.Reply(payload), w); err != nil {
		rt.log.Warn("failed to write reply", "error", err)
	}
}

// GetClient returns a client.Channel for the named service, picked round-robin
// from the channels DialClient registered under that name. The channel may
// currently be disconnected, in which case its SendReceive fails fast.
func (rt *Runtime) GetClient(service string) (*client.Channel, error) {
	return rt.router.Pick(service)
}

// DialClient registers a new outbound Channel to endpoint under service,
// starts it, and returns it. sched is the coroutine scheduler tasks calling
// SendReceive on this channel will belong to.
func (rt *Runtime) DialClient(service, endpoint string, sched *coro.Scheduler) (*client.Channel, error) {
	scheme, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	c, ok := rt.codecs.Lookup(scheme)
	if !ok {
		return nil, fmt.Errorf("meridian: no codec registered for scheme %q", scheme)
	}
	// Round-robin across the configured reactor count so outbound channels
	// actually spread across every reactor the fleet started, instead of
	// loading reactor 0 alone.
	slot := rt.nextReactor.Add(1)
	r := rt.fleet.ForSlot(slot)
	ch := client.NewChannel(addr, func() (net.Conn, error) { return net.Dial("tcp", addr) }, c, sched, r, rt.registry)
	if err := ch.Start(); err != nil {
		rt.log.Warn("initial dial failed, will retry in background", "service", service, "error", err)
	}
	rt.router.Register(service, ch)
	return ch, nil
}

// Start launches the reactor fleet. RegisterService may be called before or
// after Start; connections only begin flowing once both the fleet is
// running and at least one listener is registered.
func (rt *Runtime) Start() error {
	rt.fleet.Start()
	return nil
}

// Stop closes every listener and client channel and stops every stage and
// the reactor fleet. Safe to call once.
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	listeners := rt.listeners
	services := rt.services
	rt.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, s := range services {
		s.Stop()
	}
	_ = rt.router.Close()
	rt.fleet.Shutdown()
	close(rt.stopped)
	return rt.stopErr
}

// Wait blocks until Stop has completed.
func (rt *Runtime) Wait() error {
	<-rt.stopped
	return rt.stopErr
}

// Metrics returns this Runtime's metrics collector.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

func splitEndpoint(endpoint string) (scheme, addr string, err error) {
	parts := strings.SplitN(endpoint, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("meridian: malformed endpoint %q, want scheme://host:port", endpoint)
	}
	return parts[0], parts[1], nil
}
