// Package stage implements staged worker-pool dispatch: a pool of workers,
// each draining a priority queue before its normal queue, deployed in one
// of four shapes depending on whether workers share a queue and/or a
// handler instance.
package stage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wolfhead/meridian/internal/logging"
	"github.com/wolfhead/meridian/internal/proto"
	"github.com/wolfhead/meridian/internal/sequencer"
)

// popTimeoutMs: a worker idle-polls its normal queue in 50ms slices so it
// keeps re-checking its priority queue and shutdown flag without spinning.
const popTimeoutMs = 50

// Handler processes one dispatched Message. Implementations run on a
// worker's own goroutine and must not block indefinitely — a handler that
// needs to wait on I/O should suspend via the coroutine scheduler instead.
// Handle owns msg once it returns control to Handle's caller; if the
// handler hands msg off to another goroutine (a spawned coroutine task,
// say) it is responsible for calling msg.Release() itself once done with
// it — the worker loop no longer does this automatically, since Handle
// returning is no longer synonymous with "done with msg".
type Handler interface {
	Handle(msg proto.Message)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(msg proto.Message)

func (f HandlerFunc) Handle(msg proto.Message) { f(msg) }

// HandlerFactory builds one Handler instance, called once per worker unless
// Config.ShareHandler is set, in which case it is called exactly once and
// the same Handler instance is given to every worker.
type HandlerFactory func() Handler

// Config parameterises a Stage's deployment shape. The four combinations of
// ShareQueue x ShareHandler are the deployment matrix:
//
//	ShareQueue=false, ShareHandler=false: each worker has its own queue pair
//	  and its own Handler instance (maximum isolation).
//	ShareQueue=true,  ShareHandler=false: workers compete for one shared
//	  queue pair but each still has its own Handler instance (state never
//	  crosses workers, work does).
//	ShareQueue=false, ShareHandler=true: each worker has its own queue pair
//	  but all workers call into the same Handler instance (the Handler must
//	  itself be concurrency-safe).
//	ShareQueue=true,  ShareHandler=true: a classic shared-everything worker
//	  pool.
type Config struct {
	WorkerCount  int
	QueueSize    uint64
	ShareQueue   bool
	ShareHandler bool
	NewHandler   HandlerFactory
	// HashMessage selects which worker owns msg when queues are not
	// shared. Defaults to hashing Message.CorrelationID.
	HashMessage func(msg proto.Message) uint64
}

type workerQueues struct {
	normal   *sequencer.Sequencer[proto.Message]
	priority *sequencer.Sequencer[proto.Message]
}

func newQueues(size uint64, shared bool) *workerQueues {
	// Send may be called from any goroutine, so every queue is multi-producer;
	// a shared queue is also popped by every worker, so it is multi-consumer.
	producer := sequencer.MultiCAS
	consumer := sequencer.Single
	if shared {
		consumer = sequencer.MultiCAS
	}
	wait := sequencer.NewConditionStrategy()
	return &workerQueues{
		normal: sequencer.New[proto.Message](sequencer.Config{
			Size: size, Producer: producer, Consumer: consumer, Wait: wait,
		}),
		priority: sequencer.New[proto.Message](sequencer.Config{
			Size: size, Producer: producer, Consumer: consumer,
		}),
	}
}

// Worker is one goroutine in a Stage's pool, draining its priority queue
// ahead of its normal queue (priority precedence).
type Worker struct {
	id      int
	queues  *workerQueues
	handler Handler
	stage   *Stage

	wg sync.WaitGroup
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		if w.stage.isClosing() {
			return
		}
		if msg, ok := w.queues.priority.Pop(0); ok {
			w.handler.Handle(msg)
			continue
		}
		if msg, ok := w.queues.normal.Pop(popTimeoutMs); ok {
			w.handler.Handle(msg)
			continue
		}
	}
}

// Stage is a deployed pool of Workers per Config.
type Stage struct {
	name    string
	cfg     Config
	workers []*Worker
	log     *logging.Logger

	closing atomic.Int32
}

func New(name string, cfg Config) (*Stage, error) {
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("stage %s: worker count must be >= 1", name)
	}
	if cfg.NewHandler == nil {
		return nil, fmt.Errorf("stage %s: NewHandler is required", name)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	if cfg.HashMessage == nil {
		cfg.HashMessage = func(m proto.Message) uint64 { return m.CorrelationID }
	}

	s := &Stage{name: name, cfg: cfg, log: logging.Default().With("stage", name)}

	var sharedQueues *workerQueues
	if cfg.ShareQueue {
		sharedQueues = newQueues(cfg.QueueSize, true)
	}

	var sharedHandler Handler
	if cfg.ShareHandler {
		sharedHandler = cfg.NewHandler()
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		q := sharedQueues
		if q == nil {
			q = newQueues(cfg.QueueSize, false)
		}
		h := sharedHandler
		if h == nil {
			h = cfg.NewHandler()
		}
		w := &Worker{id: i, queues: q, handler: h, stage: s}
		s.workers = append(s.workers, w)
	}
	return s, nil
}

// Start launches every worker's goroutine.
func (s *Stage) Start() {
	for _, w := range s.workers {
		w.wg.Add(1)
		go w.run()
	}
}

func (s *Stage) targetWorker(msg proto.Message) *Worker {
	idx := int(s.cfg.HashMessage(msg) % uint64(len(s.workers)))
	return s.workers[idx]
}

// Send enqueues msg on its normal queue, routed by HashMessage when queues
// are not shared. Returns false if the target queue is full — back
// pressure, never a silent drop (the lossless-back-pressure
// property).
func (s *Stage) Send(msg proto.Message) bool {
	return s.targetWorker(msg).queues.normal.Push(msg)
}

// SendPriority enqueues msg on its priority queue, which every worker drains
// ahead of its normal queue.
func (s *Stage) SendPriority(msg proto.Message) bool {
	return s.targetWorker(msg).queues.priority.Push(msg)
}

func (s *Stage) isClosing() bool {
	return s.closing.Load() != 0
}

// Stop signals every worker to exit after its current Pop and waits for all
// of them to return. There is no drain protocol: queued messages that have
// not yet been popped are abandoned — there is no drain-on-stop
// design note.
func (s *Stage) Stop() {
	s.closing.Store(1)
	for _, w := range s.workers {
		w.wg.Wait()
	}
}

// Wait blocks until every worker goroutine has returned, without itself
// requesting shutdown (use after Stop, or to join workers a caller has
// already signalled some other way).
func (s *Stage) Wait() {
	for _, w := range s.workers {
		w.wg.Wait()
	}
}

// WorkerCount reports the configured pool size.
func (s *Stage) WorkerCount() int { return len(s.workers) }
