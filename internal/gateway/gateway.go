package gateway

import (
	"container/list"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// DefaultQueueSize is the command queue capacity when none is configured.
const DefaultQueueSize = 4096

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher receives the events of each committed command.
// notify.Router satisfies it.
type Publisher interface {
	Publish(events []notify.Event)
}

// Options configures a Gateway.
type Options struct {
	// QueueSize bounds the command queue. Execute blocks while it is full.
	QueueSize int
}

// workerKey marks contexts handed to commands.
type workerKey struct{}

// Gateway serialises every access to a twin.Registry through one worker
// goroutine.
//
// Commands run one at a time in submission order. Each command gets a fresh
// execution context, a session handle that dies with the command, and an
// event accumulator that is published only if the command succeeds. A
// failing or panicking command is rolled back.
type Gateway struct {
	registry  *twin.Registry
	publisher Publisher
	logger    Logger
	metrics   Metrics

	// mu guards the queue. wake nudges the worker after a push; space is
	// closed and replaced whenever a slot frees up.
	mu       sync.Mutex
	queue    *list.List
	capacity int
	closed   bool
	wake     chan struct{}
	space    chan struct{}

	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	running atomic.Bool
	pending atomic.Int64
}

// New creates a gateway owning registry. publisher may be nil.
func New(registry *twin.Registry, publisher Publisher, opts Options) *Gateway {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Gateway{
		registry:  registry,
		publisher: publisher,
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		queue:     list.New(),
		capacity:  opts.QueueSize,
		wake:      make(chan struct{}, 1),
		space:     make(chan struct{}),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// SetMetrics installs a metrics hook. Call before Start.
func (g *Gateway) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	g.metrics = m
}

// Start launches the worker. The worker stops when ctx is cancelled or Stop
// is called. Calling Start twice is a no-op.
func (g *Gateway) Start(ctx context.Context) {
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	go g.run(ctx)
	g.logger.Info("gateway started", "queue_size", g.capacity)
}

// Stop lets the running command finish, fails every queued command with
// ErrGatewayStopped and waits up to timeout for the worker to exit.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.Load() {
		return ErrNotStarted
	}
	g.stopOnce.Do(func() { close(g.stopping) })

	select {
	case <-g.done:
		g.logger.Info("gateway stopped")
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Pending returns the number of submitted commands not yet finished.
func (g *Gateway) Pending() int {
	return int(g.pending.Load())
}

// Execute submits fn as a command and returns its future immediately,
// unless the queue is full, in which case it blocks until there is room or
// ctx is done.
//
//	f := gateway.Execute(ctx, gw, "read-temp", func(ctx context.Context, tx *gateway.Tx) (float64, error) {
//	    ...
//	})
//	v, err := f.Wait(ctx)
//
// Values from ctx are visible to the command; its cancellation is not, since
// a started command always runs to completion.
func Execute[T any](ctx context.Context, g *Gateway, name string, fn func(ctx context.Context, tx *Tx) (T, error)) *Future[T] {
	if err := ctx.Err(); err != nil {
		return failed[T](g, err)
	}

	f := newFuture[T](g)
	it := &item{
		name: name,
		ctx:  context.WithoutCancel(ctx),
		run: func(ctx context.Context, tx *Tx) (any, error) {
			return fn(ctx, tx)
		},
		finish:   f.complete,
		enqueued: time.Now().UnixNano(),
	}
	f.it = it

	if err := g.enqueue(ctx, it); err != nil {
		return failed[T](g, err)
	}
	return f
}

func (g *Gateway) enqueue(ctx context.Context, it *item) error {
	worker := g.inWorker(ctx)
	for {
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return ErrGatewayStopped
		}
		if g.queue.Len() < g.capacity {
			it.elem = g.queue.PushBack(it)
			depth := g.queue.Len()
			g.pending.Add(1)
			g.mu.Unlock()

			g.metrics.QueueDepth(depth)
			select {
			case g.wake <- struct{}{}:
			default:
			}
			return nil
		}
		if worker {
			// The worker cannot wait for room in its own queue.
			g.mu.Unlock()
			return ErrQueueFull
		}
		space := g.space
		g.mu.Unlock()

		select {
		case <-space:
		case <-ctx.Done():
			return ctx.Err()
		case <-g.stopping:
			return ErrGatewayStopped
		}
	}
}

// remove takes a cancelled item out of the queue. It is a no-op once the
// worker has dequeued the item.
func (g *Gateway) remove(it *item) {
	g.mu.Lock()
	if it.elem == nil {
		g.mu.Unlock()
		return
	}
	g.queue.Remove(it.elem)
	it.elem = nil
	depth := g.queue.Len()
	g.freed()
	g.mu.Unlock()

	g.pending.Add(-1)
	g.metrics.QueueDepth(depth)
}

// freed wakes senders waiting for room. Callers hold mu.
func (g *Gateway) freed() {
	close(g.space)
	g.space = make(chan struct{})
}

// next pops the oldest queued item, or returns nil when the queue is empty.
func (g *Gateway) next() *item {
	g.mu.Lock()
	defer g.mu.Unlock()
	front := g.queue.Front()
	if front == nil {
		return nil
	}
	it, _ := g.queue.Remove(front).(*item)
	it.elem = nil
	g.freed()
	g.metrics.QueueDepth(g.queue.Len())
	return it
}

// inWorker reports whether ctx belongs to a command of this gateway.
func (g *Gateway) inWorker(ctx context.Context) bool {
	owner, _ := ctx.Value(workerKey{}).(*Gateway)
	return owner == g
}

func (g *Gateway) run(ctx context.Context) {
	defer close(g.done)
	for {
		// Stop wins over queued work.
		select {
		case <-g.stopping:
			g.drain()
			return
		default:
		}

		if it := g.next(); it != nil {
			g.execute(it)
			continue
		}

		select {
		case <-ctx.Done():
			g.stopOnce.Do(func() { close(g.stopping) })
			g.drain()
			return
		case <-g.stopping:
			g.drain()
			return
		case <-g.wake:
		}
	}
}

// drain fails every queued command and refuses new ones.
func (g *Gateway) drain() {
	g.mu.Lock()
	g.closed = true
	var queued []*item
	for e := g.queue.Front(); e != nil; e = e.Next() {
		it, _ := e.Value.(*item)
		it.elem = nil
		queued = append(queued, it)
	}
	g.queue.Init()
	g.freed()
	g.mu.Unlock()

	n := 0
	for _, it := range queued {
		g.pending.Add(-1)
		if it.state.CompareAndSwap(statePending, stateDone) {
			it.finish(nil, ErrGatewayStopped)
			n++
		}
	}
	if n > 0 {
		g.logger.Warn("gateway stopped with queued commands", "failed", n)
	}
}

func (g *Gateway) execute(it *item) {
	defer g.pending.Add(-1)
	if !it.state.CompareAndSwap(statePending, stateRunning) {
		return
	}

	started := time.Now()
	g.metrics.CommandStarted(it.name, started.Sub(time.Unix(0, it.enqueued)))

	id := scope.NewExecID()
	ctx := scope.WithExecution(it.ctx, id)
	ctx = context.WithValue(ctx, workerKey{}, g)

	acc := notify.NewAccumulator()
	acc.SetClock(g.registry.Now)
	tx := newTx(ctx, g.registry)

	g.registry.Begin(acc)
	v, err := g.call(ctx, it, tx)
	tx.handle.Invalidate()

	if err != nil {
		g.registry.Rollback()
		acc.Discard()
		g.logger.Debug("command failed", "command", it.name, "exec", id, "error", err)
	} else {
		g.registry.Commit()
		events := acc.Complete()
		if g.publisher != nil && len(events) > 0 {
			g.publisher.Publish(events)
		}
		tx.runHooks(g.logger)
	}

	it.state.Store(stateDone)
	g.metrics.CommandFinished(it.name, time.Since(started), err)
	it.finish(v, err)
}

func (g *Gateway) call(ctx context.Context, it *item, tx *Tx) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("command panicked",
				"command", it.name,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			v, err = nil, fmt.Errorf("%w: %s: %v", ErrCommandPanic, it.name, rec)
		}
	}()
	return it.run(ctx, tx)
}
