package notify

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Listener receives committed events.
//
// Notify runs on the router's dispatcher goroutine. A listener that submits
// gateway commands may wait on them; it must not block forever.
type Listener interface {
	Notify(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event) error

// Notify calls f(ctx, ev).
func (f ListenerFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Logger defines the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscription is a registered listener. Close stops delivery to it.
type Subscription struct {
	id       uint64
	patterns []pattern
	listener Listener
	router   *Router
	closed   atomic.Bool
}

// Close unregisters the subscription. Events already queued for it are
// skipped. Safe to call more than once.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.router.unsubscribe(s.id)
}

func (s *Subscription) wants(topic string) bool {
	for _, p := range s.patterns {
		if p.matches(topic) {
			return true
		}
	}
	return false
}

// delivery is one queued event with the subscribers captured at publish time.
type delivery struct {
	event Event
	subs  []*Subscription
}

// Router delivers events to subscribers in publish order.
//
// Publish never blocks: batches are appended to an unbounded FIFO that a
// single dispatcher goroutine drains.
type Router struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	queue   []delivery
	wake    chan struct{}
	stopped bool

	running atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc

	logger Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewRouter creates a router. Call Start to begin delivery.
func NewRouter() *Router {
	return &Router{
		subs:   make(map[uint64]*Subscription),
		wake:   make(chan struct{}, 1),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Start launches the dispatcher goroutine. It stops when ctx is cancelled or
// Stop is called. Calling Start twice is a no-op.
func (r *Router) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop drains queued events, then stops the dispatcher. Further publishes
// are dropped and further subscriptions fail with ErrRouterClosed.
func (r *Router) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.signal()

	if r.running.Load() {
		<-r.done
		r.cancel()
	}
}

// Subscribe registers l for events whose topic matches any of patterns.
//
//	sub, err := router.Subscribe([]string{"DATA/sensor1"}, listener)
func (r *Router) Subscribe(patterns []string, l Listener) (*Subscription, error) {
	if l == nil {
		return nil, ErrNilListener
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns", ErrInvalidPattern)
	}
	parsed := make([]pattern, 0, len(patterns))
	for _, s := range patterns {
		p, err := parsePattern(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRouterClosed
	}
	r.nextID++
	sub := &Subscription{id: r.nextID, patterns: parsed, listener: l, router: r}
	r.subs[sub.id] = sub
	return sub, nil
}

func (r *Router) unsubscribe(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Publish enqueues a committed batch. Subscribers are resolved now, so a
// listener registered after Publish returns does not see these events.
func (r *Router) Publish(events []Event) {
	if len(events) == 0 {
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.logger.Warn("dropping events on stopped router", "count", len(events))
		return
	}
	for _, ev := range events {
		var targets []*Subscription
		for _, sub := range r.subs {
			if sub.wants(ev.Topic) {
				targets = append(targets, sub)
			}
		}
		if len(targets) == 0 {
			continue
		}
		slices.SortFunc(targets, func(a, b *Subscription) int { return cmp.Compare(a.id, b.id) })
		r.queue = append(r.queue, delivery{event: ev, subs: targets})
	}
	r.mu.Unlock()
	r.signal()
}

// Pending returns the number of queued events not yet delivered.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stats returns the number of successful and failed listener calls.
func (r *Router) Stats() (delivered, failed uint64) {
	return r.delivered.Load(), r.failed.Load()
}

func (r *Router) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Router) run(ctx context.Context) {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		stopped := r.stopped
		r.mu.Unlock()

		for _, d := range batch {
			r.deliver(ctx, d)
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
	}
}

func (r *Router) deliver(ctx context.Context, d delivery) {
	for _, sub := range d.subs {
		if sub.closed.Load() {
			continue
		}
		if err := r.call(ctx, sub.listener, d.event); err != nil {
			r.failed.Add(1)
			r.logger.Error("listener failed",
				"topic", d.event.Topic,
				"event_id", d.event.ID,
				"error", err,
			)
			continue
		}
		r.delivered.Add(1)
	}
}

func (r *Router) call(ctx context.Context, l Listener, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l.Notify(ctx, ev)
}
