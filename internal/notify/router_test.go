package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Topic
	}
	return out
}

func startRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter()
	r.Start(context.Background())
	t.Cleanup(r.Stop)
	return r
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"DATA/sensor1", "DATA/sensor1/env/temp", true},
		{"DATA/sensor1", "DATA/sensor2/env/temp", false},
		{"DATA/*/env/temp", "DATA/sensor9/env/temp", true},
		{"DATA/*/env/temp", "DATA/sensor9/env/humidity", false},
		{"LIFECYCLE/#", "LIFECYCLE/sensor1/env", true},
		{"DATA/sensor1/#", "DATA/sensor1", true},
		{"DATA/sensor1/#", "DATA/sensor2/env/temp", false},
		{"#", "METADATA/a/b/c", true},
		{"DATA/sensor1/env/temp/extra", "DATA/sensor1/env/temp", false},
		{"", "DATA/x", false},
		{"DATA/#/x", "DATA/a/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.topic, func(t *testing.T) {
			if got := Match(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}

func TestRouter_SubscribeValidation(t *testing.T) {
	r := NewRouter()

	if _, err := r.Subscribe([]string{"DATA"}, nil); !errors.Is(err, ErrNilListener) {
		t.Errorf("nil listener error = %v, want ErrNilListener", err)
	}
	if _, err := r.Subscribe(nil, &recorder{}); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("no patterns error = %v, want ErrInvalidPattern", err)
	}
	if _, err := r.Subscribe([]string{"DATA//x"}, &recorder{}); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("empty segment error = %v, want ErrInvalidPattern", err)
	}
}

func TestRouter_DeliversInPublishOrder(t *testing.T) {
	r := startRouter(t)
	rec := &recorder{}
	if _, err := r.Subscribe([]string{"DATA"}, rec); err != nil {
		t.Fatal(err)
	}

	r.Publish([]Event{{Topic: "DATA/a/s/r1"}, {Topic: "DATA/a/s/r2"}})
	r.Publish([]Event{{Topic: "DATA/a/s/r3"}, {Topic: "LIFECYCLE/a"}})
	waitFor(t, func() bool { return len(rec.topics()) == 3 })

	got := rec.topics()
	want := []string{"DATA/a/s/r1", "DATA/a/s/r2", "DATA/a/s/r3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouter_SubscribersCapturedAtPublish(t *testing.T) {
	r := NewRouter() // not started: events stay queued
	early := &recorder{}
	if _, err := r.Subscribe([]string{"DATA"}, early); err != nil {
		t.Fatal(err)
	}
	r.Publish([]Event{{Topic: "DATA/a/s/r"}})

	late := &recorder{}
	if _, err := r.Subscribe([]string{"DATA"}, late); err != nil {
		t.Fatal(err)
	}
	r.Start(context.Background())
	r.Stop()

	if n := len(early.topics()); n != 1 {
		t.Errorf("early subscriber got %d events, want 1", n)
	}
	if n := len(late.topics()); n != 0 {
		t.Errorf("late subscriber got %d events, want 0", n)
	}
}

func TestRouter_ListenerFailureIsolated(t *testing.T) {
	r := startRouter(t)
	_, _ = r.Subscribe([]string{"#"}, ListenerFunc(func(context.Context, Event) error {
		panic("boom")
	}))
	_, _ = r.Subscribe([]string{"#"}, ListenerFunc(func(context.Context, Event) error {
		return errors.New("nope")
	}))
	rec := &recorder{}
	_, _ = r.Subscribe([]string{"#"}, rec)

	r.Publish([]Event{{Topic: "DATA/a/s/r"}})
	waitFor(t, func() bool { return len(rec.topics()) == 1 })

	waitFor(t, func() bool {
		_, failed := r.Stats()
		return failed == 2
	})
}

func TestRouter_CloseStopsDelivery(t *testing.T) {
	r := NewRouter()
	rec := &recorder{}
	sub, _ := r.Subscribe([]string{"#"}, rec)

	r.Publish([]Event{{Topic: "DATA/a/s/r"}})
	sub.Close()
	sub.Close()
	r.Start(context.Background())
	r.Stop()

	if n := len(rec.topics()); n != 0 {
		t.Errorf("closed subscriber got %d events, want 0", n)
	}
}

func TestRouter_SubscribeAfterStop(t *testing.T) {
	r := NewRouter()
	r.Start(context.Background())
	r.Stop()

	if _, err := r.Subscribe([]string{"#"}, &recorder{}); !errors.Is(err, ErrRouterClosed) {
		t.Errorf("Subscribe() after Stop error = %v, want ErrRouterClosed", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
