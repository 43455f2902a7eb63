package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// testClock is a settable clock shared with the gateway worker.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBuilder(t *testing.T, opts twin.Options, pub gateway.Publisher) (*Builder, *gateway.Gateway) {
	t.Helper()
	reg := twin.NewRegistry(opts)
	gw := gateway.New(reg, pub, gateway.Options{QueueSize: 16})
	gw.Start(context.Background())
	t.Cleanup(func() { _ = gw.Stop(time.Second) })
	return NewBuilder(gw, Options{PullTimeout: 50 * time.Millisecond}), gw
}

func push(t *testing.T, gw *gateway.Gateway, provider, service, resource string, value any, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := gateway.Execute(ctx, gw, "push", func(ctx context.Context, tx *gateway.Tx) (bool, error) {
		return tx.Twin().UpdateValue(ctx, twin.ModelHint{}, provider, service, resource, value, twin.KindNone, ts)
	}).Wait(ctx)
	if err != nil {
		t.Fatalf("push %s/%s/%s: %v", provider, service, resource, err)
	}
}

func definePulled(t *testing.T, gw *gateway.Gateway, provider, service string, spec twin.ResourceSpec) {
	t.Helper()
	ctx := context.Background()
	_, err := gateway.Execute(ctx, gw, "define", func(ctx context.Context, tx *gateway.Tx) (struct{}, error) {
		reg := tx.Registry()
		p, err := reg.ResolveOrCreateProvider(provider, twin.ModelHint{})
		if err != nil {
			return struct{}{}, err
		}
		s, err := reg.ResolveOrCreateService(p, service)
		if err != nil {
			return struct{}{}, err
		}
		_, err = reg.DefineResource(s, spec)
		return struct{}{}, err
	}).Wait(ctx)
	if err != nil {
		t.Fatalf("define %s/%s/%s: %v", provider, service, spec.Name, err)
	}
}

func TestCapture_Sensor1(t *testing.T) {
	router := notify.NewRouter()
	router.Start(context.Background())
	defer router.Stop()

	var (
		mu  sync.Mutex
		got []notify.Event
	)
	_, err := router.Subscribe([]string{"DATA/sensor1/temperature/#"}, notify.ListenerFunc(func(_ context.Context, ev notify.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	}))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b, gw := newTestBuilder(t, twin.Options{}, router)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	push(t, gw, "sensor1", "temperature", "value", 21.5, ts)

	snaps, err := b.CaptureAll(context.Background(), Match("sensor1", "", ""), Weak)
	if err != nil {
		t.Fatalf("CaptureAll: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(snaps))
	}
	ps := snaps[0]
	if ps.Model != "sensor1" {
		t.Errorf("model = %q, want sensor1", ps.Model)
	}
	if ps.Service(twin.AdminService) == nil {
		t.Error("admin service missing from snapshot")
	}
	rs := ps.Resource("temperature", "value")
	if rs == nil {
		t.Fatal("temperature/value missing from snapshot")
	}
	if f, ok := rs.Value.Value.AsFloat(); !ok || f != 21.5 {
		t.Errorf("value = %v, want 21.5", rs.Value.Value)
	}
	if !rs.Value.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", rs.Value.Timestamp, ts)
	}

	deadline := time.Now().Add(time.Second)
	for router.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 DATA event, got %d", len(got))
	}
	if got[0].Topic != "DATA/sensor1/temperature/value" {
		t.Errorf("topic = %q", got[0].Topic)
	}
	if got[0].OldValue != nil {
		t.Errorf("old value = %v, want nil", got[0].OldValue)
	}
	if got[0].NewValue != 21.5 {
		t.Errorf("new value = %v, want 21.5", got[0].NewValue)
	}
}

func TestCapture_SnapshotIsolation(t *testing.T) {
	b, gw := newTestBuilder(t, twin.Options{}, nil)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Minute)
	push(t, gw, "sensor1", "temperature", "value", 20.0, ts)

	_, err := gateway.Execute(ctx, gw, "meta", func(ctx context.Context, tx *gateway.Tx) (bool, error) {
		return tx.Twin().UpdateMetadata(ctx, twin.ModelHint{}, "sensor1", "temperature", "value",
			map[string]any{"unit": "C", "tags": map[string]any{"room": "kitchen"}}, ts, false, false)
	}).Wait(ctx)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}

	first, err := b.CaptureProvider(ctx, "sensor1", Weak)
	if err != nil {
		t.Fatalf("CaptureProvider: %v", err)
	}

	// Mutating the copy must not reach the twin.
	rs := first.Resource("temperature", "value")
	rs.Metadata["tags"].Value.(map[string]any)["room"] = "garage"
	delete(rs.Metadata, "unit")

	push(t, gw, "sensor1", "temperature", "value", 25.0, ts.Add(time.Second))

	if f, _ := rs.Value.Value.AsFloat(); f != 20.0 {
		t.Errorf("old snapshot value changed to %v", f)
	}

	second, err := b.CaptureResource(ctx, "sensor1", "temperature", "value", Weak)
	if err != nil {
		t.Fatalf("CaptureResource: %v", err)
	}
	if f, _ := second.Value.Value.AsFloat(); f != 25.0 {
		t.Errorf("new snapshot value = %v, want 25", f)
	}
	if second.Metadata["unit"].Value != "C" {
		t.Errorf("unit = %v, want C", second.Metadata["unit"].Value)
	}
	if room := second.Metadata["tags"].Value.(map[string]any)["room"]; room != "kitchen" {
		t.Errorf("room = %v, want kitchen", room)
	}
}

func TestCapture_HardPullFailure(t *testing.T) {
	b, gw := newTestBuilder(t, twin.Options{}, nil)
	ctx := context.Background()
	boom := errors.New("device unreachable")

	definePulled(t, gw, "meter", "power", twin.ResourceSpec{
		Name:   "watts",
		Kind:   twin.KindFloat,
		Update: twin.Pulled,
		Pull: func(context.Context) (twin.TimedValue, error) {
			return twin.TimedValue{}, boom
		},
		Default: 10.0,
	})
	push(t, gw, "meter", "power", "volts", 230.0, time.Time{})

	snaps, err := b.CaptureAll(ctx, Match("meter", "power", ""), Hard)
	if err != nil {
		t.Fatalf("CaptureAll must not fail on pull errors: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(snaps))
	}

	watts := snaps[0].Resource("power", "watts")
	if watts == nil {
		t.Fatal("watts missing")
	}
	if !errors.Is(watts.PullError, twin.ErrPullFailure) || !errors.Is(watts.PullError, boom) {
		t.Errorf("PullError = %v, want pull failure wrapping %v", watts.PullError, boom)
	}
	var pe *twin.PullError
	if !errors.As(watts.PullError, &pe) || pe.Resource != "watts" {
		t.Errorf("PullError does not name the resource: %v", watts.PullError)
	}
	if f, _ := watts.Value.Value.AsFloat(); f != 10.0 {
		t.Errorf("last known value = %v, want 10", watts.Value.Value)
	}

	volts := snaps[0].Resource("power", "volts")
	if volts == nil || volts.PullError != nil {
		t.Errorf("volts = %+v, want clean pushed resource", volts)
	}
}

func TestCapture_PullTimeout(t *testing.T) {
	b, gw := newTestBuilder(t, twin.Options{}, nil)
	definePulled(t, gw, "slow", "s", twin.ResourceSpec{
		Name:   "r",
		Kind:   twin.KindInt,
		Update: twin.Pulled,
		Pull: func(ctx context.Context) (twin.TimedValue, error) {
			<-ctx.Done()
			return twin.TimedValue{}, ctx.Err()
		},
	})

	rs, err := b.CaptureResource(context.Background(), "slow", "s", "r", Hard)
	if err != nil {
		t.Fatalf("CaptureResource: %v", err)
	}
	if !errors.Is(rs.PullError, ErrPullTimeout) {
		t.Errorf("PullError = %v, want timeout", rs.PullError)
	}
}

func TestCapture_GetLevels(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b, gw := newTestBuilder(t, twin.Options{Now: clock.Now}, nil)
	ctx := context.Background()

	var calls atomic.Int64
	definePulled(t, gw, "thermo", "env", twin.ResourceSpec{
		Name:           "temp",
		Kind:           twin.KindFloat,
		Update:         twin.Pulled,
		CacheThreshold: time.Minute,
		Pull: func(context.Context) (twin.TimedValue, error) {
			n := calls.Add(1)
			return twin.TimedValue{Value: twin.Float(float64(n))}, nil
		},
	})

	steps := []struct {
		name      string
		advance   time.Duration
		level     GetLevel
		wantCalls int64
		wantValue float64
	}{
		{"weak never pulls", 0, Weak, 0, 0},
		{"cached pulls when empty", 0, Cached, 1, 1},
		{"cached within threshold", 30 * time.Second, Cached, 1, 1},
		{"weak keeps cached value", 0, Weak, 1, 1},
		{"cached after threshold", 2 * time.Minute, Cached, 2, 2},
		{"hard always pulls", time.Second, Hard, 3, 3},
	}

	for _, st := range steps {
		clock.Advance(st.advance)
		rs, err := b.CaptureResource(ctx, "thermo", "env", "temp", st.level)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got := calls.Load(); got != st.wantCalls {
			t.Errorf("%s: pulls = %d, want %d", st.name, got, st.wantCalls)
		}
		if st.wantValue == 0 {
			if rs.HasValue() {
				t.Errorf("%s: unexpected value %v", st.name, rs.Value.Value)
			}
			continue
		}
		if f, _ := rs.Value.Value.AsFloat(); f != st.wantValue {
			t.Errorf("%s: value = %v, want %v", st.name, f, st.wantValue)
		}
	}
}

func TestCapture_Criteria(t *testing.T) {
	b, gw := newTestBuilder(t, twin.Options{}, nil)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Hour)

	push(t, gw, "lamp1", "light", "level", 80, ts)
	push(t, gw, "lamp1", "admin", "location", `{"type":"Point","coordinates":[-1.5,53.8]}`, ts)
	push(t, gw, "lamp2", "light", "level", 10, ts)
	push(t, gw, "lamp2", "admin", "location", `{"type":"Point","coordinates":[2.35,48.85]}`, ts)
	push(t, gw, "door", "contact", "open", true, ts)

	bright := ValueMatches("light", "level", func(tv twin.TimedValue) bool {
		n, ok := tv.Value.AsInt()
		return ok && n > 50
	})
	leeds := twin.GeoPoint{Lat: 53.8, Lon: -1.55}

	tests := []struct {
		name string
		c    Criterion
		want []string
	}{
		{"all", nil, []string{"door", "lamp1", "lamp2"}},
		{"by name", Match("lamp2", "", ""), []string{"lamp2"}},
		{"by service", Match("", "contact", ""), []string{"door"}},
		{"by model", ModelIs("lamp1"), []string{"lamp1"}},
		{"by value", bright, []string{"lamp1"}},
		{"near", Near(leeds, 10_000), []string{"lamp1"}},
		{"and", And(Match("", "light", ""), Not(bright)), []string{"lamp2"}},
		{"or", Or(Match("door", "", ""), bright), []string{"door", "lamp1"}},
		{"not", Not(Match("", "light", "")), []string{"door"}},
		{"none", Match("missing", "", ""), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := b.CaptureAll(ctx, tt.c, Weak)
			if err != nil {
				t.Fatalf("CaptureAll: %v", err)
			}
			var names []string
			for _, s := range snaps {
				names = append(names, s.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("got %v, want %v", names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", names, tt.want)
				}
			}
		})
	}
}

func TestCapture_ServiceFilterPrunes(t *testing.T) {
	b, gw := newTestBuilder(t, twin.Options{}, nil)
	push(t, gw, "lamp1", "light", "level", 80, time.Time{})

	snaps, err := b.CaptureAll(context.Background(), Match("lamp1", "light", ""), Weak)
	if err != nil {
		t.Fatalf("CaptureAll: %v", err)
	}
	if len(snaps) != 1 || len(snaps[0].Services) != 1 {
		t.Fatalf("expected only the light service, got %+v", snaps)
	}
	if snaps[0].Service(twin.AdminService) != nil {
		t.Error("admin service should have been pruned")
	}
}

func TestParseGetLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    GetLevel
		wantErr bool
	}{
		{"", Cached, false},
		{"cached", Cached, false},
		{"WEAK", Weak, false},
		{"hard", Hard, false},
		{"strong", Hard, false},
		{"lazy", Cached, true},
	}
	for _, tt := range tests {
		got, err := ParseGetLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGetLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGetLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	london := twin.GeoPoint{Lat: 51.5074, Lon: -0.1278}
	paris := twin.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	d := Distance(london, paris)
	if d < 340_000 || d > 345_000 {
		t.Errorf("London-Paris = %.0f m, want about 343 km", d)
	}
	if Distance(london, london) != 0 {
		t.Error("distance to self should be 0")
	}
}
