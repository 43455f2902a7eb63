package twin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-twin/internal/notify"
)

var (
	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(Options{Now: func() time.Time { return t0 }})
}

// begin starts a command with a fresh accumulator.
func begin(r *Registry) *notify.Accumulator {
	acc := notify.NewAccumulator()
	r.Begin(acc)
	return acc
}

func mustResource(t *testing.T, r *Registry, provider, service, resource string) *Resource {
	t.Helper()
	p, err := r.ResolveOrCreateProvider(provider, ModelHint{})
	if err != nil {
		t.Fatalf("ResolveOrCreateProvider() error = %v", err)
	}
	s, err := r.ResolveOrCreateService(p, service)
	if err != nil {
		t.Fatalf("ResolveOrCreateService() error = %v", err)
	}
	res, err := r.ResolveOrCreateResource(s, resource, KindNone)
	if err != nil {
		t.Fatalf("ResolveOrCreateResource() error = %v", err)
	}
	return res
}

func TestRegistry_ProviderHasAdminService(t *testing.T) {
	r := newTestRegistry(t)
	p, err := r.ResolveOrCreateProvider("sensor1", ModelHint{})
	if err != nil {
		t.Fatal(err)
	}

	if p.Model() != "sensor1" {
		t.Errorf("Model() = %q, want derived name sensor1", p.Model())
	}
	admin := p.Admin()
	if admin == nil {
		t.Fatal("admin service missing")
	}
	for _, name := range []string{AdminFriendlyName, AdminLocation, AdminIcon, AdminModelName} {
		if admin.Resource(name) == nil {
			t.Errorf("admin resource %q missing", name)
		}
	}
	got, _ := admin.Resource(AdminModelName).Value().Value.AsString()
	if got != "sensor1" {
		t.Errorf("admin modelName = %q, want sensor1", got)
	}
}

func TestRegistry_ModelConflict(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.ResolveOrCreateProvider("lamp", ModelHint{Model: "light"}); err != nil {
		t.Fatal(err)
	}

	_, err := r.ResolveOrCreateProvider("lamp", ModelHint{Model: "switch"})
	if !errors.Is(err, ErrModelConflict) {
		t.Fatalf("error = %v, want ErrModelConflict", err)
	}

	if _, err := r.ResolveOrCreateProvider("lamp", ModelHint{}); err != nil {
		t.Errorf("absent hint error = %v, want nil", err)
	}
}

func TestRegistry_TypeConflict(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.ResolveOrCreateProvider("sensor1", ModelHint{})
	s, _ := r.ResolveOrCreateService(p, "env")
	if _, err := r.ResolveOrCreateResource(s, "temp", KindFloat); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ResolveOrCreateResource(s, "temp", KindString); !errors.Is(err, ErrTypeConflict) {
		t.Errorf("string hint error = %v, want ErrTypeConflict", err)
	}
	if _, err := r.ResolveOrCreateResource(s, "temp", KindInt); err != nil {
		t.Errorf("int hint on float error = %v, want nil", err)
	}
}

func TestRegistry_TypeLock(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")

	if _, _, _, err := r.ApplyValueUpdate(res, Float(21.5), t0); err != nil {
		t.Fatal(err)
	}
	if res.Kind() != KindFloat {
		t.Fatalf("Kind() = %v, want float after first value", res.Kind())
	}

	_, _, changed, err := r.ApplyValueUpdate(res, String("hot"), t1)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("error = %v, want ErrTypeMismatch", err)
	}
	if changed {
		t.Error("changed = true on mismatch")
	}
	got, _ := res.Value().Value.AsFloat()
	if got != 21.5 || !res.Value().Timestamp.Equal(t0) {
		t.Errorf("value = %v @ %v, want 21.5 @ %v", got, res.Value().Timestamp, t0)
	}
}

func TestRegistry_NullDoesNotFixKind(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")

	if _, _, _, err := r.ApplyValueUpdate(res, Null(), t0); err != nil {
		t.Fatal(err)
	}
	if res.Kind() != KindNone {
		t.Errorf("Kind() = %v after null, want none", res.Kind())
	}
	if _, _, _, err := r.ApplyValueUpdate(res, Int(4), t1); err != nil {
		t.Fatal(err)
	}
	if res.Kind() != KindInt {
		t.Errorf("Kind() = %v, want int", res.Kind())
	}
}

func TestRegistry_FloatWidensInt(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")
	_, _, _, _ = r.ApplyValueUpdate(res, Float(1.5), t0)

	_, updated, _, err := r.ApplyValueUpdate(res, Int(3), t1)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Value.Kind() != KindFloat {
		t.Errorf("stored kind = %v, want float", updated.Value.Kind())
	}
}

func TestRegistry_IdempotentSkip(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")
	_, _, _, _ = r.ApplyValueUpdate(res, Float(21.5), t1)

	tests := []struct {
		name string
		ts   time.Time
	}{
		{"older", t0},
		{"equal", t1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := begin(r)
			old, updated, changed, err := r.ApplyValueUpdate(res, Float(99), tt.ts)
			r.Commit()
			if err != nil {
				t.Fatal(err)
			}
			if changed {
				t.Error("changed = true for stale update")
			}
			if !old.Value.Equal(updated.Value) {
				t.Errorf("old %v != new %v on skip", old.Value, updated.Value)
			}
			got, _ := res.Value().Value.AsFloat()
			if got != 21.5 {
				t.Errorf("value = %v, want 21.5", got)
			}
			if events := acc.Complete(); len(events) != 0 {
				t.Errorf("recorded %d events for stale update, want 0", len(events))
			}
		})
	}
}

func TestRegistry_ValueUpdateRecordsData(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")

	acc := begin(r)
	_, _, _, _ = r.ApplyValueUpdate(res, Float(21.5), t1)
	r.Commit()

	events := acc.Complete()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != notify.EventData || ev.Topic != "DATA/sensor1/env/temp" {
		t.Errorf("event = %s %s", ev.Type, ev.Topic)
	}
	if ev.NewValue != 21.5 || ev.OldValue != nil {
		t.Errorf("values = %v -> %v, want nil -> 21.5", ev.OldValue, ev.NewValue)
	}
	if !res.Service().Provider().LastUpdate().Equal(t1) {
		t.Errorf("LastUpdate() = %v, want %v", res.Service().Provider().LastUpdate(), t1)
	}
}

func TestRegistry_MetadataUpdate(t *testing.T) {
	tests := []struct {
		name          string
		initial       map[string]any
		changes       map[string]any
		removeNulls   bool
		removeMissing bool
		want          map[string]any
	}{
		{
			name:    "merge",
			initial: map[string]any{"unit": "C"},
			changes: map[string]any{"precision": 0.1},
			want:    map[string]any{"unit": "C", "precision": 0.1},
		},
		{
			name:    "null stored",
			initial: map[string]any{"unit": "C"},
			changes: map[string]any{"unit": nil},
			want:    map[string]any{"unit": nil},
		},
		{
			name:        "null removes",
			initial:     map[string]any{"unit": "C", "precision": 0.1},
			changes:     map[string]any{"unit": nil},
			removeNulls: true,
			want:        map[string]any{"precision": 0.1},
		},
		{
			name:          "replace",
			initial:       map[string]any{"unit": "C", "precision": 0.1},
			changes:       map[string]any{"unit": "F"},
			removeMissing: true,
			want:          map[string]any{"unit": "F"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			res := mustResource(t, r, "sensor1", "env", "temp")
			_, _, _, _ = r.ApplyMetadataUpdate(res, tt.initial, t0, false, false)

			acc := begin(r)
			old, updated, changed, err := r.ApplyMetadataUpdate(res, tt.changes, t1, tt.removeNulls, tt.removeMissing)
			r.Commit()
			if err != nil {
				t.Fatal(err)
			}
			if !changed {
				t.Fatal("changed = false")
			}
			if len(updated) != len(tt.want) {
				t.Fatalf("metadata = %v, want %v", updated, tt.want)
			}
			for k, v := range tt.want {
				got, ok := updated[k]
				if !ok || got != v {
					t.Errorf("metadata[%q] = %v (present %v), want %v", k, got, ok, v)
				}
			}
			if len(old) != len(tt.initial) {
				t.Errorf("old = %v, want %v", old, tt.initial)
			}

			events := acc.Complete()
			if len(events) != 1 || events[0].Type != notify.EventMetadata {
				t.Fatalf("events = %+v, want one METADATA", events)
			}
		})
	}
}

func TestRegistry_MetadataNoChange(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")
	_, _, _, _ = r.ApplyMetadataUpdate(res, map[string]any{"unit": "C"}, t0, false, false)

	acc := begin(r)
	_, _, changed, _ := r.ApplyMetadataUpdate(res, map[string]any{"unit": "C"}, t1, false, false)
	r.Commit()

	if changed {
		t.Error("changed = true for identical metadata")
	}
	if n := len(acc.Complete()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestRegistry_RollbackRestoresState(t *testing.T) {
	r := newTestRegistry(t)
	res := mustResource(t, r, "sensor1", "env", "temp")
	_, _, _, _ = r.ApplyValueUpdate(res, Float(1), t0)

	acc := begin(r)
	_, _, _, _ = r.ApplyValueUpdate(res, Float(2), t1)
	_, _, _, _ = r.ApplyMetadataUpdate(res, map[string]any{"unit": "C"}, t1, false, false)
	newRes := mustResource(t, r, "sensor2", "env", "hum")
	_, _, _, _ = r.ApplyValueUpdate(newRes, Int(5), t1)
	_ = r.RemoveService(res.Service().Provider(), "env")
	r.Rollback()
	acc.Discard()

	if _, err := r.Provider("sensor2"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("sensor2 error = %v, want ErrProviderNotFound", err)
	}
	got, err := r.Lookup("sensor1", "env", "temp")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != res {
		t.Error("restored resource is a different node")
	}
	f, _ := got.Value().Value.AsFloat()
	if f != 1 || !got.Value().Timestamp.Equal(t0) {
		t.Errorf("value = %v @ %v, want 1 @ %v", f, got.Value().Timestamp, t0)
	}
	if len(got.MetadataValues()) != 0 {
		t.Errorf("metadata = %v, want empty", got.MetadataValues())
	}
	if _, ok := r.Model("sensor2"); ok {
		t.Error("implicit model of rolled back provider still registered")
	}
}

func TestRegistry_RemoveProviderCascades(t *testing.T) {
	r := newTestRegistry(t)
	mustResource(t, r, "sensor1", "env", "temp")

	acc := begin(r)
	if err := r.RemoveProvider("sensor1"); err != nil {
		t.Fatal(err)
	}
	r.Commit()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	events := acc.Complete()
	last := events[len(events)-1]
	if last.Status != notify.ProviderDeleted {
		t.Errorf("last event = %s, want PROVIDER_DELETED", last.Status)
	}
	if err := r.RemoveProvider("sensor1"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("second remove error = %v, want ErrProviderNotFound", err)
	}
}

func TestRegistry_AutoDelete(t *testing.T) {
	r := NewRegistry(Options{AutoDelete: true, Now: func() time.Time { return t0 }})
	res := mustResource(t, r, "sensor1", "env", "temp")
	mustResource(t, r, "sensor1", "power", "watts")
	p := res.Service().Provider()

	if err := r.RemoveService(p, "env"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Provider("sensor1"); err != nil {
		t.Fatalf("provider removed with a user service left: %v", err)
	}

	if err := r.RemoveResource(p.Service("power"), "watts"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Provider("sensor1"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("provider error = %v, want ErrProviderNotFound after last service pruned", err)
	}
}

func TestRegistry_AdminCannotBeRemoved(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.ResolveOrCreateProvider("sensor1", ModelHint{})

	if err := r.RemoveService(p, AdminService); !errors.Is(err, ErrAdminService) {
		t.Errorf("RemoveService(admin) error = %v, want ErrAdminService", err)
	}
	if err := r.RemoveResource(p.Admin(), AdminIcon); !errors.Is(err, ErrAdminService) {
		t.Errorf("RemoveResource(admin/icon) error = %v, want ErrAdminService", err)
	}
}

func TestRegistry_FrozenModel(t *testing.T) {
	r := newTestRegistry(t)
	err := r.RegisterModel(Model{
		Name:   "thermo",
		Frozen: true,
		Services: []ServiceSpec{{
			Name:      "env",
			Resources: []ResourceSpec{{Name: "temp", Kind: KindFloat, Access: ReadOnly}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := r.ResolveOrCreateProvider("t1", ModelHint{Model: "thermo"})
	if err != nil {
		t.Fatal(err)
	}
	temp := p.Service("env").Resource("temp")
	if temp == nil || temp.Kind() != KindFloat || temp.Access() != ReadOnly {
		t.Fatalf("declared resource not instantiated: %+v", temp)
	}

	if _, err := r.ResolveOrCreateService(p, "extra"); !errors.Is(err, ErrImplicitNotAllowed) {
		t.Errorf("undeclared service error = %v, want ErrImplicitNotAllowed", err)
	}
	if _, err := r.ResolveOrCreateResource(p.Service("env"), "humidity", KindNone); !errors.Is(err, ErrImplicitNotAllowed) {
		t.Errorf("undeclared resource error = %v, want ErrImplicitNotAllowed", err)
	}
	if _, err := r.DefineResource(p.Service("env"), ResourceSpec{Name: "humidity", Kind: KindFloat}); !errors.Is(err, ErrImplicitNotAllowed) {
		t.Errorf("DefineResource(undeclared) error = %v, want ErrImplicitNotAllowed", err)
	}
	if _, err := r.DefineResource(p.Service("env"), ResourceSpec{Name: "temp", Kind: KindFloat, Access: ReadOnly}); err != nil {
		t.Errorf("DefineResource(declared) error = %v", err)
	}
	if err := r.ValidatePath(ModelHint{Model: "thermo"}, "t2", "env", "humidity", KindFloat); !errors.Is(err, ErrImplicitNotAllowed) {
		t.Errorf("ValidatePath() error = %v, want ErrImplicitNotAllowed", err)
	}
	if err := r.ValidatePath(ModelHint{Model: "thermo"}, "t2", "env", "temp", KindString); !errors.Is(err, ErrTypeConflict) {
		t.Errorf("ValidatePath() error = %v, want ErrTypeConflict", err)
	}
}

func TestRegistry_DefineResourcePulled(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.ResolveOrCreateProvider("meter", ModelHint{})
	s, _ := r.ResolveOrCreateService(p, "power")

	pull := func(context.Context) (TimedValue, error) { return TimedValue{Value: Float(1)}, nil }
	res, err := r.DefineResource(s, ResourceSpec{
		Name: "watts", Kind: KindFloat, Update: Pulled, Pull: pull, CacheThreshold: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.UpdateMode() != Pulled || res.Pull() == nil || res.CacheThreshold() != time.Second {
		t.Errorf("resource not configured as pulled: mode %s", res.UpdateMode())
	}

	if _, err := r.DefineResource(s, ResourceSpec{Name: "watts", Kind: KindBool}); !errors.Is(err, ErrTypeConflict) {
		t.Errorf("redefine error = %v, want ErrTypeConflict", err)
	}
	if _, err := r.DefineResource(s, ResourceSpec{Name: "x", Update: Pulled}); err == nil {
		t.Error("pulled resource without pull function accepted")
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", "  ", "a/b", "a#", "*", "a+b"} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	if err := ValidateName("sensor-1"); err != nil {
		t.Errorf("ValidateName(sensor-1) error = %v", err)
	}
}

func TestPullError(t *testing.T) {
	cause := errors.New("timeout")
	err := error(&PullError{Provider: "p", Service: "s", Resource: "r", Err: cause})

	if !errors.Is(err, ErrPullFailure) || !errors.Is(err, cause) {
		t.Errorf("PullError does not match ErrPullFailure and its cause: %v", err)
	}
	var pe *PullError
	if !errors.As(err, &pe) || pe.Resource != "r" {
		t.Errorf("errors.As failed: %v", err)
	}
}
