package notify

import (
	"errors"
	"testing"
	"time"
)

var tempRef = Ref{Model: "sensor1", Provider: "sensor1", Service: "env", Resource: "temp"}

func TestAccumulator_CreateThenDeleteCancels(t *testing.T) {
	a := NewAccumulator()
	if err := a.ResourceCreated(tempRef); err != nil {
		t.Fatal(err)
	}
	if err := a.ResourceDeleted(tempRef); err != nil {
		t.Fatal(err)
	}

	if events := a.Complete(); len(events) != 0 {
		t.Fatalf("Complete() = %d events, want 0", len(events))
	}
}

func TestAccumulator_DeleteThenCreateKeepsBoth(t *testing.T) {
	a := NewAccumulator()
	_ = a.ProviderDeleted(tempRef)
	_ = a.ProviderCreated(tempRef)

	events := a.Complete()
	if len(events) != 2 {
		t.Fatalf("Complete() = %d events, want 2", len(events))
	}
	if events[0].Status != ProviderDeleted || events[1].Status != ProviderCreated {
		t.Errorf("statuses = %s, %s; want PROVIDER_DELETED, PROVIDER_CREATED", events[0].Status, events[1].Status)
	}
	if events[0].Topic != "LIFECYCLE/sensor1" {
		t.Errorf("topic = %q, want LIFECYCLE/sensor1", events[0].Topic)
	}
	if events[0].Service != "" {
		t.Errorf("provider event carries service %q", events[0].Service)
	}
}

func TestAccumulator_DataCollapse(t *testing.T) {
	a := NewAccumulator()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = a.DataUpdate(tempRef, "float", nil, 20.0, t0)
	_ = a.DataUpdate(tempRef, "float", 20.0, 21.0, t0.Add(time.Second))
	_ = a.DataUpdate(tempRef, "float", 21.0, 22.5, t0.Add(2*time.Second))

	events := a.Complete()
	if len(events) != 1 {
		t.Fatalf("Complete() = %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.OldValue != nil {
		t.Errorf("OldValue = %v, want nil", ev.OldValue)
	}
	if ev.NewValue != 22.5 {
		t.Errorf("NewValue = %v, want 22.5", ev.NewValue)
	}
	if !ev.Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("Timestamp = %v, want last update", ev.Timestamp)
	}
	if ev.Topic != "DATA/sensor1/env/temp" {
		t.Errorf("Topic = %q", ev.Topic)
	}
	if ev.ID == "" {
		t.Error("event ID not assigned")
	}
}

func TestAccumulator_OutOfOrderData(t *testing.T) {
	a := NewAccumulator()
	t0 := time.Now()

	_ = a.DataUpdate(tempRef, "float", nil, 1.0, t0)
	err := a.DataUpdate(tempRef, "float", 1.0, 2.0, t0.Add(-time.Second))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("DataUpdate() error = %v, want ErrOutOfOrder", err)
	}
}

func TestAccumulator_MetadataCollapse(t *testing.T) {
	a := NewAccumulator()
	t0 := time.Now()

	_ = a.MetadataUpdate(tempRef, map[string]any{"unit": "C"}, map[string]any{"unit": "F"}, t0)
	_ = a.MetadataUpdate(tempRef, map[string]any{"unit": "F"}, map[string]any{"unit": "K"}, t0)

	events := a.Complete()
	if len(events) != 1 {
		t.Fatalf("Complete() = %d events, want 1", len(events))
	}
	if events[0].OldMetadata["unit"] != "C" || events[0].NewMetadata["unit"] != "K" {
		t.Errorf("metadata = %v -> %v, want C -> K", events[0].OldMetadata, events[0].NewMetadata)
	}
}

func TestAccumulator_PreservesRecordingOrder(t *testing.T) {
	a := NewAccumulator()
	t0 := time.Now()
	hum := tempRef
	hum.Resource = "humidity"

	_ = a.ProviderCreated(tempRef)
	_ = a.DataUpdate(tempRef, "float", nil, 1.0, t0)
	_ = a.DataUpdate(hum, "float", nil, 40.0, t0)
	_ = a.DataUpdate(tempRef, "float", 1.0, 2.0, t0)

	events := a.Complete()
	want := []string{"LIFECYCLE/sensor1", "DATA/sensor1/env/temp", "DATA/sensor1/env/humidity"}
	if len(events) != len(want) {
		t.Fatalf("Complete() = %d events, want %d", len(events), len(want))
	}
	for i, topic := range want {
		if events[i].Topic != topic {
			t.Errorf("events[%d].Topic = %q, want %q", i, events[i].Topic, topic)
		}
	}
}

func TestAccumulator_Completed(t *testing.T) {
	a := NewAccumulator()
	a.Complete()

	if err := a.ResourceCreated(tempRef); !errors.Is(err, ErrCompleted) {
		t.Errorf("ResourceCreated() error = %v, want ErrCompleted", err)
	}
	if events := a.Complete(); events != nil {
		t.Errorf("second Complete() = %v, want nil", events)
	}
}

func TestAccumulator_Discard(t *testing.T) {
	a := NewAccumulator()
	_ = a.ResourceCreated(tempRef)
	a.Discard()

	if err := a.DataUpdate(tempRef, "int", nil, 1, time.Now()); !errors.Is(err, ErrCompleted) {
		t.Errorf("DataUpdate() after Discard error = %v, want ErrCompleted", err)
	}
}
