package influxdb

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/notify"
)

func dataEvent(value any) notify.Event {
	return notify.Event{
		ID:        "ev-1",
		Type:      notify.EventData,
		Topic:     "DATA/sensor1/env/temp",
		Ref:       notify.Ref{Model: "thermo", Provider: "sensor1", Service: "env", Resource: "temp"},
		ValueKind: "float",
		NewValue:  value,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
}

func TestResourcePoint(t *testing.T) {
	tests := []struct {
		name      string
		ev        notify.Event
		wantOK    bool
		wantField string
	}{
		{"float", dataEvent(21.5), true, "value=21.5"},
		{"int", dataEvent(int64(7)), true, "value=7"},
		{"json number", dataEvent(json.Number("3.25")), true, "value=3.25"},
		{"bool", dataEvent(true), true, "value_bool=true"},
		{"string", dataEvent("on"), true, `value_str="on"`},
		{"object", dataEvent(map[string]any{"a": 1}), true, `value_json="{\"a\":1}"`},
		{"null value", dataEvent(nil), false, ""},
		{"lifecycle", notify.Event{Type: notify.EventLifecycle, NewValue: 1}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ResourcePoint(tt.ev)
			if ok != tt.wantOK {
				t.Fatalf("ResourcePoint() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			line := write.PointToLineProtocol(p, time.Second)
			if !strings.HasPrefix(line, MeasurementResource+",") {
				t.Errorf("line = %q, want measurement %q", line, MeasurementResource)
			}
			for _, want := range []string{"provider=sensor1", "service=env", "resource=temp", "model=thermo", tt.wantField, "1700000000"} {
				if !strings.Contains(line, want) {
					t.Errorf("line = %q, missing %q", line, want)
				}
			}
		})
	}
}

func TestSink_Patterns(t *testing.T) {
	s := NewSink(&Client{})
	if got := s.Patterns(); len(got) != 1 || got[0] != "DATA/#" {
		t.Errorf("Patterns() = %v", got)
	}
	// A disconnected client drops events without error.
	if err := s.Notify(context.Background(), dataEvent(1.0)); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 50, 2, 50, 2000},
		{"defaults", 0, 0, defaultBatchSize, 10000},
		{"negative falls back", -1, -5, defaultBatchSize, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if opts.BatchSize() != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), tt.wantBatch)
			}
			if opts.FlushInterval() != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", opts.FlushInterval(), tt.wantFlush)
			}
			if opts.Precision() != time.Millisecond {
				t.Errorf("Precision() = %v, want 1ms", opts.Precision())
			}
		})
	}
}
