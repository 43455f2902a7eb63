package httppull

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/snapshot"
	"github.com/nerrad567/gray-twin/internal/twin"
)

func TestSource_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"watts":512.5,"phases":[230,231,229],"state":"ok"}}`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("42\n"))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("running"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := map[string]string{"X-Token": "secret"}

	tests := []struct {
		name    string
		cfg     config.PullResourceConfig
		check   func(v twin.Value) bool
		wantErr error
	}{
		{
			name:  "nested float",
			cfg:   config.PullResourceConfig{Kind: "float", URL: srv.URL + "/status", Field: "data.watts", Headers: auth},
			check: func(v twin.Value) bool { f, ok := v.AsFloat(); return ok && f == 512.5 },
		},
		{
			name:  "array index as int",
			cfg:   config.PullResourceConfig{Kind: "int", URL: srv.URL + "/status", Field: "data.phases.1", Headers: auth},
			check: func(v twin.Value) bool { i, ok := v.AsInt(); return ok && i == 231 },
		},
		{
			name:  "string field",
			cfg:   config.PullResourceConfig{Kind: "string", URL: srv.URL + "/status", Field: "data.state", Headers: auth},
			check: func(v twin.Value) bool { s, ok := v.AsString(); return ok && s == "ok" },
		},
		{
			name:  "whole body number",
			cfg:   config.PullResourceConfig{Kind: "int", URL: srv.URL + "/plain"},
			check: func(v twin.Value) bool { i, ok := v.AsInt(); return ok && i == 42 },
		},
		{
			name:  "text body",
			cfg:   config.PullResourceConfig{URL: srv.URL + "/text"},
			check: func(v twin.Value) bool { s, ok := v.AsString(); return ok && s == "running" },
		},
		{
			name:    "missing field",
			cfg:     config.PullResourceConfig{Kind: "float", URL: srv.URL + "/status", Field: "data.amps", Headers: auth},
			wantErr: ErrFieldNotFound,
		},
		{
			name:    "index out of range",
			cfg:     config.PullResourceConfig{Kind: "int", URL: srv.URL + "/status", Field: "data.phases.9", Headers: auth},
			wantErr: ErrFieldNotFound,
		},
		{
			name:    "unauthorized",
			cfg:     config.PullResourceConfig{Kind: "float", URL: srv.URL + "/status", Field: "data.watts"},
			wantErr: ErrBadStatus,
		},
		{
			name:    "text for numeric kind",
			cfg:     config.PullResourceConfig{Kind: "float", URL: srv.URL + "/text"},
			wantErr: twin.ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, srv.Client())
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			tv, err := src.Fetch(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if !tt.check(tv.Value) {
				t.Errorf("Fetch() value = %v", tv.Value)
			}
			if !tv.Timestamp.IsZero() {
				t.Errorf("Fetch() timestamp = %v, want zero", tv.Timestamp)
			}
		})
	}
}

func TestNewSource_InvalidKind(t *testing.T) {
	_, err := NewSource(config.PullResourceConfig{Kind: "decimal128"}, nil)
	if !errors.Is(err, twin.ErrInvalidKind) {
		t.Errorf("NewSource() error = %v, want ErrInvalidKind", err)
	}
}

func TestRegister_PulledBySnapshot(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := hits.Add(1)
		fmt.Fprintf(w, `{"watts":%d}`, n)
	}))
	defer srv.Close()

	gw := gateway.New(twin.NewRegistry(twin.Options{CacheThreshold: time.Hour}), nil, gateway.Options{QueueSize: 16})
	gw.Start(context.Background())
	defer func() { _ = gw.Stop(time.Second) }()

	ctx := context.Background()
	n, err := Register(ctx, gw, []config.PullResourceConfig{
		{Provider: "meter", Service: "power", Resource: "watts", Kind: "int", URL: srv.URL, Field: "watts"},
	}, srv.Client())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Register() = %d, want 1", n)
	}

	b := snapshot.NewBuilder(gw, snapshot.Options{PullTimeout: time.Second})

	// Empty cache: the first CACHED read pulls.
	rs, err := b.CaptureResource(ctx, "meter", "power", "watts", snapshot.Cached)
	if err != nil {
		t.Fatalf("CaptureResource() error = %v", err)
	}
	if i, ok := rs.Value.Value.AsInt(); !ok || i != 1 {
		t.Errorf("first read = %v, want 1", rs.Value.Value)
	}

	// Fresh value: CACHED does not pull again, HARD does.
	if _, err := b.CaptureResource(ctx, "meter", "power", "watts", snapshot.Cached); err != nil {
		t.Fatalf("CaptureResource() error = %v", err)
	}
	rs, err = b.CaptureResource(ctx, "meter", "power", "watts", snapshot.Hard)
	if err != nil {
		t.Fatalf("CaptureResource() error = %v", err)
	}
	if i, ok := rs.Value.Value.AsInt(); !ok || i != 2 {
		t.Errorf("hard read = %v, want 2", rs.Value.Value)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("endpoint hit %d times, want 2", got)
	}
	if rs.Access != twin.ReadOnly {
		t.Errorf("Access = %v, want READ_ONLY", rs.Access)
	}
}

func TestRegister_AllOrNothing(t *testing.T) {
	gw := gateway.New(twin.NewRegistry(twin.Options{}), nil, gateway.Options{QueueSize: 16})
	gw.Start(context.Background())
	defer func() { _ = gw.Stop(time.Second) }()

	ctx := context.Background()
	_, err := Register(ctx, gw, []config.PullResourceConfig{
		{Provider: "meter", Service: "power", Resource: "watts", Kind: "int", URL: "http://x"},
		{Provider: "meter", Service: "power", Resource: "bad/name", Kind: "int", URL: "http://x"},
	}, nil)
	if !errors.Is(err, twin.ErrInvalidName) {
		t.Fatalf("Register() error = %v, want ErrInvalidName", err)
	}

	_, err = gateway.Execute(ctx, gw, "check", func(ctx context.Context, tx *gateway.Tx) (struct{}, error) {
		_, err := tx.Registry().Provider("meter")
		return struct{}{}, err
	}).Wait(ctx)
	if !errors.Is(err, twin.ErrProviderNotFound) {
		t.Errorf("provider after failed Register: error = %v, want ErrProviderNotFound", err)
	}
}
