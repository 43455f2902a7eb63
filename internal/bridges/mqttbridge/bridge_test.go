package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-twin/internal/intake"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// mockMQTTClient records subscriptions and publishes.
type mockMQTTClient struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []publishedMsg
	publishErr error
}

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTTClient) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	gw := gateway.New(twin.NewRegistry(twin.Options{}), nil, gateway.Options{QueueSize: 16})
	gw.Start(context.Background())
	t.Cleanup(func() { _ = gw.Stop(time.Second) })
	return gw
}

func lookup(t *testing.T, gw *gateway.Gateway, provider, service, resource string) (twin.TimedValue, error) {
	t.Helper()
	ctx := context.Background()
	return gateway.Execute(ctx, gw, "lookup", func(ctx context.Context, tx *gateway.Tx) (twin.TimedValue, error) {
		r, err := tx.Registry().Lookup(provider, service, resource)
		if err != nil {
			return twin.TimedValue{}, err
		}
		return r.Value(), nil
	}).Wait(ctx)
}

func TestBridge_HandleMessage(t *testing.T) {
	gw := newTestGateway(t)
	client := newMockMQTTClient()
	b, err := NewBridge(Options{Client: client, Pusher: FromIntake(intake.NewPusher(gw))})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := client.handler("graytwin/updates/#")
	if handler == nil {
		t.Fatal("bridge did not subscribe to graytwin/updates/#")
	}

	messages := []struct {
		topic   string
		payload string
	}{
		{"graytwin/updates/sensor1/env/temp", `21.5`},
		{"graytwin/updates/sensor1/env/label", `kitchen`},
		{"graytwin/updates/sensor1/env/humidity", `{"value":40,"type":"int","timestamp":"2026-01-02T03:04:05Z"}`},
		{"graytwin/updates", `[{"provider":"lamp","service":"light","resource":"on","value":true}]`},
	}
	for _, m := range messages {
		if err := handler(m.topic, []byte(m.payload)); err != nil {
			t.Fatalf("handler(%s) error = %v", m.topic, err)
		}
	}

	tests := []struct {
		p, s, r string
		check   func(v twin.Value) bool
	}{
		{"sensor1", "env", "temp", func(v twin.Value) bool { f, ok := v.AsFloat(); return ok && f == 21.5 }},
		{"sensor1", "env", "label", func(v twin.Value) bool { s, ok := v.AsString(); return ok && s == "kitchen" }},
		{"sensor1", "env", "humidity", func(v twin.Value) bool { i, ok := v.AsInt(); return ok && i == 40 }},
		{"lamp", "light", "on", func(v twin.Value) bool { on, ok := v.AsBool(); return ok && on }},
	}
	for _, tt := range tests {
		tv, err := lookup(t, gw, tt.p, tt.s, tt.r)
		if err != nil {
			t.Fatalf("lookup %s/%s/%s error = %v", tt.p, tt.s, tt.r, err)
		}
		if !tt.check(tv.Value) {
			t.Errorf("%s/%s/%s = %v", tt.p, tt.s, tt.r, tv.Value)
		}
	}

	if m := b.GetMetrics(); m.Received != 4 || m.Applied != 4 || m.Rejected != 0 {
		t.Errorf("GetMetrics() = %+v", m)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if client.handler("graytwin/updates/#") != nil {
		t.Error("Stop() did not unsubscribe")
	}
}

func TestBridge_Rejections(t *testing.T) {
	pushErr := errors.New("push failed")
	var calls int
	pusher := PusherFunc(func(_ context.Context, updates ...intake.Update) (intake.Result, error) {
		calls++
		return intake.Result{}, pushErr
	})
	b, err := NewBridge(Options{Client: newMockMQTTClient(), Pusher: pusher})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"foreign topic", "other/topic", `1`, ErrUnknownTopic},
		{"short path", "graytwin/updates/a/b", `1`, ErrUnknownTopic},
		{"bad batch", "graytwin/updates", `{"provider":"p"}`, intake.ErrMissingField},
		{"push failure", "graytwin/updates/a/b/c", `1`, pushErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.HandleMessage(tt.topic, []byte(tt.payload)); !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if calls != 1 {
		t.Errorf("pusher called %d times, want 1", calls)
	}
	if m := b.GetMetrics(); m.Rejected != 4 || m.Applied != 0 {
		t.Errorf("GetMetrics() = %+v", m)
	}
	if err := b.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want ErrNotStarted", err)
	}
	if _, err := NewBridge(Options{}); !errors.Is(err, ErrNilDependency) {
		t.Errorf("NewBridge({}) error = %v, want ErrNilDependency", err)
	}
}

func TestResourceRecord(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]any
	}{
		{"number", `7`, map[string]any{"value": 7.0}},
		{"text", `ON`, map[string]any{"value": "ON"}},
		{"empty", ``, map[string]any{"value": ""}},
		{"plain object", `{"a":1}`, map[string]any{"value": map[string]any{"a": 1.0}}},
		{"record", `{"value":1,"provider":"ignored"}`, map[string]any{"value": 1.0}},
		{"metadata record", `{"metadata":{"unit":"C"}}`, map[string]any{"metadata": map[string]any{"unit": "C"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := resourceRecord("p", "s", "r", []byte(tt.payload))
			if err != nil {
				t.Fatalf("resourceRecord() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("invalid JSON %s: %v", raw, err)
			}
			if got["provider"] != "p" || got["service"] != "s" || got["resource"] != "r" {
				t.Errorf("path not taken from topic: %s", raw)
			}
			for k, want := range tt.want {
				gotJSON, _ := json.Marshal(got[k])
				wantJSON, _ := json.Marshal(want)
				if string(gotJSON) != string(wantJSON) {
					t.Errorf("%s = %s, want %s", k, gotJSON, wantJSON)
				}
			}
		})
	}
}

func TestRelay_Notify(t *testing.T) {
	client := newMockMQTTClient()
	relay, err := NewRelay(RelayOptions{Client: client, QoS: 1, Retain: true})
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	if len(relay.Patterns()) != 3 {
		t.Errorf("default Patterns() = %v", relay.Patterns())
	}

	events := []notify.Event{
		{ID: "1", Type: notify.EventData, Topic: "DATA/sensor1/env/temp", NewValue: 21.5},
		{ID: "2", Type: notify.EventLifecycle, Topic: "LIFECYCLE/sensor1", Status: notify.ProviderCreated},
	}
	for _, ev := range events {
		if err := relay.Notify(context.Background(), ev); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}

	if len(client.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(client.published))
	}
	data := client.published[0]
	if data.topic != "graytwin/events/DATA/sensor1/env/temp" || !data.retained || data.qos != 1 {
		t.Errorf("data publish = %+v", data)
	}
	var ev notify.Event
	if err := json.Unmarshal(data.payload, &ev); err != nil || ev.ID != "1" {
		t.Errorf("payload = %s, err = %v", data.payload, err)
	}
	if life := client.published[1]; life.retained {
		t.Error("lifecycle events must not be retained")
	}

	client.publishErr = errors.New("broker down")
	if err := relay.Notify(context.Background(), events[0]); err == nil {
		t.Error("Notify() expected error when publish fails")
	}
}

func TestRelay_ThroughRouter(t *testing.T) {
	client := newMockMQTTClient()
	relay, err := NewRelay(RelayOptions{Client: client, Patterns: []string{"DATA/sensor1/env/#"}})
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}

	router := notify.NewRouter()
	router.Start(context.Background())
	if _, err := router.Subscribe(relay.Patterns(), relay); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	gw := gateway.New(twin.NewRegistry(twin.Options{}), router, gateway.Options{QueueSize: 16})
	gw.Start(context.Background())
	defer func() { _ = gw.Stop(time.Second) }()

	push := FromIntake(intake.NewPusher(gw))
	if _, err := push.Push(context.Background(), intake.ValueUpdate{Provider: "sensor1", Service: "env", Resource: "temp", Value: 20.0}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	router.Stop()

	client.mu.Lock()
	defer client.mu.Unlock()
	var topics []string
	for _, m := range client.published {
		topics = append(topics, m.topic)
	}
	if len(topics) != 1 || topics[0] != "graytwin/events/DATA/sensor1/env/temp" {
		t.Errorf("relayed topics = %v", topics)
	}
}
