package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	provider, service, resource string
	kind                        EventType
}

// slot holds the pending events for one (element, event type) pair. Its
// position in Accumulator.slots fixes the delivery order.
type slot struct {
	key    slotKey
	events []Event
}

// Accumulator collects the events of one gateway command.
//
// Repeated changes to the same element are debounced:
//   - lifecycle: create then delete cancels out; delete then create keeps both
//   - data: one event carrying the first old value and the last new value
//   - metadata: one event carrying the first old map and the last new map
//
// Not safe for concurrent use; it lives on the gateway worker.
type Accumulator struct {
	slots     []*slot
	index     map[slotKey]*slot
	now       func() time.Time
	completed bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{index: make(map[slotKey]*slot)}
}

// SetClock sets the clock that stamps lifecycle events, normally the
// registry's. Without one, lifecycle events use time.Now.
func (a *Accumulator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Accumulator) clock() time.Time {
	if a.now == nil {
		return time.Now().UTC()
	}
	return a.now().UTC()
}

// ProviderCreated records a provider creation.
func (a *Accumulator) ProviderCreated(ref Ref) error {
	return a.lifecycle(ProviderCreated, Ref{ModelPackageURI: ref.ModelPackageURI, Model: ref.Model, Provider: ref.Provider}, false)
}

// ProviderDeleted records a provider removal.
func (a *Accumulator) ProviderDeleted(ref Ref) error {
	return a.lifecycle(ProviderDeleted, Ref{ModelPackageURI: ref.ModelPackageURI, Model: ref.Model, Provider: ref.Provider}, true)
}

// ServiceCreated records a service creation.
func (a *Accumulator) ServiceCreated(ref Ref) error {
	ref.Resource = ""
	return a.lifecycle(ServiceCreated, ref, false)
}

// ServiceDeleted records a service removal.
func (a *Accumulator) ServiceDeleted(ref Ref) error {
	ref.Resource = ""
	return a.lifecycle(ServiceDeleted, ref, true)
}

// ResourceCreated records a resource creation.
func (a *Accumulator) ResourceCreated(ref Ref) error {
	return a.lifecycle(ResourceCreated, ref, false)
}

// ResourceDeleted records a resource removal.
func (a *Accumulator) ResourceDeleted(ref Ref) error {
	return a.lifecycle(ResourceDeleted, ref, true)
}

func (a *Accumulator) lifecycle(status LifecycleStatus, ref Ref, isDelete bool) error {
	if a.completed {
		return ErrCompleted
	}
	key := slotKey{ref.Provider, ref.Service, ref.Resource, EventLifecycle}
	ev := Event{
		Type:      EventLifecycle,
		Topic:     Topics{}.Lifecycle(ref.Provider, ref.Service, ref.Resource),
		Ref:       ref,
		Status:    status,
		Timestamp: a.clock(),
	}

	s, ok := a.index[key]
	if !ok {
		a.add(key, ev)
		return nil
	}

	last := s.events[len(s.events)-1].Status
	switch {
	case last == status:
		// Same transition twice: keep the newest copy.
		s.events[len(s.events)-1] = ev
	case isDelete:
		// create+delete is nothing; delete+create+delete is a delete.
		if len(s.events) == 1 {
			a.drop(s)
		} else {
			s.events = []Event{ev}
		}
	default:
		// delete+create
		s.events = []Event{s.events[0], ev}
	}
	return nil
}

// DataUpdate records a resource value change. Values are plain Go values.
func (a *Accumulator) DataUpdate(ref Ref, kind string, oldValue, newValue any, ts time.Time) error {
	if a.completed {
		return ErrCompleted
	}
	key := slotKey{ref.Provider, ref.Service, ref.Resource, EventData}
	ev := Event{
		Type:      EventData,
		Topic:     Topics{}.Data(ref.Provider, ref.Service, ref.Resource),
		Ref:       ref,
		ValueKind: kind,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: ts,
	}

	if s, ok := a.index[key]; ok {
		prev := s.events[0]
		if prev.Timestamp.After(ts) {
			return fmt.Errorf("%w: %s", ErrOutOfOrder, ev.Topic)
		}
		ev.OldValue = prev.OldValue
		s.events[0] = ev
		return nil
	}
	a.add(key, ev)
	return nil
}

// MetadataUpdate records a resource metadata change with the complete maps
// before and after.
func (a *Accumulator) MetadataUpdate(ref Ref, oldValues, newValues map[string]any, ts time.Time) error {
	if a.completed {
		return ErrCompleted
	}
	if oldValues == nil {
		oldValues = map[string]any{}
	}
	if newValues == nil {
		newValues = map[string]any{}
	}
	key := slotKey{ref.Provider, ref.Service, ref.Resource, EventMetadata}
	ev := Event{
		Type:        EventMetadata,
		Topic:       Topics{}.Metadata(ref.Provider, ref.Service, ref.Resource),
		Ref:         ref,
		OldMetadata: oldValues,
		NewMetadata: newValues,
		Timestamp:   ts,
	}

	if s, ok := a.index[key]; ok {
		prev := s.events[0]
		if prev.Timestamp.After(ts) {
			return fmt.Errorf("%w: %s", ErrOutOfOrder, ev.Topic)
		}
		ev.OldMetadata = prev.OldMetadata
		s.events[0] = ev
		return nil
	}
	a.add(key, ev)
	return nil
}

func (a *Accumulator) add(key slotKey, ev Event) {
	s := &slot{key: key, events: []Event{ev}}
	a.slots = append(a.slots, s)
	a.index[key] = s
}

func (a *Accumulator) drop(s *slot) {
	delete(a.index, s.key)
	for i, cur := range a.slots {
		if cur == s {
			a.slots = append(a.slots[:i], a.slots[i+1:]...)
			return
		}
	}
}

// Len returns the number of pending events.
func (a *Accumulator) Len() int {
	n := 0
	for _, s := range a.slots {
		n += len(s.events)
	}
	return n
}

// Complete closes the accumulator and returns its events in recording order,
// each with a fresh ID. Further recording fails with ErrCompleted.
func (a *Accumulator) Complete() []Event {
	if a.completed {
		return nil
	}
	a.completed = true

	events := make([]Event, 0, a.Len())
	for _, s := range a.slots {
		for _, ev := range s.events {
			ev.ID = uuid.NewString()
			events = append(events, ev)
		}
	}
	a.slots = nil
	a.index = nil
	return events
}

// Discard closes the accumulator without producing events. Used when the
// command failed and its mutations were rolled back.
func (a *Accumulator) Discard() {
	a.completed = true
	a.slots = nil
	a.index = nil
}
