package history

import (
	"context"
	"errors"
	"time"
)

// ErrPathRequired is returned when a query or record lacks a resource path.
var ErrPathRequired = errors.New("history: provider, service and resource are required")

// Entry is one recorded value of a resource.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	Provider string `json:"provider"`
	Service  string `json:"service"`
	Resource string `json:"resource"`
	Model    string `json:"model,omitempty"`

	// ValueKind is the resource kind name at the time of the change.
	ValueKind string `json:"value_kind,omitempty"`

	// Value is the decoded JSON value; nil for a null value.
	Value any `json:"value"`

	// ObservedAt is the value timestamp (UTC).
	ObservedAt time.Time `json:"observed_at"`

	// EventID is the notification that produced the row.
	EventID string `json:"event_id,omitempty"`
}

// Range bounds a history query. Zero times are open bounds.
type Range struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Repository stores and retrieves resource value history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists one entry.
	Record(ctx context.Context, e Entry) error

	// Query returns entries of one resource, newest first.
	Query(ctx context.Context, provider, service, resource string, r Range) ([]Entry, error)

	// Prune deletes entries observed more than olderThan ago and returns
	// how many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
