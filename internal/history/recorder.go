package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-twin/internal/notify"
)

// Logger defines the logging interface used by the recorder.
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

// Recorder is a notify.Listener writing DATA events to a Repository.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder for repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Patterns returns the topic patterns the recorder should be subscribed to.
func (r *Recorder) Patterns() []string {
	return []string{string(notify.EventData) + "/#"}
}

// Notify implements notify.Listener.
func (r *Recorder) Notify(ctx context.Context, ev notify.Event) error {
	if ev.Type != notify.EventData {
		return nil
	}
	return r.repo.Record(ctx, Entry{
		Provider:   ev.Provider,
		Service:    ev.Service,
		Resource:   ev.Resource,
		Model:      ev.Model,
		ValueKind:  ev.ValueKind,
		Value:      ev.NewValue,
		ObservedAt: ev.Timestamp,
		EventID:    ev.ID,
	})
}

// RunRetention prunes entries older than keep every interval until ctx is
// done.
func (r *Recorder) RunRetention(ctx context.Context, keep, interval time.Duration) {
	if keep <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.repo.Prune(ctx, keep)
			if err != nil {
				r.logger.Warn("history prune failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("history pruned", "rows", n)
			}
		}
	}
}
