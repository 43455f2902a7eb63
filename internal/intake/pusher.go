package intake

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-twin/internal/gateway"
)

// Logger defines the logging interface used by the pusher.
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

// Result reports how a batch landed.
type Result struct {
	// Changed counts updates that modified the twin.
	Changed int
	// Skipped counts updates that were idempotent no-ops, such as values
	// not newer than the stored one.
	Skipped int
}

// Pusher applies update batches through a gateway.
type Pusher struct {
	gw     *gateway.Gateway
	logger Logger
}

// NewPusher creates a pusher for gw.
func NewPusher(gw *gateway.Gateway) *Pusher {
	return &Pusher{gw: gw, logger: noopLogger{}}
}

// SetLogger sets the logger for the pusher.
func (p *Pusher) SetLogger(logger Logger) {
	p.logger = logger
}

// Push applies updates, in order, as one command. Any failing update fails
// the batch and leaves the twin untouched.
func (p *Pusher) Push(ctx context.Context, updates ...Update) *gateway.Future[Result] {
	return gateway.Execute(ctx, p.gw, "push", func(ctx context.Context, tx *gateway.Tx) (Result, error) {
		res, err := Apply(ctx, tx, updates...)
		if err != nil {
			p.logger.Debug("update batch rejected", "updates", len(updates), "error", err)
			return res, err
		}
		p.logger.Debug("update batch applied", "changed", res.Changed, "skipped", res.Skipped)
		return res, nil
	})
}

// Apply runs updates inside an existing command.
func Apply(ctx context.Context, tx *gateway.Tx, updates ...Update) (Result, error) {
	var res Result
	if len(updates) == 0 {
		return res, ErrEmptyBatch
	}
	for i, u := range updates {
		if err := u.Validate(); err != nil {
			return Result{}, fmt.Errorf("update %d: %w", i, err)
		}
	}

	tw := tx.Twin()
	for i, u := range updates {
		changed, err := u.apply(ctx, tw)
		if err != nil {
			_, prov, svc, rsc := u.Target()
			return Result{}, fmt.Errorf("update %d (%s/%s/%s): %w", i, prov, svc, rsc, err)
		}
		if changed {
			res.Changed++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}
