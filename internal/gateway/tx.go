package gateway

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// Tx is what a command sees of the twin. It is valid only for the duration
// of the command and only on the context the command was given.
type Tx struct {
	ctx      context.Context
	registry *twin.Registry
	handle   *scope.Handle
	hooks    []func()
}

func newTx(ctx context.Context, registry *twin.Registry) *Tx {
	return &Tx{ctx: ctx, registry: registry, handle: scope.NewHandle(ctx)}
}

// Context returns the command's execution context.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Handle returns the command's session handle.
func (tx *Tx) Handle() *scope.Handle { return tx.handle }

// Registry returns the raw registry for packages that walk it directly,
// such as snapshot capture. Callers must not keep it past the command.
func (tx *Tx) Registry() *twin.Registry { return tx.registry }

// Twin returns the handle-checked view of the twin.
func (tx *Tx) Twin() *Twin {
	return &Twin{h: tx.handle.Derive(), reg: tx.registry}
}

// Models returns the builder entry point for models and providers.
func (tx *Tx) Models() *Models {
	return &Models{h: tx.handle.Derive(), reg: tx.registry}
}

// AfterCommit registers fn to run once the command has committed and its
// events were published. Hooks of a failed command never run.
func (tx *Tx) AfterCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

func (tx *Tx) runHooks(logger Logger) {
	for _, fn := range tx.hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("after-commit hook panicked", "panic", fmt.Sprint(rec))
				}
			}()
			fn()
		}()
	}
}
