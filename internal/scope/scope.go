package scope

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ExecID identifies one execution context (a gateway command run or a
// northbound client interaction). The zero value means "no context".
type ExecID uint64

// String implements fmt.Stringer.
func (id ExecID) String() string {
	return fmt.Sprintf("exec-%d", uint64(id))
}

var lastExecID atomic.Uint64

// NewExecID returns a process-unique execution context identifier.
func NewExecID() ExecID {
	return ExecID(lastExecID.Add(1))
}

type execKey struct{}

// WithExecution returns a copy of ctx bound to the given execution context.
func WithExecution(ctx context.Context, id ExecID) context.Context {
	return context.WithValue(ctx, execKey{}, id)
}

// NewContext returns a copy of ctx bound to a fresh execution context.
func NewContext(ctx context.Context) context.Context {
	return WithExecution(ctx, NewExecID())
}

// ExecutionFrom returns the execution context bound to ctx, if any.
func ExecutionFrom(ctx context.Context) (ExecID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(execKey{}).(ExecID)
	return id, ok && id != 0
}

// Handle is a capability bound to an execution context and an active flag.
//
// Thread Safety:
//   - CheckValid and Invalidate may be called from any goroutine; the flag is
//     atomic and needs no further locking.
type Handle struct {
	active *atomic.Bool
	owner  ExecID
}

// NewHandle creates an active handle owned by the execution context bound to
// ctx. A ctx without an execution context gets a handle no caller can use.
func NewHandle(ctx context.Context) *Handle {
	owner, _ := ExecutionFrom(ctx)
	flag := &atomic.Bool{}
	flag.Store(true)
	return &Handle{active: flag, owner: owner}
}

// Derive returns a handle sharing this handle's flag and owner. Invalidating
// either one invalidates both.
func (h *Handle) Derive() *Handle {
	return &Handle{active: h.active, owner: h.owner}
}

// Owner returns the execution context that created the handle.
func (h *Handle) Owner() ExecID {
	return h.owner
}

// Active reports whether the handle has not been invalidated.
func (h *Handle) Active() bool {
	return h.active.Load()
}

// CheckValid fails with ErrInvalidState if the handle was invalidated, and
// with ErrCrossContextAccess if ctx belongs to another execution context.
func (h *Handle) CheckValid(ctx context.Context) error {
	if !h.active.Load() {
		return ErrInvalidState
	}
	id, ok := ExecutionFrom(ctx)
	if !ok || h.owner == 0 || id != h.owner {
		return fmt.Errorf("%w: owner %s", ErrCrossContextAccess, h.owner)
	}
	return nil
}

// Invalidate marks the handle inactive. It is idempotent and reports
// whether this call was the one that deactivated the handle.
func (h *Handle) Invalidate() bool {
	return h.active.Swap(false)
}

// Once guards a builder's Build step so it runs at most once.
type Once struct {
	built atomic.Bool
}

// Claim marks the guarded step as done. It returns ErrAlreadyBuilt when the
// step has already been claimed.
func (o *Once) Claim() error {
	if !o.built.CompareAndSwap(false, true) {
		return ErrAlreadyBuilt
	}
	return nil
}

// Built reports whether Claim has succeeded.
func (o *Once) Built() bool {
	return o.built.Load()
}
