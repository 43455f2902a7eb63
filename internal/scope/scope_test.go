package scope

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestHandle_CheckValidSameContext(t *testing.T) {
	ctx := NewContext(context.Background())
	h := NewHandle(ctx)

	if err := h.CheckValid(ctx); err != nil {
		t.Fatalf("CheckValid() error = %v, want nil", err)
	}
}

func TestHandle_Invalidate(t *testing.T) {
	ctx := NewContext(context.Background())
	h := NewHandle(ctx)

	if !h.Invalidate() {
		t.Error("first Invalidate() = false, want true")
	}
	if h.Invalidate() {
		t.Error("second Invalidate() = true, want false")
	}

	if err := h.CheckValid(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("CheckValid() error = %v, want ErrInvalidState", err)
	}
	if h.Active() {
		t.Error("Active() = true after Invalidate")
	}
}

func TestHandle_CrossContextAlwaysFails(t *testing.T) {
	owner := NewContext(context.Background())
	h := NewHandle(owner)

	var wg sync.WaitGroup
	failures := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			other := NewContext(context.Background())
			failures <- h.CheckValid(other)
		}()
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		if !errors.Is(err, ErrCrossContextAccess) {
			t.Fatalf("CheckValid() from foreign context error = %v, want ErrCrossContextAccess", err)
		}
	}
}

func TestHandle_NoExecutionContext(t *testing.T) {
	h := NewHandle(context.Background())

	if err := h.CheckValid(context.Background()); !errors.Is(err, ErrCrossContextAccess) {
		t.Fatalf("CheckValid() error = %v, want ErrCrossContextAccess", err)
	}
}

func TestHandle_DeriveSharesFlag(t *testing.T) {
	ctx := NewContext(context.Background())
	parent := NewHandle(ctx)
	child := parent.Derive()

	parent.Invalidate()

	if err := child.CheckValid(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("child CheckValid() error = %v, want ErrInvalidState", err)
	}
	if child.Owner() != parent.Owner() {
		t.Errorf("child owner = %v, want %v", child.Owner(), parent.Owner())
	}
}

func TestOnce_Claim(t *testing.T) {
	var o Once
	if err := o.Claim(); err != nil {
		t.Fatalf("first Claim() error = %v", err)
	}
	if err := o.Claim(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("second Claim() error = %v, want ErrAlreadyBuilt", err)
	}
	if !o.Built() {
		t.Error("Built() = false after Claim")
	}
}

func TestExecutionFrom(t *testing.T) {
	if _, ok := ExecutionFrom(context.Background()); ok {
		t.Error("ExecutionFrom(background) ok = true")
	}

	id := NewExecID()
	got, ok := ExecutionFrom(WithExecution(context.Background(), id))
	if !ok || got != id {
		t.Errorf("ExecutionFrom() = %v, %v; want %v, true", got, ok, id)
	}
}
