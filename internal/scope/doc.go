// Package scope binds twin access to an execution context and a liveness flag.
//
// Go has no goroutine identity, so an execution context is named explicitly:
// an ExecID is minted for every gateway command and for every northbound
// client interaction, and it travels inside context.Context. A Handle records
// the ExecID that created it together with a shared atomic "active" flag.
//
// # Rules
//
//   - Every operation through a Handle calls CheckValid(ctx) first.
//   - An inactive handle fails with ErrInvalidState.
//   - A ctx carrying a different ExecID fails with ErrCrossContextAccess.
//   - Invalidate is idempotent and cannot be undone.
//
// Both failures are programming errors in the integrating code. Callers must
// not retry them.
//
// # Usage
//
//	ctx = scope.NewContext(ctx)      // new interaction, new ExecID
//	h := scope.NewHandle(ctx)
//	defer h.Invalidate()
//
//	if err := h.CheckValid(ctx); err != nil {
//	    return err
//	}
package scope
