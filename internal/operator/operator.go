// Package operator carries the signed-in operator explicitly through the core.
package operator

import "context"

// Operator is the session object handed to the resolver, the ledger and the
// scan controller. CanEdit is supplied by the capability gate and trusted as is.
type Operator struct {
	ID       string
	Name     string
	ChurchID string
	CanEdit  bool
}

type ctxKey struct{}

// WithOperator stores op on ctx for the HTTP layer; the core takes Operator as
// a parameter rather than reading it from ctx.
func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, ctxKey{}, op)
}

// From returns the operator stored by WithOperator.
func From(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(ctxKey{}).(Operator)
	return op, ok
}
