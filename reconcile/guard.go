package reconcile

import "context"

// The recursion guard prevents the reconciliation cascade from re-entering
// itself: reconciling an invoice updates registrations and may emit a credit
// note, and both of those changes call back into Reconcile for the same
// invoice. The in-flight key set travels on the context, so it is scoped to
// one request's call tree; concurrent requests each carry their own set and
// are serialized by the invoice row lock instead.

type guardCtxKey struct{}

type inflight map[string]struct{}

// guarded runs fn unless key is already held by the current call tree, in
// which case it is a no-op and reports false. The key is released when fn
// returns, on panic paths included: a stuck key would permanently disable
// reconciliation for it.
func guarded(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	held, _ := ctx.Value(guardCtxKey{}).(inflight)
	if held == nil {
		held = inflight{}
		ctx = context.WithValue(ctx, guardCtxKey{}, held)
	} else if _, ok := held[key]; ok {
		return false, nil
	}
	held[key] = struct{}{}
	defer delete(held, key)
	return true, fn(ctx)
}
