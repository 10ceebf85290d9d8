package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// ResultStore persists resolved outcomes. Implemented by Store; faked
// in tests.
type ResultStore interface {
	UpsertResult(ctx context.Context, id lookup.Identifier, res *lookup.Result) error
	Close() error
}

// Router streams terminal outcomes to their destination: results to the
// store, exhausted failures to the audit artifacts. A store write that
// fails even after the bounded sink retries is downgraded to an audit
// entry rather than aborting the batch.
type Router struct {
	Store  ResultStore
	Audit  *Audit
	Logger *slog.Logger
}

// AttemptFailed forwards a failed attempt to the error log.
func (r *Router) AttemptFailed(id lookup.Identifier, attempt int, f *lookup.Failure) {
	r.Audit.AttemptFailed(id, attempt, f)
}

// OutcomeFinal persists one terminal outcome. A returned error means a
// resolved result reached neither the store nor a retry path: it has
// been downgraded to the audit artifacts and the caller must account
// for it as a failure.
func (r *Router) OutcomeFinal(ctx context.Context, o *lookup.Outcome) error {
	if o.Succeeded() {
		err := r.Store.UpsertResult(ctx, o.Identifier, o.Result)
		if err == nil {
			return nil
		}
		r.Logger.Error("sink: outcome lost to store failure",
			"cmp", string(o.Identifier), "error", err)
		f := lookup.Failf(lookup.KindStoreWrite, "%v", err)
		r.Audit.AttemptFailed(o.Identifier, o.Attempts, f)
		r.Audit.Exhausted(o.Identifier)
		return f
	}
	r.Audit.Exhausted(o.Identifier)
	return nil
}

// Close shuts down the audit writers and the store connection.
func (r *Router) Close() {
	r.Audit.Close()
	if err := r.Store.Close(); err != nil {
		r.Logger.Warn("sink: close store", "error", err)
	}
}
