// Package session scopes storage operations to store sessions and
// transactions. It decides whether an operation runs inside an externally
// owned session, an internally opened one, or none at all, and guarantees an
// internally opened session is ended exactly once.
package session

import (
	"context"
	"fmt"
)

// Session is one store session. Bind attaches it to a context so storage
// operations issued inside the scope run on it.
type Session interface {
	Bind(ctx context.Context) context.Context
	// WithTransaction runs fn as a transaction on the session: committed on
	// success, aborted on error or panic.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// End releases the session. Ownership rule: only whoever started the
	// session calls End.
	End(ctx context.Context)
}

// Manager starts sessions.
type Manager interface {
	StartSession(ctx context.Context) (Session, error)
}

// WithScope runs body in the right session scope:
//
//   - an external session is supplied: body runs inside it and the session is
//     NOT ended here — it belongs to whoever created it;
//   - no external session but the scope must be transactional: a session is
//     opened internally, body runs as a transaction with the configured
//     read/write concern, and the session is ended exactly once whether body
//     fails or succeeds;
//   - neither: body runs with no session at all.
//
// The external check comes first, so an internal session is never started
// while an external one is present and no session can leak between owners.
func WithScope(ctx context.Context, mgr Manager, external Session, transactional bool, body func(ctx context.Context) error) error {
	if external != nil {
		return body(external.Bind(ctx))
	}
	if !transactional {
		return body(ctx)
	}

	sess, err := mgr.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.End(ctx)

	return sess.WithTransaction(ctx, body)
}
