package identity

import (
	"context"
	"errors"
)

// ErrNoContext is returned by FromContext outside any WithEnvelope scope.
// There is no anonymous or default identity: no envelope, no evaluation.
var ErrNoContext = errors.New("identity: no identity scope established - execution denied")

// ErrDirectBind is returned by Bind. Mutating the ambient envelope is
// forbidden; the only legal bind is WithEnvelope at the request boundary.
var ErrDirectBind = errors.New("identity: direct bind is forbidden, use WithEnvelope at the request boundary")

type ctxKey struct{}

// WithEnvelope establishes env as the ambient identity for the returned
// context. Only the request boundary should call this; downstream code
// reads with FromContext. The envelope is copied in, so later mutation of
// the caller's value never leaks into the flow.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	bound := env.clone()
	return context.WithValue(ctx, ctxKey{}, &bound)
}

// FromContext returns a copy of the envelope bound to ctx.
// Fail-closed: returns ErrNoContext when no scope is established.
func FromContext(ctx context.Context) (Envelope, error) {
	bound, ok := ctx.Value(ctxKey{}).(*Envelope)
	if !ok || bound == nil {
		return Envelope{}, ErrNoContext
	}
	return bound.clone(), nil
}

// Bind always fails.
//
// Deprecated: identity scope ends with the context that carries it; there is
// nothing to set. Use WithEnvelope at the request boundary.
func Bind(Envelope) error {
	return ErrDirectBind
}
