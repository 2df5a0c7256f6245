// Package identity carries the authenticated caller of a request.
package identity

import "context"

// Identity names a caller. The zero value is the anonymous caller.
type Identity string

// Anonymous is used for requests that carry no credentials.
const Anonymous Identity = ""

func (i Identity) String() string {
	if i == Anonymous {
		return "<anonymous>"
	}
	return string(i)
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, caller Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored in ctx, or Anonymous.
func CallerFrom(ctx context.Context) Identity {
	caller, ok := ctx.Value(callerKey{}).(Identity)
	if !ok {
		return Anonymous
	}
	return caller
}
