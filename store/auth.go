package store

import "context"

// AuthGate reports whether storage access is currently granted.
type AuthGate interface {
	Authorized(ctx context.Context) bool
}

// AuthFunc adapts a function to AuthGate.
type AuthFunc func(ctx context.Context) bool

func (f AuthFunc) Authorized(ctx context.Context) bool {
	if f == nil {
		return false
	}
	return f(ctx)
}

// AlwaysAuthorized grants every operation.
var AlwaysAuthorized AuthGate = AuthFunc(func(context.Context) bool { return true })
