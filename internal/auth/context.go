package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrForbidden is returned when the caller may not perform an operation.
var ErrForbidden = errors.New("operation requires an administrator")

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	UID   string
	Email string
	Admin bool
}

// ContextWithIdentity returns a new context that carries the authenticated caller.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated caller from the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return Identity{}, false
	}
	return identity, true
}

// EnforceAdmin ensures the authenticated caller, when present, is an
// administrator. Contexts without an identity pass.
func EnforceAdmin(ctx context.Context) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	if !identity.Admin {
		return ErrForbidden
	}
	return nil
}
