package auth

import (
	"context"
	"errors"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	ClientID string
	Role     string
}

var ErrNoIdentity = errors.New("auth: no identity in context")

type identityKey struct{}

func WithIdentity(ctx context.Context, clientID, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{ClientID: clientID, Role: role})
}

// IdentityFrom returns the caller stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func ClientID(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.ClientID != "" {
		return id.ClientID, nil
	}
	return "", ErrNoIdentity
}

func Role(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.Role != "" {
		return id.Role, nil
	}
	return "", ErrNoIdentity
}
