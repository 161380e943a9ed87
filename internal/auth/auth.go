package auth

import (
	"context"
	"fmt"
	"strings"

	"clinic-service/internal/apperr"
)

// Role is the capability class of an authenticated principal
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RolePharmacist Role = "pharmacist"
)

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePharmacist:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q: %w", s, apperr.ErrUnauthenticated)
}

// Principal is the caller attached to every request by the authentication gate
type Principal struct {
	ID   int64
	Role Role
}

type ctxKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal attached to ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
