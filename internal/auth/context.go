package auth

import (
	"context"
	"sort"
)

// Principal is the authenticated caller with the permissions of its role.
type Principal struct {
	UserID      string
	Username    string
	RoleID      string
	Permissions map[string]bool
}

// HasPermission reports whether the principal's role grants key.
func (p Principal) HasPermission(key string) bool {
	return p.Permissions[key]
}

// PermissionKeys lists granted permission keys in sorted order.
func (p Principal) PermissionKeys() []string {
	keys := make([]string, 0, len(p.Permissions))
	for k, granted := range p.Permissions {
		if granted {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}
