package shared

import "context"

// Role names understood by the pipeline. Authentication itself happens upstream.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity describes the authenticated caller forwarded by the gateway.
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller may run back-office operations.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
