package auth

import "context"

type contextKey string

const (
	contextKeyTenant  contextKey = "auth.tenant_id"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stamps the verified caller identity onto the request
// context. The middleware is the only writer; handlers read through
// the FromContext accessors.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyTenant, tenantID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// TenantIDFromContext returns the caller's tenant, or "" when the
// request was exempt from auth.
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyTenant)
	if tenantID, ok := value.(string); ok {
		return tenantID
	}
	return ""
}

// RoleFromContext returns the caller's role, tolerating a raw string
// value left by older token issuers.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext returns the token subject used as the audit
// actor.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}
