// Package auth carries the resolved tenant and acting member of a request.
package auth

import "context"

type contextKey struct{}

type AuthContext struct {
	TenantID string
	MemberID string
	IsAdmin  bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func TenantID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.TenantID
}

// MemberID is empty when the request names no acting member.
func MemberID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.MemberID
}

func IsAdmin(ctx context.Context) bool {
	ac, _ := FromContext(ctx)
	return ac.IsAdmin
}
