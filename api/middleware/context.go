package middleware

import "context"

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxEmail    contextKey = "user_email"
	ctxAccessID contextKey = "access_id"
)

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func EmailFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxEmail)
}

// AccessIDFromContext returns the JWT id of the current access token.
func AccessIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxAccessID)
}

// WithUser injects the authenticated shopper into ctx. Tests use it to skip
// token minting.
func WithUser(ctx context.Context, userID, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxEmail, email)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
