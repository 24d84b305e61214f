package gate

import "context"

type ctxKey string

const (
	ctxKeyClaims   ctxKey = "gate_claims"
	ctxKeyDecision ctxKey = "gate_decision"
	ctxKeyUser     ctxKey = "gate_user"
)

// WithClaims stores the decoded token claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the decoded token claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}

// WithDecision stores the route decision in the context.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, ctxKeyDecision, d)
}

// DecisionFromContext extracts the route decision from the context.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	v, ok := ctx.Value(ctxKeyDecision).(Decision)
	return v, ok
}

// WithUser stores the session user in the context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

// UserFromContext extracts the session user from the context.
func UserFromContext(ctx context.Context) *User {
	v, _ := ctx.Value(ctxKeyUser).(*User)
	return v
}
