package providers

import "context"

type deliberationIDKey struct{}

// WithDeliberationID tags a context with the deliberation it belongs to.
// Every provider call made for one council run then carries the same
// correlation ID, which is what makes a three-stage run traceable across
// a dozen upstream requests.
func WithDeliberationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliberationIDKey{}, id)
}

// DeliberationID returns the deliberation ID carried by ctx, or "" when the
// call is not part of a council run (title generation, probes).
func DeliberationID(ctx context.Context) string {
	id, _ := ctx.Value(deliberationIDKey{}).(string)
	return id
}
