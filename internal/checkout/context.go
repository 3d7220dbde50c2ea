package checkout

import "context"

type ctxKey int

const traceKey ctxKey = iota

// WithTraceID attaches a request trace id that ends up on emitted events.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey).(string)
	return id
}
