package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "run_trigger"

// Trigger sources recorded on batch results.
const (
	TriggerHTTP     = "http"
	TriggerInterval = "interval"
	TriggerCLI      = "cli"
)

// ContextWithTrigger records what started a run.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// TriggerFromContext returns the trigger recorded by ContextWithTrigger.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		return v
	}
	return ""
}
