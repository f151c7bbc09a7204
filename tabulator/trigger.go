package tabulator

import (
	"context"

	"github.com/sdzerobot/sdzerobot/history"
)

type triggerKey struct{}

// WithTrigger records what started the runs made with ctx
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFromContext returns the trigger set by WithTrigger, or manual
func TriggerFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return history.TriggerManual
}
