package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const runIDKey ctxKey = "run_id"

// ContextWithRunID stores the batch run ID in the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run ID from context if present.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the component logger enriched with the run ID carried by ctx.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	logger := WithComponent(component)
	if rid := RunIDFromContext(ctx); rid != "" {
		return logger.With().Str("run_id", rid).Logger()
	}
	return logger
}

// ForAccount adds the account field used by every per-account log line.
func ForAccount(ctx context.Context, component, account string) zerolog.Logger {
	l := FromContext(ctx, component)
	return l.With().Str("account", account).Logger()
}
