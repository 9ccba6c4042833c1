package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugTraceKey struct{}

// EnableDebugMode marks ctx so that context aware log calls made with it are emitted at any level.
// The trace name is attached to those entries as the "debug_trace" field; an empty name picks a
// random one.
func EnableDebugMode(ctx context.Context, trace string) context.Context {
	if trace == "" {
		trace = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugTraceKey{}, trace)
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return DebugTrace(ctx) != ""
}

// DebugTrace returns the trace name attached by EnableDebugMode, or "" when there is none.
func DebugTrace(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	trace, _ := ctx.Value(debugTraceKey{}).(string)
	return trace
}
