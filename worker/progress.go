package worker

import "context"

// Reporter emits an advisory progress update for the task being executed.
// Progress is never required for correctness; handlers call it on a
// best-effort basis and percent is non-decreasing by convention.
type Reporter func(message string, percent float64)

type reporterKeyT struct{}

var reporterKey reporterKeyT

// WithReporter embeds a progress reporter in a derived context.
func WithReporter(ctx context.Context, reporter Reporter) context.Context {
	return context.WithValue(ctx, reporterKey, reporter)
}

// Report invokes the reporter carried by ctx, if any.
func Report(ctx context.Context, message string, percent float64) {
	if reporter, ok := ctx.Value(reporterKey).(Reporter); ok && reporter != nil {
		reporter(message, percent)
	}
}
