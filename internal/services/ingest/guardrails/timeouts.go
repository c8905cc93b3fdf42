// Package guardrails holds cross cutting safety helpers for the ingest pipeline
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for a single file.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// File is the overall budget for one file across all attempts
	File time.Duration

	// Capture caps reading the file from the source
	Capture time.Duration

	// DB caps each postgres transaction
	DB time.Duration

	// Sink caps the mirror writes
	Sink time.Duration
}

// WithFile returns a context limited by the file budget without extending any parent deadline
func WithFile(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.File)
}

// ForCapture returns a sub context for the capture read
func ForCapture(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Capture)
}

// ForDB returns a sub context for one transaction
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// ForSink returns a sub context for the mirror writes
func ForSink(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Sink)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout takes the tighter of d and the parent's remainder; zero d just adds a cancel
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
