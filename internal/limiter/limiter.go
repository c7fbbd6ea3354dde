// Package limiter defines interfaces and implementations for unlock attempt
// rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls vault unlock attempts and temporary lockouts. The scope
// string identifies what is being throttled (e.g. "unlock").
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, scope string) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, scope string) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, scope string) (bool, time.Duration, error)
}
