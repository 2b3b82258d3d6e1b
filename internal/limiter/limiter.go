// Package limiter defines interfaces and implementations for registration rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter counts credential issuance per origin over a sliding window.
type Limiter interface {
	// Allow reports whether origin may register now and, if not, a retry-after hint.
	Allow(ctx context.Context, originHash []byte) (bool, time.Duration, error)
	// Record appends a registration attempt for origin.
	Record(ctx context.Context, originHash []byte) error
}
