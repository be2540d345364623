package rate

import (
	"context"
	"time"
)

// Limiter guards the login endpoint against credential stuffing. Keys
// are client IPs; the window is fixed, not sliding.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
