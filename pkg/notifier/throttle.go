package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttled drops sends that exceed a token bucket budget.
type Throttled struct {
	next    Service
	limiter *rate.Limiter
}

// Throttle allows burst sends and then one per interval. A dropped send
// returns ErrThrottled without reaching next.
func Throttle(next Service, interval time.Duration, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Send implements Service.
func (t *Throttled) Send(ctx context.Context, text string) error {
	if !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.next.Send(ctx, text)
}
