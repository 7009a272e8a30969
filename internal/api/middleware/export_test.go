package middleware

import "time"

// SetClock pins the rate limiter's clock for tests.
func (rl *RateLimit) SetClock(now func() time.Time) {
	rl.now = now
}
