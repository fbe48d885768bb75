package http

import "time"

// rateLimiter caps inbound frames per connection using a fixed
// one-minute window. It is owned by a single read loop and needs no
// locking.
type rateLimiter struct {
	limit       int
	counter     int
	windowStart time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, windowStart: time.Now()}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if time.Since(r.windowStart) >= time.Minute {
		r.windowStart = time.Now()
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
