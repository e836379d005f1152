package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedDevices bounds the limiter table; it is reset when full
const maxTrackedDevices = 10000

// deviceLimiter keeps one token bucket per hardware ID
type deviceLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newDeviceLimiter returns a limiter that allows everything when limit is
// not positive
func newDeviceLimiter(limit rate.Limit, burst int) *deviceLimiter {
	if burst < 1 {
		burst = 1
	}
	return &deviceLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *deviceLimiter) Allow(hardwareID string) bool {
	if d.limit <= 0 {
		return true
	}

	d.mu.Lock()
	l, ok := d.limiters[hardwareID]
	if !ok {
		if len(d.limiters) >= maxTrackedDevices {
			d.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[hardwareID] = l
	}
	d.mu.Unlock()

	return l.Allow()
}
