package backpressure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per identity in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates a limiter refilling rps tokens per second with
// the given burst capacity, and starts a background sweep of idle buckets.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go l.sweep()
	return l
}

// Allow reports whether identity has budget for one request.
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (bool, error) {
	return l.bucketFor(identity).Allow(), nil
}

func (l *MemoryLimiter) bucketFor(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// sweep removes buckets idle for over three minutes to bound memory.
func (l *MemoryLimiter) sweep() {
	for {
		time.Sleep(time.Minute)
		l.mu.Lock()
		for id, b := range l.buckets {
			if time.Since(b.lastSeen) > 3*time.Minute {
				delete(l.buckets, id)
			}
		}
		l.mu.Unlock()
	}
}
