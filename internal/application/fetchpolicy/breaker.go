package fetchpolicy

import (
	"log/slog"
	"sync"
	"time"

	"courtadmin/internal/domain/failure"
)

// Default breaker settings.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 5 * time.Minute
)

// Counter is a point-in-time view of a breaker.
type Counter struct {
	Count       int
	LastFailure time.Time
}

// Breaker blocks calls after Threshold failures until Cooldown has passed
// since the last one, then starts counting from zero again.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	counter   Counter
}

// NewBreaker creates a breaker.
// PRE: threshold >= 1 and cooldown > 0 (defaults otherwise)
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed at now.
// POST: Returns failure.ErrCircuitOpen while count >= threshold within the cooldown;
// resets the counter to 0 once the cooldown has elapsed
func (b *Breaker) Allow(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expire(now)
	if b.counter.Count >= b.threshold {
		return failure.ErrCircuitOpen
	}
	return nil
}

// RecordFailure counts one failed fetch at now.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expire(now)
	b.counter.Count++
	b.counter.LastFailure = now
	if b.counter.Count == b.threshold {
		slog.Warn("circuit_opened", "failures", b.counter.Count, "cooldown", b.cooldown)
	}
}

// RecordSuccess clears the counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter = Counter{}
}

// Snapshot returns the current counter.
func (b *Breaker) Snapshot() Counter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counter
}

// expire resets the counter once the cooldown has elapsed. Caller holds mu.
func (b *Breaker) expire(now time.Time) {
	if b.counter.Count > 0 && now.Sub(b.counter.LastFailure) >= b.cooldown {
		b.counter = Counter{}
	}
}
