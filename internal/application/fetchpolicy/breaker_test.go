package fetchpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"courtadmin/internal/domain/failure"
)

// TestBreaker_TripsAtThreshold verifies five failures within the cooldown block the next call.
func TestBreaker_TripsAtThreshold(t *testing.T) {
	b := NewBreaker(5, 5*time.Minute)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		assert.NoError(t, b.Allow(now))
		b.RecordFailure(now.Add(time.Duration(i) * time.Minute))
	}
	assert.NoError(t, b.Allow(now.Add(4*time.Minute)))
	b.RecordFailure(now.Add(4 * time.Minute))

	assert.ErrorIs(t, b.Allow(now.Add(5*time.Minute)), failure.ErrCircuitOpen)
	assert.Equal(t, 5, b.Snapshot().Count)
}

// TestBreaker_ResetsAfterCooldown verifies the counter is zero once the cooldown elapses.
func TestBreaker_ResetsAfterCooldown(t *testing.T) {
	b := NewBreaker(5, 5*time.Minute)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now)
	}

	assert.ErrorIs(t, b.Allow(now.Add(5*time.Minute-time.Second)), failure.ErrCircuitOpen)
	assert.NoError(t, b.Allow(now.Add(5*time.Minute)))
	assert.Equal(t, 0, b.Snapshot().Count)
}

func TestBreaker_SuccessClears(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	now := time.Now()
	b.RecordFailure(now)
	b.RecordSuccess()
	b.RecordFailure(now)
	assert.NoError(t, b.Allow(now))
}

// TestBreaker_StaleFailuresDoNotAccumulate verifies failures spread over more than the cooldown never trip.
func TestBreaker_StaleFailuresDoNotAccumulate(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		b.RecordFailure(now.Add(time.Duration(i) * 61 * time.Second))
	}
	assert.NoError(t, b.Allow(now.Add(5*61*time.Second+30*time.Second)))
	assert.Equal(t, 1, b.Snapshot().Count)
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, DefaultThreshold, b.threshold)
	assert.Equal(t, DefaultCooldown, b.cooldown)
}
