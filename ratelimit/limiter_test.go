package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestLimiter_Rejects_Over_Limit(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(30, time.Minute, WithClock(clock.Now))

	// Given 30 sends inside one minute
	for i := 0; i < 30; i++ {
		req.True(limiter.Allow("alice"), "attempt %d", i+1)
		clock.Advance(time.Second)
	}

	// Then the 31st is rejected
	req.False(limiter.Allow("alice"))
	req.Equal(0, limiter.Remaining("alice"))

	// And other senders are unaffected
	req.True(limiter.Allow("bob"))
}

func TestLimiter_Window_Rolls(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(2, time.Minute, WithClock(clock.Now))

	req.True(limiter.Allow("alice"))
	clock.Advance(30 * time.Second)
	req.True(limiter.Allow("alice"))
	req.False(limiter.Allow("alice"))

	// When the first attempt leaves the window
	clock.Advance(31 * time.Second)

	// Then one slot is free again
	req.True(limiter.Allow("alice"))
	req.False(limiter.Allow("alice"))
}

func TestLimiter_Sweep_Forgets_Idle_Keys(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(5, time.Minute, WithClock(clock.Now))

	limiter.Allow("alice")
	limiter.Allow("bob")
	clock.Advance(2 * time.Minute)

	limiter.Sweep()

	req.Empty(limiter.hits)
	req.Equal(5, limiter.Remaining("alice"))
}
