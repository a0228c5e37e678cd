package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_TryConsume(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryConsume("c1", "message", 3, time.Second, now.Add(time.Duration(i)*time.Millisecond)),
			"expected call %d to be allowed", i+1)
	}

	assert.False(t, l.TryConsume("c1", "message", 3, time.Second, now.Add(10*time.Millisecond)),
		"expected 4th call within the window to be denied")

	// past the window, events have aged out
	assert.True(t, l.TryConsume("c1", "message", 3, time.Second, now.Add(1100*time.Millisecond)),
		"expected a call after the window to be allowed")
}

func TestLimiter_DenialDoesNotMutate(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	assert.True(t, l.TryConsume("c1", "join", 1, time.Second, now))

	// repeated denials must not extend the window
	for i := 0; i < 5; i++ {
		assert.False(t, l.TryConsume("c1", "join", 1, time.Second, now.Add(500*time.Millisecond)))
	}

	assert.True(t, l.TryConsume("c1", "join", 1, time.Second, now.Add(1100*time.Millisecond)),
		"expected the original event to age out regardless of denied attempts")
}

func TestLimiter_SlidingNotFixedBucket(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	// two events late in one "bucket" plus two right after must not pass a
	// limit of 2 the way a counter-reset-on-tick limiter would
	assert.True(t, l.TryConsume("c1", "message", 2, time.Second, now.Add(900*time.Millisecond)))
	assert.True(t, l.TryConsume("c1", "message", 2, time.Second, now.Add(950*time.Millisecond)))
	assert.False(t, l.TryConsume("c1", "message", 2, time.Second, now.Add(1050*time.Millisecond)),
		"expected burst straddling the boundary to be denied")
}

func TestLimiter_CategoriesIndependent(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	assert.True(t, l.TryConsume("c1", "message", 1, time.Second, now))
	assert.False(t, l.TryConsume("c1", "message", 1, time.Second, now))
	assert.True(t, l.TryConsume("c1", "typing", 1, time.Second, now),
		"expected categories to be tracked independently")
}

func TestLimiter_ConnectionsIndependent(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	assert.True(t, l.TryConsume("c1", "message", 1, time.Second, now))
	assert.True(t, l.TryConsume("c2", "message", 1, time.Second, now),
		"expected connections to be tracked independently")
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter()
	now := time.Now()

	l.TryConsume("c1", "message", 1, time.Second, now)
	assert.False(t, l.TryConsume("c1", "message", 1, time.Second, now))

	l.Reset("c1")
	assert.True(t, l.TryConsume("c1", "message", 1, time.Second, now),
		"expected reset to clear the connection's windows")
}
