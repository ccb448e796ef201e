package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenDeny(t *testing.T) {
	l := NewLimiter(1, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(), "event %d within burst", i)
	}
	assert.False(t, l.Allow(), "bucket exhausted")
}

func TestRefill(t *testing.T) {
	l := NewLimiter(100, 1)

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow(), "tokens refill over time")
}

func TestBurstCap(t *testing.T) {
	l := NewLimiter(1000, 2)

	time.Sleep(20 * time.Millisecond)

	// Refill never exceeds the burst capacity.
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
