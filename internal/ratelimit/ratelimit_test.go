package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{name: "burst allows initial requests", rps: 1, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", rps: 1, burst: 2, calls: 5, wantPass: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for range tt.calls {
				if rl.Allow("guest-a") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	require.True(t, rl.Allow("usr-1"))
	assert.False(t, rl.Allow("usr-1"))
	assert.True(t, rl.Allow("usr-2"))
}

func TestKeyedRateLimiter_WaitContextCanceled(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	rl.Allow("usr-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx, "usr-1"))
}

func TestKeyedRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := New(1, 1, WithIdleTTL(time.Hour))
	defer rl.Stop()

	rl.Allow("usr-1")
	rl.Allow("usr-2")
	require.Equal(t, 2, rl.Len())

	rl.evict(time.Now().Add(30 * time.Minute))
	assert.Equal(t, 2, rl.Len())

	rl.evict(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, rl.Len())

	// An evicted key starts over with a full bucket.
	assert.True(t, rl.Allow("usr-1"))
}
