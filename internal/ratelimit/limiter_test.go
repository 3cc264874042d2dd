package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenLimiter returns a limiter whose clock only moves when *now does.
func frozenLimiter(rate float64, burst int, now *time.Time) *Limiter {
	l := NewLimiter(rate, burst)
	l.nowFunc = func() time.Time { return *now }
	return l
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)
	require.NotNil(t, l)
	assert.Equal(t, 10.0, l.rate)
	assert.Equal(t, 5, l.burst)
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("key1"), "request %d is within the burst", i+1)
	}
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := NewLimiter(1.0, 2)

	l.Allow("key1")
	l.Allow("key1")

	assert.False(t, l.Allow("key1"), "request after burst exhaustion is rejected")
}

func TestAllow_RefillAfterWait(t *testing.T) {
	now := time.Now()
	l := frozenLimiter(10.0, 2, &now) // 10 tokens/sec

	l.Allow("key1")
	l.Allow("key1")
	assert.False(t, l.Allow("key1"))

	// 200ms at 10 tokens/sec refills 2 tokens.
	now = now.Add(200 * time.Millisecond)
	assert.True(t, l.Allow("key1"))
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1.0, 1)

	l.Allow("key1")
	assert.False(t, l.Allow("key1"), "key1 is exhausted")
	assert.True(t, l.Allow("key2"), "key2 has its own bucket")
}

func TestAllow_BurstDoesNotExceedMax(t *testing.T) {
	now := time.Now()
	l := frozenLimiter(100.0, 3, &now)

	l.Allow("key1")
	l.Allow("key1")
	l.Allow("key1")

	// Ten seconds would refill 1000 tokens uncapped.
	now = now.Add(10 * time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("key1"), "request %d after refill", i+1)
	}
	assert.False(t, l.Allow("key1"), "refill is capped at the burst")
}

func TestAllow_PartialTokenRefill(t *testing.T) {
	now := time.Now()
	l := frozenLimiter(2.0, 5, &now)

	l.Allow("key1")
	l.Allow("key1")
	l.Allow("key1")

	// 2 tokens left plus 0.5 refilled.
	now = now.Add(250 * time.Millisecond)
	assert.True(t, l.Allow("key1"))
}

func TestAllow_ZeroRate(t *testing.T) {
	l := NewLimiter(0.0, 2)

	assert.True(t, l.Allow("key1"), "first request uses the initial burst")
	assert.True(t, l.Allow("key1"), "second request uses the initial burst")
	assert.False(t, l.Allow("key1"), "a zero rate never refills")
}

func TestAllow_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(1000.0, 100)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent-key")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}

	// Roughly the burst, with slack for refill during the run.
	assert.InDelta(t, 100, count, 10)
}

func TestPrune(t *testing.T) {
	now := time.Now()
	l := frozenLimiter(1.0, 1, &now)

	l.Allow("old")
	now = now.Add(time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Prune(30*time.Second))
	assert.Equal(t, 1, l.Len())

	// A pruned key starts over with a full bucket.
	assert.True(t, l.Allow("old"))
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool  string
		burst int
	}{
		{"metrosim_generate", 3},
		{"metrosim_clear_agents", 3},
		{"metrosim_write_input", 3},
		{"metrosim_ingest", 3},
		{"metrosim_job_status", 20},
		{"metrosim_run_status", 10},
	}

	assert.Len(t, limiters, len(tests))
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			limiter, ok := limiters[tt.tool]
			require.True(t, ok, "missing rate limiter for tool %s", tt.tool)
			assert.Equal(t, tt.burst, limiter.burst)
		})
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters()

	assert.NoError(t, CheckLimit(limiters, "metrosim_run_status"))
	assert.NoError(t, CheckLimit(limiters, "unknown_tool"), "unknown tools are not limited")

	for i := 0; i < 3; i++ {
		require.NoError(t, CheckLimit(limiters, "metrosim_generate"), "request %d", i+1)
	}
	assert.Error(t, CheckLimit(limiters, "metrosim_generate"), "burst exhausted")
}
