// Package ratelimit provides per-key token buckets for the MCP tools and the
// HTTP job API.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a set of token buckets, one per key, sharing a refill rate and
// a burst size. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity, also the starting balance
	nowFunc func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether there was one.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastSeen: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastSeen = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets untouched for longer than idle and returns how many
// were dropped. A dropped key starts again with a full burst.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool limits. Tools that start
// jobs are tighter than the read-only status tools.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"metrosim_generate":     NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"metrosim_clear_agents": NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"metrosim_write_input":  NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"metrosim_ingest":       NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"metrosim_job_status":   NewLimiter(2.0, 20),      // 120/minute, burst 20
		"metrosim_run_status":   NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// CheckLimit returns an error when toolName is over its limit.
// Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
