// Package ratelimit throttles repeated warnings by counting events.
package ratelimit

import "sync"

// WarnLimiter lets one warning through, then suppresses the next skip
// warn-eligible events. It has no time dimension: under sustained pressure
// at most one warning is emitted per skip+1 events.
type WarnLimiter struct {
	mu      sync.Mutex
	skipped uint64
}

// New returns a limiter with its counter at zero.
func New() *WarnLimiter {
	return &WarnLimiter{}
}

// ShouldEmit reports whether the current warning should be surfaced. It
// resets the counter when it returns true and increments it otherwise.
// Lowering skip at runtime never strands the counter above the new limit.
func (l *WarnLimiter) ShouldEmit(skip uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.skipped >= skip {
		l.skipped = 0
		return true
	}
	l.skipped++
	return false
}

// Skipped returns the number of warnings suppressed since the last emission.
func (l *WarnLimiter) Skipped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}

// Reset zeroes the counter.
func (l *WarnLimiter) Reset() {
	l.mu.Lock()
	l.skipped = 0
	l.mu.Unlock()
}
