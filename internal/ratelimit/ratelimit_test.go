package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldEmitEveryNthEvent(t *testing.T) {
	tests := []struct {
		name string
		skip uint64
		want []bool
	}{
		{name: "no skipping", skip: 0, want: []bool{true, true, true}},
		{name: "skip two", skip: 2, want: []bool{false, false, true, false, false, true}},
		{name: "skip one", skip: 1, want: []bool{false, true, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			got := make([]bool, 0, len(tt.want))
			for range tt.want {
				got = append(got, l.ShouldEmit(tt.skip))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldEmitAfterSkipLowered(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		assert.False(t, l.ShouldEmit(10))
	}
	assert.Equal(t, uint64(5), l.Skipped())

	// counter is already past the new limit: emit immediately
	assert.True(t, l.ShouldEmit(3))
	assert.Equal(t, uint64(0), l.Skipped())
}

func TestShouldEmitMaxSkip(t *testing.T) {
	l := New()
	l.skipped = ^uint64(0) - 1
	assert.False(t, l.ShouldEmit(^uint64(0)))
	assert.True(t, l.ShouldEmit(^uint64(0)))
	assert.Equal(t, uint64(0), l.Skipped())
}

func TestShouldEmitConcurrent(t *testing.T) {
	const (
		goroutines = 8
		perG       = 1000
		skip       = 9
	)
	l := New()
	var emitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				if l.ShouldEmit(skip) {
					emitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*perG/(skip+1)), emitted.Load())
	assert.Equal(t, uint64(0), l.Skipped())
}

func TestReset(t *testing.T) {
	l := New()
	l.ShouldEmit(5)
	l.ShouldEmit(5)
	l.Reset()
	assert.Equal(t, uint64(0), l.Skipped())
}
