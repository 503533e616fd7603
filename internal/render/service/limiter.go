package service

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNoJobSlot means every job slot stayed busy for the caller's whole wait
var ErrNoJobSlot = errors.New("no job slot available")

// JobLimiter bounds concurrently running jobs. Each job owns at most one browser
// process at a time, so slots are sized like the browser pool.
type JobLimiter struct {
	slots  chan struct{}
	active atomic.Int64
}

func NewJobLimiter(slots int) *JobLimiter {
	if slots < 1 {
		slots = 1
	}
	return &JobLimiter{slots: make(chan struct{}, slots)}
}

// Acquire blocks until a slot frees up or ctx is done. Call the returned func exactly once.
func (l *JobLimiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrNoJobSlot
	}

	l.active.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			l.active.Add(-1)
			<-l.slots
		}
	}, nil
}

// Capacity is the configured number of slots
func (l *JobLimiter) Capacity() int {
	return cap(l.slots)
}

// Active is the number of slots in use
func (l *JobLimiter) Active() int {
	return int(l.active.Load())
}
