// Package limiter bounds how much work a pipeline stage runs at once.
//
// A Limiter is a weighted semaphore that also tracks how many permits are
// held and the highest number held at any moment. Each stage gets its own
// Limiter from the caller; nothing here is global.
package limiter

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// Limiter hands out at most Size permits at a time.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a Limiter with n permits. n must be positive.
func New(n int) (*Limiter, error) {
	if n <= 0 {
		return nil, fmt.Errorf("limiter size must be positive, got %d", n)
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(n)),
		size: int64(n),
	}, nil
}

// Acquire blocks until w permits are available or ctx is done. Requests for
// more than Size permits are clamped to Size so they cannot block forever.
// It returns the number of permits actually taken, which must be passed to
// Release.
func (l *Limiter) Acquire(ctx context.Context, w int64) (int64, error) {
	w = l.clamp(w)
	if err := l.sem.Acquire(ctx, w); err != nil {
		return 0, err
	}

	cur := l.inFlight.Add(w)
	for {
		peak := l.peak.Load()
		if cur <= peak || l.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	return w, nil
}

// Release returns w permits taken by Acquire.
func (l *Limiter) Release(w int64) {
	if w <= 0 {
		return
	}
	l.inFlight.Sub(w)
	l.sem.Release(w)
}

// Do runs fn while holding w permits.
func (l *Limiter) Do(ctx context.Context, w int64, fn func() error) error {
	held, err := l.Acquire(ctx, w)
	if err != nil {
		return err
	}
	defer l.Release(held)
	return fn()
}

// InFlight reports the permits currently held.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Peak reports the most permits ever held at once.
func (l *Limiter) Peak() int64 { return l.peak.Load() }

// Size reports the capacity.
func (l *Limiter) Size() int64 { return l.size }

func (l *Limiter) clamp(w int64) int64 {
	switch {
	case w < 1:
		return 1
	case w > l.size:
		return l.size
	}
	return w
}
