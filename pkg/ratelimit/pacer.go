package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Pacer inserts a delay between consecutive transfer chunks
type Pacer interface {
	Pause(ctx context.Context) error
}

// RandomPause sleeps for a uniformly random duration in [Min, Max]
type RandomPause struct {
	Min time.Duration
	Max time.Duration

	// Sleep replaces the timer wait; nil means a real, cancellable sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRandomPause returns a pacer for the given bounds, swapping them if reversed
func NewRandomPause(min, max time.Duration) *RandomPause {
	if max < min {
		min, max = max, min
	}
	return &RandomPause{Min: min, Max: max}
}

// Next picks the next pause duration
func (p *RandomPause) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)+1))
}

// Pause waits for a random interval or until ctx is done
func (p *RandomPause) Pause(ctx context.Context) error {
	d := p.Next()
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoPause is a Pacer that never waits
type NoPause struct{}

func (NoPause) Pause(ctx context.Context) error { return ctx.Err() }
