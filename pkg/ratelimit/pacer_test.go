package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPauseBounds(t *testing.T) {
	p := NewRandomPause(5*time.Second, 30*time.Second)
	for i := 0; i < 1000; i++ {
		d := p.Next()
		require.GreaterOrEqual(t, d, 5*time.Second)
		require.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestRandomPauseSwappedAndFixed(t *testing.T) {
	p := NewRandomPause(3*time.Second, time.Second)
	assert.Equal(t, time.Second, p.Min)
	assert.Equal(t, 3*time.Second, p.Max)

	fixed := &RandomPause{Min: 2 * time.Second, Max: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.Next())
}

func TestRandomPauseUsesSleepHook(t *testing.T) {
	var got []time.Duration
	p := &RandomPause{
		Min: time.Second,
		Max: 2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			got = append(got, d)
			return nil
		},
	}

	require.NoError(t, p.Pause(context.Background()))
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0], time.Second)
}

func TestRandomPauseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewRandomPause(time.Hour, time.Hour)
	start := time.Now()
	err := p.Pause(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, NoPause{}.Pause(ctx), context.Canceled)
	assert.NoError(t, NoPause{}.Pause(context.Background()))
}
