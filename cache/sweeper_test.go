package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	clock := newFakeClock()
	first := New[int](time.Second, WithClock(clock.Now))
	second := New[string](time.Second, WithClock(clock.Now))
	first.Set("a", 1)
	first.SetWithTTL("b", 2, time.Hour)
	second.Set("c", "x")

	s, err := NewSweeper(time.Minute, zerolog.Nop(), first, second)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Sweep())
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 0, second.Len())
}

func TestSweeper_StartStop(t *testing.T) {
	s, err := NewSweeper(0, zerolog.Nop(), New[int](time.Minute))
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
