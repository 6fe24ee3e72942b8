package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstant(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	_, err := NewConstant(0)
	a.Error(err)

	s, err := NewConstant(100)
	require.NoError(t, err)
	at, stop := s.Next(0)
	a.Zero(at)
	a.False(stop)
	at, _ = s.Next(250)
	a.Equal(2500*time.Millisecond, at)
}

func TestLine(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	// 0 -> 200 rps over 10s: 1000 exchanges in total
	s, err := NewLine(0, 200, 10*time.Second)
	require.NoError(t, err)
	at, _ := s.Next(1000)
	a.InDelta(10*time.Second, at, float64(time.Millisecond))
	at, _ = s.Next(250)
	a.InDelta(5*time.Second, at, float64(time.Millisecond))

	flat, err := NewLine(50, 50, time.Second)
	require.NoError(t, err)
	at, _ = flat.Next(50)
	a.Equal(time.Second, at)

	_, err = NewLine(0, 0, time.Second)
	a.Error(err)

	// falling line never reaches exchange 1000
	down, err := NewLine(100, 0, time.Second)
	require.NoError(t, err)
	_, stop := down.Next(1000)
	a.True(stop)
}

func TestLimiters(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	s, err := NewConstant(10)
	require.NoError(t, err)

	cl := NewCountLimiter(s, 3)
	_, stop := cl.Next(2)
	a.False(stop)
	_, stop = cl.Next(3)
	a.True(stop)

	dl := NewDurationLimiter(s, time.Second)
	_, stop = dl.Next(10)
	a.False(stop)
	_, stop = dl.Next(11)
	a.True(stop)
}

func TestWait(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	s, err := NewConstant(1000)
	require.NoError(t, err)
	begin := time.Now()
	a.True(Wait(context.Background(), s, begin, 20))
	a.GreaterOrEqual(time.Since(begin), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.False(Wait(ctx, s, time.Now(), 1000))
	a.False(Wait(context.Background(), NewCountLimiter(Unlimited{}, 1), begin, 1))
}
