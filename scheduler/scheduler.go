// Package scheduler paces bench exchanges.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Scheduler returns the offset from the start at which exchange n (counting
// from zero) is due. stop means no more exchanges.
type Scheduler interface {
	Next(n int64) (at time.Duration, stop bool)
}

type CountLimiter struct {
	s     Scheduler
	limit int64
}

func NewCountLimiter(s Scheduler, limit int64) CountLimiter {
	return CountLimiter{s, limit}
}

func (cl CountLimiter) Next(n int64) (time.Duration, bool) {
	if n >= cl.limit {
		return 0, true
	}
	return cl.s.Next(n)
}

// DurationLimiter stops once exchanges would be due after d.
type DurationLimiter struct {
	s Scheduler
	d time.Duration
}

func NewDurationLimiter(s Scheduler, d time.Duration) DurationLimiter {
	return DurationLimiter{s, d}
}

func (dl DurationLimiter) Next(n int64) (time.Duration, bool) {
	at, stop := dl.s.Next(n)
	return at, stop || at > dl.d
}

// Constant spreads exchanges evenly, freq per second.
type Constant struct {
	interval time.Duration
}

func NewConstant(freq uint64) (Constant, error) {
	if freq == 0 {
		return Constant{}, fmt.Errorf("freq must be positive")
	}
	return Constant{time.Second / time.Duration(freq)}, nil
}

func (cp Constant) Next(n int64) (time.Duration, bool) {
	return time.Duration(n) * cp.interval, false
}

// Unlimited makes every exchange due at once.
type Unlimited struct{}

func (Unlimited) Next(int64) (time.Duration, bool) {
	return 0, false
}

// Line raises the rate linearly from one value to another over d.
type Line struct {
	b          float64
	twoA       float64
	bSquare    float64
	bilionDivA float64
}

func NewLine(from, to float64, d time.Duration) (Scheduler, error) {
	if from < 0 || to < 0 || d <= 0 {
		return nil, fmt.Errorf("invalid line %v -> %v over %s", from, to, d)
	}
	if from == to {
		if from == 0 {
			return nil, fmt.Errorf("zero rate")
		}
		return Constant{time.Duration(float64(time.Second) / from)}, nil
	}
	a := (to - from) / d.Seconds()
	return Line{
		b:          from,
		twoA:       2 * a,
		bSquare:    from * from,
		bilionDivA: 1e9 / a,
	}, nil
}

// Next solves a*t*t/2 + b*t = n for t.
func (cp Line) Next(n int64) (time.Duration, bool) {
	d := cp.twoA*float64(n) + cp.bSquare
	if d < 0 {
		// скорость падает до нуля раньше, чем будет отправлен n-й запрос
		return 0, true
	}
	return time.Duration((math.Sqrt(d) - cp.b) * cp.bilionDivA), false
}

// Wait sleeps until exchange n is due relative to begin. It returns false
// when the schedule is over or ctx is done.
func Wait(ctx context.Context, s Scheduler, begin time.Time, n int64) bool {
	at, stop := s.Next(n)
	if stop {
		return false
	}
	d := time.Until(begin.Add(at))
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
