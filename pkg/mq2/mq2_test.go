package mq2

import (
	"context"
	"errors"
	"sync"
	"time"
)

// scriptedSource returns samples from a script, repeating the last one.
type scriptedSource struct {
	samples []int
	err     error
	reads   int
	begins  int
}

func constant(v int) *scriptedSource { return &scriptedSource{samples: []int{v}} }

func (s *scriptedSource) Begin() error {
	s.begins++
	return nil
}

func (s *scriptedSource) Sample(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	i := s.reads
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	s.reads++
	return s.samples[i], nil
}

func (s *scriptedSource) Millivolts(raw int) int { return raw * 1100 / 1023 }

var errBus = errors.New("bus error")

// fakeClock advances only when Sleep or Advance is called.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	c.mu.Lock()
	c.slept += d
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
