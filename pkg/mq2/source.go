package mq2

import (
	"context"
	"time"
)

// SampleSource supplies raw ADC counts from the gas sensor channel.
type SampleSource interface {
	// Begin re-establishes the ADC configuration before a batch of reads.
	Begin() error
	Sample(ctx context.Context) (int, error)
}

// Voltmeter is implemented by sources that can translate a raw count into
// millivolts. It is only used for diagnostics.
type Voltmeter interface {
	Millivolts(raw int) int
}

// Clock abstracts wall time so throttling and settling delays can be tested.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// measure averages the resistance of n fresh samples taken delay apart and
// returns it together with the last raw count.
func measure(ctx context.Context, src SampleSource, div Divider, n int, delay time.Duration, clock Clock) (float64, int, error) {
	if n <= 0 {
		n = 1
	}
	if err := src.Begin(); err != nil {
		return 0, 0, err
	}
	var (
		mean float64
		raw  int
	)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := clock.Sleep(ctx, delay); err != nil {
				return 0, 0, err
			}
		}
		v, err := src.Sample(ctx)
		if err != nil {
			return 0, 0, err
		}
		rs, err := div.Resistance(v)
		if err != nil {
			return 0, v, err
		}
		// running mean keeps a constant stream exact
		mean += (rs - mean) / float64(i+1)
		raw = v
	}
	return mean, raw, nil
}
