package mq2

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultCleanAirFactor is Rs/Ro in clean air taken from the MQ-2 datasheet.
	DefaultCleanAirFactor     = 9.83
	DefaultCalibrationSamples = 50
	DefaultCalibrationDelay   = 100 * time.Millisecond
)

// CalibrationOptions controls how the clean air baseline is measured.
type CalibrationOptions struct {
	Samples        int
	CleanAirFactor float64
	Delay          time.Duration
}

func DefaultCalibrationOptions() CalibrationOptions {
	return CalibrationOptions{
		Samples:        DefaultCalibrationSamples,
		CleanAirFactor: DefaultCleanAirFactor,
		Delay:          DefaultCalibrationDelay,
	}
}

func (o CalibrationOptions) validate() error {
	if o.Samples <= 0 {
		return fmt.Errorf("%w: samples must be > 0", ErrInvalidOptions)
	}
	if o.CleanAirFactor <= 0 {
		return fmt.Errorf("%w: clean air factor must be > 0", ErrInvalidOptions)
	}
	if o.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidOptions)
	}
	return nil
}

// Calibration is the clean air baseline of a sensor.
type Calibration struct {
	Ro        float64   `json:"ro_kohm" yaml:"ro_kohm"`
	MeanRs    float64   `json:"mean_rs_kohm" yaml:"mean_rs_kohm"`
	Samples   int       `json:"samples" yaml:"samples"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Valid reports whether the baseline can be used as a divisor.
func (c Calibration) Valid() bool { return c.Ro > 0 }

// Calibrate averages opts.Samples resistance readings and divides the mean by
// the clean air factor. The sensor must be in clean air; that cannot be
// verified here.
func Calibrate(ctx context.Context, src SampleSource, div Divider, opts CalibrationOptions, clock Clock) (Calibration, error) {
	if err := opts.validate(); err != nil {
		return Calibration{}, err
	}
	if clock == nil {
		clock = SystemClock()
	}
	mean, _, err := measure(ctx, src, div, opts.Samples, opts.Delay, clock)
	if err != nil {
		return Calibration{}, fmt.Errorf("calibrate: %w", err)
	}
	return Calibration{
		Ro:        mean / opts.CleanAirFactor,
		MeanRs:    mean,
		Samples:   opts.Samples,
		Timestamp: clock.Now(),
	}, nil
}
