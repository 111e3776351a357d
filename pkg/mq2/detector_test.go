package mq2

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T, src *scriptedSource, clk *fakeClock, opts ...Option) *Detector {
	t.Helper()
	o := DefaultOptions()
	o.Calibration = CalibrationOptions{Samples: 10, CleanAirFactor: DefaultCleanAirFactor, Delay: time.Millisecond}
	o.ReadSamples = 1
	o.CacheTTL = 10 * time.Second
	d, err := NewDetector(src, o, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return d
}

func TestReadBeforeCalibration(t *testing.T) {
	d := newTestDetector(t, constant(500), newFakeClock())
	_, err := d.Read(context.Background(), LPG)
	assert.ErrorIs(t, err, ErrNotCalibrated)
	_, err = d.ReadAll(context.Background())
	assert.ErrorIs(t, err, ErrNotCalibrated)
	assert.ErrorIs(t, d.SetCalibration(Calibration{}), ErrNotCalibrated)
}

func TestReadUsesCacheWithinTTL(t *testing.T) {
	src := constant(300)
	clk := newFakeClock()
	d := newTestDetector(t, src, clk)
	require.NoError(t, d.SetCalibration(Calibration{Ro: 5}))

	ctx := context.Background()
	first, err := d.ReadLPG(ctx)
	require.NoError(t, err)
	reads := src.reads

	clk.Advance(5 * time.Second)
	src.samples = []int{900}
	second, err := d.ReadLPG(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, reads, src.reads, "cache hit must not touch the sensor")

	clk.Advance(6 * time.Second)
	third, err := d.ReadLPG(ctx)
	require.NoError(t, err)
	assert.Equal(t, reads+1, src.reads)
	assert.NotEqual(t, first, third)
}

func TestReadCachesPerGas(t *testing.T) {
	src := constant(300)
	d := newTestDetector(t, src, newFakeClock())
	require.NoError(t, d.SetCalibration(Calibration{Ro: 5}))
	ctx := context.Background()

	_, err := d.ReadLPG(ctx)
	require.NoError(t, err)
	_, err = d.ReadCO(ctx)
	require.NoError(t, err)
	_, err = d.ReadSmoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, src.reads)

	co, at := d.State().Cached(CO)
	assert.NotZero(t, co)
	assert.False(t, at.IsZero())

	_, err = d.Read(ctx, Gas(5))
	assert.ErrorIs(t, err, ErrUnknownGas)
}

func TestReadZeroValueForcesReread(t *testing.T) {
	src := constant(300)
	d := newTestDetector(t, src, newFakeClock())
	require.NoError(t, d.SetCalibration(Calibration{Ro: 5}))
	d.state.cache[CO] = cacheEntry{Value: 0, At: d.clock.Now()}

	_, err := d.ReadCO(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads)
}

func TestReadAllBypassesCache(t *testing.T) {
	src := constant(300)
	clk := newFakeClock()
	var got []Reading
	d := newTestDetector(t, src, clk, WithNotifier(func(r Reading) { got = append(got, r) }))
	require.NoError(t, d.SetCalibration(Calibration{Ro: 5}))
	ctx := context.Background()

	lpg, err := d.ReadLPG(ctx)
	require.NoError(t, err)

	src.samples = []int{600}
	r, err := d.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
	assert.NotEqual(t, lpg, r.Values.LPG)
	assert.Equal(t, clk.Now(), d.State().LastReadTime)
	assert.Equal(t, 600, r.Raw)
	assert.Equal(t, 600*1100/1023, r.Millivolts)

	rs, _ := DefaultDivider().Resistance(600)
	assert.InDelta(t, rs, r.Rs, 1e-12)
	assert.InDelta(t, rs/5, r.Ratio, 1e-12)
	for _, g := range Gases {
		want, err := DefaultCurves().PercentageForGas(r.Ratio, g)
		require.NoError(t, err)
		assert.Equal(t, want, r.Values.Get(g))
		cached, _ := d.State().Cached(g)
		assert.Equal(t, want, cached)
	}

	// cache entries were refreshed by ReadAll
	co, err := d.ReadCO(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.Values.CO, co)
	assert.Equal(t, 2, src.reads)
	require.Len(t, got, 1)
	assert.Equal(t, r, got[0])
}

func TestDetected(t *testing.T) {
	assert.True(t, Detected(LpgCoSmoke{LPG: 1200, CO: 5, Smoke: 3}, DefaultAlarmPPM))
	assert.False(t, Detected(LpgCoSmoke{LPG: 10, CO: 5, Smoke: 3}, DefaultAlarmPPM))
	assert.False(t, Detected(LpgCoSmoke{LPG: 1000}, DefaultAlarmPPM))
	assert.True(t, Detected(LpgCoSmoke{Smoke: 1000.5}, DefaultAlarmPPM))
	assert.Equal(t, 1200.0, LpgCoSmoke{LPG: 5, CO: 1200, Smoke: 3}.Max())
}

func TestReadAllAlarm(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, constant(1000), newFakeClock())
	// a high raw count means a low Rs; with a large Ro the ratio is tiny
	require.NoError(t, d.SetCalibration(Calibration{Ro: 10}))
	r, err := d.ReadAll(ctx)
	require.NoError(t, err)
	assert.True(t, r.Detected)
	assert.Greater(t, r.Values.Max(), DefaultAlarmPPM)

	d = newTestDetector(t, constant(200), newFakeClock())
	require.NoError(t, d.SetCalibration(Calibration{Ro: 4}))
	r, err = d.ReadAll(ctx)
	require.NoError(t, err)
	assert.False(t, r.Detected)
}

func TestReadAllSourceError(t *testing.T) {
	src := &scriptedSource{err: errBus}
	d := newTestDetector(t, src, newFakeClock())
	require.NoError(t, d.SetCalibration(Calibration{Ro: 4}))
	_, err := d.ReadAll(context.Background())
	assert.ErrorIs(t, err, errBus)
}

func TestReadAveragesFreshSamples(t *testing.T) {
	src := &scriptedSource{samples: []int{400, 500, 600}}
	clk := newFakeClock()
	o := DefaultOptions()
	o.ReadSamples = 3
	o.ReadDelay = 50 * time.Millisecond
	d, err := NewDetector(src, o, WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, d.SetCalibration(Calibration{Ro: 1}))

	r, err := d.ReadAll(context.Background())
	require.NoError(t, err)
	var want float64
	for _, v := range []int{400, 500, 600} {
		rs, _ := DefaultDivider().Resistance(v)
		want += rs
	}
	assert.InDelta(t, want/3, r.Rs, 1e-9)
	assert.Equal(t, 100*time.Millisecond, clk.slept)
}

func TestCalibrateOverwrites(t *testing.T) {
	src := constant(500)
	d := newTestDetector(t, src, newFakeClock())
	first, err := d.Calibrate(context.Background())
	require.NoError(t, err)
	src.samples = []int{700}
	second, err := d.Calibrate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Ro, second.Ro)
	assert.Equal(t, second, d.Calibration())
}

func TestNewDetectorValidation(t *testing.T) {
	_, err := NewDetector(nil, DefaultOptions())
	assert.Error(t, err)

	o := DefaultOptions()
	o.Curves.CO.Slope = 0
	_, err = NewDetector(constant(1), o)
	assert.ErrorIs(t, err, ErrZeroSlope)

	d, err := NewDetector(constant(1), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), d.Options())
}

func TestRunStopsOnCancel(t *testing.T) {
	src := constant(500)
	clk := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDetector(t, src, clk)
	var published []Reading
	err := d.Run(ctx, time.Second, func(r Reading) error {
		published = append(published, r)
		if len(published) == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, published, 3)
	assert.True(t, d.Calibration().Valid())
}

func TestRunKeepsGoingAfterErrors(t *testing.T) {
	src := constant(500)
	clk := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDetector(t, src, clk)
	require.NoError(t, d.SetCalibration(Calibration{Ro: 5}))
	calls := 0
	err := d.Run(ctx, time.Second, func(r Reading) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("broker down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRunCalibrationFailure(t *testing.T) {
	d := newTestDetector(t, constant(0), newFakeClock())
	err := d.Run(context.Background(), time.Second, nil)
	assert.ErrorIs(t, err, ErrZeroSample)
}
