package mq2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultReadSamples = 5
	DefaultReadDelay   = 50 * time.Millisecond
	DefaultCacheTTL    = 10 * time.Second
	// DefaultAlarmPPM is the concentration above which a gas is reported as detected.
	DefaultAlarmPPM = 1000.0
)

// Options configures a Detector. Zero values fall back to the defaults.
type Options struct {
	Divider     Divider
	Curves      Curves
	Calibration CalibrationOptions
	ReadSamples int
	ReadDelay   time.Duration
	CacheTTL    time.Duration
	AlarmPPM    float64
}

func DefaultOptions() Options {
	return Options{
		Divider:     DefaultDivider(),
		Curves:      DefaultCurves(),
		Calibration: DefaultCalibrationOptions(),
		ReadSamples: DefaultReadSamples,
		ReadDelay:   DefaultReadDelay,
		CacheTTL:    DefaultCacheTTL,
		AlarmPPM:    DefaultAlarmPPM,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.Divider.LoadKOhm <= 0 {
		o.Divider.LoadKOhm = def.Divider.LoadKOhm
	}
	if o.Divider.ADCMax <= 0 {
		o.Divider.ADCMax = def.Divider.ADCMax
	}
	if o.Curves == (Curves{}) {
		o.Curves = def.Curves
	}
	if o.Calibration == (CalibrationOptions{}) {
		o.Calibration = def.Calibration
	}
	if o.ReadSamples <= 0 {
		o.ReadSamples = def.ReadSamples
	}
	if o.ReadDelay == 0 {
		o.ReadDelay = def.ReadDelay
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	if o.AlarmPPM <= 0 {
		o.AlarmPPM = def.AlarmPPM
	}
}

// LpgCoSmoke holds one ppm value per gas.
type LpgCoSmoke struct {
	LPG   float64 `json:"lpg"`
	CO    float64 `json:"co"`
	Smoke float64 `json:"smoke"`
}

// Get returns the value for gas g, or 0 for an unknown gas.
func (v LpgCoSmoke) Get(g Gas) float64 {
	switch g {
	case LPG:
		return v.LPG
	case CO:
		return v.CO
	case Smoke:
		return v.Smoke
	}
	return 0
}

func (v *LpgCoSmoke) set(g Gas, ppm float64) {
	switch g {
	case LPG:
		v.LPG = ppm
	case CO:
		v.CO = ppm
	case Smoke:
		v.Smoke = ppm
	}
}

// Max returns the highest of the three concentrations.
func (v LpgCoSmoke) Max() float64 {
	return max(v.LPG, v.CO, v.Smoke)
}

// Reading is the result of a full sensor read.
type Reading struct {
	Timestamp  time.Time  `json:"timestamp"`
	Raw        int        `json:"raw"`
	Millivolts int        `json:"millivolts"`
	Rs         float64    `json:"rs_kohm"`
	Ratio      float64    `json:"ratio"`
	Values     LpgCoSmoke `json:"ppm"`
	Detected   bool       `json:"detected"`
}

type cacheEntry struct {
	Value float64
	At    time.Time
}

// State is everything a Detector remembers between reads.
type State struct {
	Calibration  Calibration
	LastReadTime time.Time
	cache        [len(Gases)]cacheEntry
}

// Cached returns the last value computed for g and when it was computed.
func (s State) Cached(g Gas) (float64, time.Time) {
	if !g.valid() {
		return 0, time.Time{}
	}
	e := s.cache[g]
	return e.Value, e.At
}

// Detector turns raw samples into gas concentrations and caches them per gas.
// It is meant to be driven by a single goroutine.
type Detector struct {
	src    SampleSource
	opts   Options
	clock  Clock
	log    *slog.Logger
	notify func(Reading)
	state  State
}

type Option func(*Detector)

func WithClock(c Clock) Option { return func(d *Detector) { d.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(d *Detector) { d.log = l } }

// WithNotifier registers fn to receive every reading produced by ReadAll.
func WithNotifier(fn func(Reading)) Option { return func(d *Detector) { d.notify = fn } }

func NewDetector(src SampleSource, opts Options, options ...Option) (*Detector, error) {
	if src == nil {
		return nil, errors.New("mq2: nil sample source")
	}
	opts.applyDefaults()
	if err := opts.Curves.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Calibration.validate(); err != nil {
		return nil, err
	}
	d := &Detector{src: src, opts: opts, clock: SystemClock(), log: slog.Default()}
	for _, o := range options {
		o(d)
	}
	d.log = d.log.With(slog.String("component", "mq2"))
	return d, nil
}

func (d *Detector) Options() Options { return d.opts }

// State returns a copy of the detector state.
func (d *Detector) State() State { return d.state }

func (d *Detector) Calibration() Calibration { return d.state.Calibration }

// Calibrate measures Ro in clean air and replaces any previous baseline.
func (d *Detector) Calibrate(ctx context.Context) (Calibration, error) {
	d.log.Info("calibrating", slog.Int("samples", d.opts.Calibration.Samples))
	c, err := Calibrate(ctx, d.src, d.opts.Divider, d.opts.Calibration, d.clock)
	if err != nil {
		return Calibration{}, err
	}
	if !c.Valid() {
		return Calibration{}, fmt.Errorf("calibrate: ro=%v: %w", c.Ro, ErrNotCalibrated)
	}
	d.state.Calibration = c
	d.log.Info("calibration done", slog.Float64("ro_kohm", c.Ro))
	return c, nil
}

// SetCalibration installs a previously measured baseline.
func (d *Detector) SetCalibration(c Calibration) error {
	if !c.Valid() {
		return fmt.Errorf("ro=%v: %w", c.Ro, ErrNotCalibrated)
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = d.clock.Now()
	}
	d.state.Calibration = c
	return nil
}

func (d *Detector) ratio(ctx context.Context) (rs, ratio float64, raw int, err error) {
	if !d.state.Calibration.Valid() {
		return 0, 0, 0, ErrNotCalibrated
	}
	rs, raw, err = measure(ctx, d.src, d.opts.Divider, d.opts.ReadSamples, d.opts.ReadDelay, d.clock)
	if err != nil {
		return 0, 0, raw, fmt.Errorf("read: %w", err)
	}
	return rs, rs / d.state.Calibration.Ro, raw, nil
}

// Read returns the concentration of g. A value computed less than CacheTTL
// ago is returned without touching the sensor, unless it is exactly 0, which
// cannot be told apart from "never read".
func (d *Detector) Read(ctx context.Context, g Gas) (float64, error) {
	if !g.valid() {
		return 0, fmt.Errorf("%w: %v", ErrUnknownGas, g)
	}
	now := d.clock.Now()
	e := d.state.cache[g]
	if e.Value != 0 && now.Before(e.At.Add(d.opts.CacheTTL)) {
		return e.Value, nil
	}
	_, ratio, _, err := d.ratio(ctx)
	if err != nil {
		return 0, err
	}
	ppm, err := d.opts.Curves.PercentageForGas(ratio, g)
	if err != nil {
		return 0, err
	}
	d.state.cache[g] = cacheEntry{Value: ppm, At: d.clock.Now()}
	return ppm, nil
}

func (d *Detector) ReadLPG(ctx context.Context) (float64, error)   { return d.Read(ctx, LPG) }
func (d *Detector) ReadCO(ctx context.Context) (float64, error)    { return d.Read(ctx, CO) }
func (d *Detector) ReadSmoke(ctx context.Context) (float64, error) { return d.Read(ctx, Smoke) }

// ReadAll takes a fresh measurement regardless of the cache, converts it for
// every gas, refreshes all cache entries and notifies the registered listener.
func (d *Detector) ReadAll(ctx context.Context) (Reading, error) {
	rs, ratio, raw, err := d.ratio(ctx)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{Raw: raw, Rs: rs, Ratio: ratio}
	if vm, ok := d.src.(Voltmeter); ok {
		r.Millivolts = vm.Millivolts(raw)
	}
	for _, g := range Gases {
		ppm, err := d.opts.Curves.PercentageForGas(ratio, g)
		if err != nil {
			return Reading{}, fmt.Errorf("%s: %w", g, err)
		}
		r.Values.set(g, ppm)
	}
	r.Timestamp = d.clock.Now()
	r.Detected = Detected(r.Values, d.opts.AlarmPPM)
	for _, g := range Gases {
		d.state.cache[g] = cacheEntry{Value: r.Values.Get(g), At: r.Timestamp}
	}
	d.state.LastReadTime = r.Timestamp

	if r.Detected {
		d.log.Warn("gas detected",
			slog.Float64("lpg", r.Values.LPG),
			slog.Float64("co", r.Values.CO),
			slog.Float64("smoke", r.Values.Smoke))
	} else {
		d.log.Debug("gas not detected", slog.Int("raw", raw), slog.Float64("ratio", ratio))
	}
	if d.notify != nil {
		d.notify(r)
	}
	return r, nil
}

// Detected reports whether any concentration exceeds threshold.
func Detected(v LpgCoSmoke, threshold float64) bool {
	return v.LPG > threshold || v.CO > threshold || v.Smoke > threshold
}

// Run calibrates if no baseline is installed, then calls ReadAll every
// interval and hands each reading to publish until ctx is done. Read and
// publish errors are logged and the loop carries on.
func (d *Detector) Run(ctx context.Context, interval time.Duration, publish func(Reading) error) error {
	if !d.state.Calibration.Valid() {
		if _, err := d.Calibrate(ctx); err != nil {
			return err
		}
	}
	for {
		r, err := d.ReadAll(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			d.log.Error("read failed", slog.Any("err", err))
		case publish != nil:
			if err := publish(r); err != nil {
				d.log.Error("publish failed", slog.Any("err", err))
			}
		}
		if err := d.clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
