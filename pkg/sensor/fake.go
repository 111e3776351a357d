package sensor

import (
	"context"
	"math/rand"
	"sync"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
)

// FakeSensor simulates the MQ-2 for dry runs: it jitters around a base count,
// or replays a fixed script when one is set.
type FakeSensor struct {
	mu      sync.Mutex
	base    int
	noise   int
	script  []int
	next    int
	cfg     ADCConfig
	rnd     *rand.Rand
	Reads   int
	Configs int
}

func NewFake(cfg config.Config) (ADC, error) {
	return &FakeSensor{
		base:  cfg.Simulation.BaseRaw,
		noise: cfg.Simulation.Noise,
		rnd:   rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

// NewScripted returns a fake that replays samples and then repeats the last one.
func NewScripted(samples ...int) *FakeSensor {
	return &FakeSensor{script: samples, rnd: rand.New(rand.NewSource(1))}
}

func (f *FakeSensor) Configure(cfg ADCConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.Configs++
	return nil
}

func (f *FakeSensor) ReadRaw(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if len(f.script) > 0 {
		v := f.script[min(f.next, len(f.script)-1)]
		f.next++
		return v, nil
	}
	v := f.base
	if f.noise > 0 {
		v += f.rnd.Intn(2*f.noise+1) - f.noise
	}
	// never report 0: a floating input would read as an open circuit
	return max(1, min(v, f.cfg.Max())), nil
}

func (f *FakeSensor) Millivolts(raw int) int { return linearMillivolts(raw, f.cfg) }

func (f *FakeSensor) Close() error { return nil }
