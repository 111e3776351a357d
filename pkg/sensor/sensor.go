package sensor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
)

// Attenuation selects the input range of the ADC channel.
type Attenuation int

const (
	Atten0dB Attenuation = iota
	Atten2_5dB
	Atten6dB
	Atten11dB
)

// FullScaleMillivolts is the nominal input voltage that maps to the top count.
func (a Attenuation) FullScaleMillivolts() int {
	switch a {
	case Atten0dB:
		return 1100
	case Atten2_5dB:
		return 1500
	case Atten6dB:
		return 2200
	default:
		return 3900
	}
}

func (a Attenuation) String() string {
	switch a {
	case Atten0dB:
		return "0db"
	case Atten2_5dB:
		return "2.5db"
	case Atten6dB:
		return "6db"
	case Atten11dB:
		return "11db"
	}
	return fmt.Sprintf("atten(%d)", int(a))
}

func ParseAttenuation(s string) (Attenuation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "0db":
		return Atten0dB, nil
	case "2.5", "2.5db":
		return Atten2_5dB, nil
	case "6", "6db":
		return Atten6dB, nil
	case "", "11", "11db":
		return Atten11dB, nil
	}
	return 0, fmt.Errorf("invalid attenuation %q", s)
}

// ADCConfig is the channel setup applied before each batch of reads.
type ADCConfig struct {
	Width       int
	Attenuation Attenuation
	Channel     int
}

// Max is the highest count a conversion of Width bits can return.
func (c ADCConfig) Max() int { return 1<<c.Width - 1 }

// ADC is a single-ended analog input the MQ-2 is wired to.
type ADC interface {
	// Configure is idempotent and is called before every read batch.
	Configure(cfg ADCConfig) error
	// ReadRaw returns a count in [0, cfg.Max()].
	ReadRaw(ctx context.Context) (int, error)
	Millivolts(raw int) int
	Close() error
}

// Source adapts an ADC to the sample source consumed by the conversion model.
type Source struct {
	adc ADC
	cfg ADCConfig
}

func NewSource(adc ADC, cfg ADCConfig) *Source {
	return &Source{adc: adc, cfg: cfg}
}

func (s *Source) Begin() error {
	if err := s.adc.Configure(s.cfg); err != nil {
		return fmt.Errorf("configure adc: %w", err)
	}
	return nil
}

func (s *Source) Sample(ctx context.Context) (int, error) {
	return s.adc.ReadRaw(ctx)
}

func (s *Source) Millivolts(raw int) int { return s.adc.Millivolts(raw) }

func (s *Source) Close() error { return s.adc.Close() }

// New opens the ADC selected by cfg.SensorType and wraps it in a Source.
func New(cfg config.Config) (*Source, error) {
	adcCfg, err := adcConfig(cfg)
	if err != nil {
		return nil, err
	}
	var adc ADC
	switch cfg.SensorType {
	case "ads1115":
		adc, err = NewADS1115(cfg)
	case "serial":
		adc, err = NewSerial(cfg)
	case "simulation":
		adc, err = NewFake(cfg)
	default:
		err = fmt.Errorf("unknown sensor type %q", cfg.SensorType)
	}
	if err != nil {
		return nil, err
	}
	return NewSource(adc, adcCfg), nil
}
