package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
	// ads1115Bits is the resolution of single-ended conversions.
	ads1115Bits = 15
)

// pgaFullScale lists the programmable gain settings in millivolts, indexed by
// their PGA bits.
var pgaFullScale = [...]int{6144, 4096, 2048, 1024, 512, 256}

// ADS1115 reads the MQ-2 through a TI ADS1115 on an I2C bus.
type ADS1115 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	sampleRate int
	cfg        ADCConfig
	msb, lsb   byte
	pga        byte
}

func NewADS1115(cfg config.Config) (ADC, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return newADS1115(bus, uint16(cfg.I2C.Address), cfg.ADC.SampleRate), nil
}

func newADS1115(bus i2c.BusCloser, addr uint16, sampleRate int) *ADS1115 {
	return &ADS1115{dev: &i2c.Dev{Addr: addr, Bus: bus}, bus: bus, sampleRate: sampleRate}
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

// Configure computes the config register for the channel. The register is
// written on every conversion since the chip runs in single-shot mode.
func (s *ADS1115) Configure(cfg ADCConfig) error {
	if cfg.Width <= 0 || cfg.Width > ads1115Bits {
		return fmt.Errorf("ads1115: width %d not supported", cfg.Width)
	}
	msb, lsb, err := s.configForChannel(cfg)
	if err != nil {
		return err
	}
	s.cfg, s.msb, s.lsb = cfg, msb, lsb
	return nil
}

func (s *ADS1115) ReadRaw(ctx context.Context) (int, error) {
	if s.cfg.Width == 0 {
		return 0, fmt.Errorf("ads1115: not configured")
	}
	// write config
	if err := s.dev.Tx([]byte{pointerConfig, s.msb, s.lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	// wait for conversion (simple sleep)
	delayMs := int(1000.0/float64(s.rate())) + 2
	if err := sleepCtx(ctx, time.Duration(delayMs)*time.Millisecond); err != nil {
		return 0, err
	}
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return s.scale(raw), nil
}

// scale clips negative conversions and reduces the count to the configured width.
func (s *ADS1115) scale(raw int16) int {
	if raw < 0 {
		return 0
	}
	return int(raw) >> (ads1115Bits - s.cfg.Width)
}

func (s *ADS1115) Millivolts(raw int) int {
	m := s.cfg.Max()
	if m <= 0 {
		return 0
	}
	return raw * pgaFullScale[s.pga] / m
}

func (s *ADS1115) rate() int {
	if s.sampleRate <= 0 {
		return 128
	}
	return s.sampleRate
}

// pgaFor picks the smallest gain range that covers the attenuation's input span.
func pgaFor(a Attenuation) byte {
	want := a.FullScaleMillivolts()
	best := byte(0)
	for i, fs := range pgaFullScale {
		if fs >= want {
			best = byte(i)
		}
	}
	return best
}

func (s *ADS1115) configForChannel(cfg ADCConfig) (byte, byte, error) {
	var mux byte
	switch cfg.Channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", cfg.Channel)
	}
	pga := pgaFor(cfg.Attenuation)
	s.pga = pga
	// data rate bits
	var dr byte
	switch s.rate() {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}
