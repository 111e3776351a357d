package mq2

import "fmt"

const (
	// DefaultADCMax is the full scale of a 10-bit conversion.
	DefaultADCMax = 1023
	// DefaultLoadKOhm is the load resistor fitted on common MQ-2 breakout boards.
	DefaultLoadKOhm = 10.0
)

// Divider describes the voltage divider formed by the sensor and the load
// resistor. The raw ADC count stands in for the voltage across the load.
type Divider struct {
	LoadKOhm float64
	ADCMax   int
}

func DefaultDivider() Divider {
	return Divider{LoadKOhm: DefaultLoadKOhm, ADCMax: DefaultADCMax}
}

func (d Divider) adcMax() int {
	if d.ADCMax <= 0 {
		return DefaultADCMax
	}
	return d.ADCMax
}

// Resistance returns the sensor resistance Rs in kilo-ohms for a raw sample.
func (d Divider) Resistance(raw int) (float64, error) {
	return Resistance(raw, d.LoadKOhm, d.adcMax())
}

// Resistance computes loadKOhm*(adcMax-raw)/raw. A zero sample is rejected
// with ErrZeroSample instead of producing +Inf.
func Resistance(raw int, loadKOhm float64, adcMax int) (float64, error) {
	if raw == 0 {
		return 0, ErrZeroSample
	}
	if raw < 0 || raw > adcMax {
		return 0, fmt.Errorf("%w: %d not in (0, %d]", ErrSampleOutOfRange, raw, adcMax)
	}
	return loadKOhm * float64(adcMax-raw) / float64(raw), nil
}
