package mq2

import "errors"

var (
	// ErrZeroSample is returned when the ADC reports 0, which would make the
	// divider equation divide by zero.
	ErrZeroSample = errors.New("mq2: raw sample is zero")
	// ErrSampleOutOfRange is returned for samples outside [0, ADCMax].
	ErrSampleOutOfRange = errors.New("mq2: raw sample out of range")
	// ErrNonPositiveRatio is returned when Rs/Ro is not a positive finite number.
	ErrNonPositiveRatio = errors.New("mq2: rs/ro ratio must be positive")
	ErrZeroSlope        = errors.New("mq2: curve slope is zero")
	ErrUnknownGas       = errors.New("mq2: unknown gas")
	// ErrNotCalibrated is returned by reads issued before Ro is known.
	ErrNotCalibrated  = errors.New("mq2: sensor not calibrated")
	ErrInvalidOptions = errors.New("mq2: invalid options")
)
