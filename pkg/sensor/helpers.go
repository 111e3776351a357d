package sensor

import (
	"context"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
)

// adcConfig extracts the channel settings from the config.
func adcConfig(cfg config.Config) (ADCConfig, error) {
	att, err := ParseAttenuation(cfg.ADC.Attenuation)
	if err != nil {
		return ADCConfig{}, err
	}
	return ADCConfig{Width: cfg.ADC.Width, Attenuation: att, Channel: cfg.ADC.Channel}, nil
}

// linearMillivolts maps a count onto the nominal input range.
func linearMillivolts(raw int, cfg ADCConfig) int {
	m := cfg.Max()
	if m <= 0 {
		return 0
	}
	return raw * cfg.Attenuation.FullScaleMillivolts() / m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
