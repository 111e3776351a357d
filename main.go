package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/ericogr/mq2-to-mqtt/pkg/output"
	"github.com/ericogr/mq2-to-mqtt/pkg/output/console"
	"github.com/ericogr/mq2-to-mqtt/pkg/output/httpapi"
	"github.com/ericogr/mq2-to-mqtt/pkg/output/kafka"
	"github.com/ericogr/mq2-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/mq2-to-mqtt/pkg/sensor"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	src, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer src.Close()

	entries, err := initOutputs(&cfg, cfg.IntervalMs, logger)
	if err != nil {
		return err
	}
	outs := output.NewMulti(logger, entries...)
	defer func() {
		if err := outs.Close(); err != nil {
			logger.Error("closing outputs", slog.Any("err", err))
		}
	}()

	det, err := mq2.NewDetector(src, cfg.DetectorOptions(),
		mq2.WithLogger(logger),
		mq2.WithNotifier(alarmLogger(logger)))
	if err != nil {
		return err
	}
	logger.Info("starting",
		slog.String("sensor_type", cfg.SensorType),
		slog.String("sensor_id", cfg.SensorID),
		slog.Int("outputs", len(entries)))
	return serve(ctx, det, outs, cfg, logger)
}

// serve installs or measures Ro, reports it, then reads until ctx is done.
func serve(ctx context.Context, det *mq2.Detector, outs output.Output, cfg config.Config, logger *slog.Logger) error {
	var (
		cal mq2.Calibration
		err error
	)
	if cfg.MQ2.Ro > 0 {
		cal = mq2.Calibration{Ro: cfg.MQ2.Ro}
		err = det.SetCalibration(cal)
		cal = det.Calibration()
	} else {
		cal, err = det.Calibrate(ctx)
	}
	if err != nil {
		return err
	}
	if err := outs.PublishCalibration(cal); err != nil {
		logger.Error("publish calibration", slog.Any("err", err))
	}
	err = det.Run(ctx, cfg.Interval(), outs.Publish)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// initOutputs builds every configured output and fills in missing intervals.
func initOutputs(cfg *config.Config, defaultIntervalMs int, logger *slog.Logger) ([]output.Entry, error) {
	entries := make([]output.Entry, 0, len(cfg.Outputs))
	closeAll := func() {
		for _, e := range entries {
			_ = e.Output.Close()
		}
	}
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultIntervalMs
		}
		out, err := newOutput(*oc, cfg.SensorID, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, output.Entry{
			Name:     oc.Type,
			Output:   out,
			Interval: time.Duration(oc.IntervalMs) * time.Millisecond,
		})
	}
	return entries, nil
}

func newOutput(oc config.OutputConfig, sensorID string, logger *slog.Logger) (output.Output, error) {
	switch strings.ToLower(oc.Type) {
	case "console":
		return console.NewConsole(), nil
	case "mqtt":
		var mc config.MQTTConfig
		if oc.MQTT != nil {
			mc = *oc.MQTT
		}
		return mqtt.NewMQTT(mc, sensorID, logger)
	case "kafka":
		var kc config.KafkaConfig
		if oc.Kafka != nil {
			kc = *oc.Kafka
		}
		return kafka.NewKafka(kc, sensorID)
	case "http":
		var hc config.HTTPConfig
		if oc.HTTP != nil {
			hc = *oc.HTTP
		}
		return httpapi.NewHTTP(hc, sensorID, logger)
	}
	return nil, fmt.Errorf("unknown output type %q", oc.Type)
}

// alarmLogger logs only when the alarm state changes.
func alarmLogger(logger *slog.Logger) func(mq2.Reading) {
	active := false
	return func(r mq2.Reading) {
		switch {
		case r.Detected && !active:
			logger.Warn("alarm raised", slog.Float64("max_ppm", r.Values.Max()))
		case !r.Detected && active:
			logger.Info("alarm cleared")
		}
		active = r.Detected
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
