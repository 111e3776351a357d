package output

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"go.uber.org/multierr"
)

// Entry is an output together with its publish interval.
type Entry struct {
	Name     string
	Output   Output
	Interval time.Duration
	last     time.Time
}

// Multi fans reports out to several outputs. Each output is throttled to its
// own interval except for readings that raised the alarm, which always go out.
type Multi struct {
	entries []*Entry
	log     *slog.Logger
}

func NewMulti(log *slog.Logger, entries ...Entry) *Multi {
	if log == nil {
		log = slog.Default()
	}
	m := &Multi{log: log.With(slog.String("component", "output"))}
	for i := range entries {
		e := entries[i]
		m.entries = append(m.entries, &e)
	}
	return m
}

func (m *Multi) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

func (m *Multi) PublishCalibration(c mq2.Calibration) error {
	var err error
	for _, e := range m.entries {
		if perr := e.Output.PublishCalibration(c); perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", e.Name, perr))
		}
	}
	return err
}

func (m *Multi) Publish(r mq2.Reading) error {
	var err error
	for _, e := range m.entries {
		if !r.Detected && !e.last.IsZero() && r.Timestamp.Sub(e.last) < e.Interval {
			continue
		}
		if perr := e.Output.Publish(r); perr != nil {
			m.log.Debug("publish failed", slog.String("output", e.Name), slog.Any("err", perr))
			err = multierr.Append(err, fmt.Errorf("%s: %w", e.Name, perr))
			continue
		}
		e.last = r.Timestamp
	}
	return err
}

func (m *Multi) Close() error {
	var err error
	for _, e := range m.entries {
		err = multierr.Append(err, e.Output.Close())
	}
	return err
}
