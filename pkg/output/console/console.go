package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/ericogr/mq2-to-mqtt/pkg/output"
)

const (
	alarmBanner = "!!! GAS DETECTED !!!"
	clearBanner = "::GAS NOT DETECTED::"
)

type ConsoleOutput struct {
	w     io.Writer
	alarm lipgloss.Style
	clear lipgloss.Style
}

func NewConsole() output.Output { return New(os.Stdout) }

// New writes reports to w. Colors are only emitted when w is a terminal.
func New(w io.Writer) *ConsoleOutput {
	r := lipgloss.NewRenderer(w)
	return &ConsoleOutput{
		w:     w,
		alarm: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		clear: r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (c *ConsoleOutput) PublishCalibration(cal mq2.Calibration) error {
	_, err := fmt.Fprintf(c.w, "%s calibration ro=%.2f kohm mean_rs=%.2f kohm samples=%d\n",
		cal.Timestamp.Format(time.RFC3339), cal.Ro, cal.MeanRs, cal.Samples)
	return err
}

func (c *ConsoleOutput) Publish(r mq2.Reading) error {
	if _, err := fmt.Fprintf(c.w, "%s raw=%d mv=%d rs=%.2f ratio=%.3f lpg=%.2f co=%.2f smoke=%.2f\n",
		r.Timestamp.Format(time.RFC3339), r.Raw, r.Millivolts, r.Rs, r.Ratio,
		r.Values.LPG, r.Values.CO, r.Values.Smoke); err != nil {
		return err
	}
	banner := c.clear.Render(clearBanner)
	if r.Detected {
		banner = c.alarm.Render(alarmBanner)
	}
	_, err := fmt.Fprintln(c.w, banner)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
