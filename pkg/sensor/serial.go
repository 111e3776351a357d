package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the bridge firmware.
	DefaultBaudRate    = 115200
	serialReadTimeout  = 2 * time.Second
	serialResponseOK   = "OK"
	serialErrorPrefix  = "ERR"
	serialCmdConfigure = "C"
	serialCmdRead      = "R"
)

// Serial reads the MQ-2 through a microcontroller (ESP32, Arduino) that
// exposes its ADC over a line protocol:
//
//	C <width> <attenuation> <channel>  ->  OK
//	R                                   ->  <raw count>
//
// Errors are reported by the bridge as "ERR <message>".
type Serial struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
	cfg  ADCConfig
}

func NewSerial(cfg config.Config) (ADC, error) {
	baud := cfg.Serial.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(cfg.Serial.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Serial.Port, err)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return newSerial(p), nil
}

func newSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{port: port, r: bufio.NewReader(port)}
}

func (s *Serial) Configure(cfg ADCConfig) error {
	resp, err := s.roundTrip(fmt.Sprintf("%s %d %d %d", serialCmdConfigure, cfg.Width, int(cfg.Attenuation), cfg.Channel))
	if err != nil {
		return err
	}
	if resp != serialResponseOK {
		return fmt.Errorf("serial: unexpected configure response %q", resp)
	}
	s.cfg = cfg
	return nil
}

func (s *Serial) ReadRaw(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.cfg.Width == 0 {
		return 0, fmt.Errorf("serial: not configured")
	}
	resp, err := s.roundTrip(serialCmdRead)
	if err != nil {
		return 0, err
	}
	return parseRaw(resp, s.cfg.Max())
}

func (s *Serial) Millivolts(raw int) int { return linearMillivolts(raw, s.cfg) }

func (s *Serial) Close() error { return s.port.Close() }

func (s *Serial) roundTrip(cmd string) (string, error) {
	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return "", fmt.Errorf("serial write: %w", err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		// go.bug.st/serial returns 0 bytes on read timeout, which surfaces as EOF
		return "", fmt.Errorf("serial read: %w", err)
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, serialErrorPrefix) {
		return "", fmt.Errorf("serial: bridge error: %s", strings.TrimSpace(strings.TrimPrefix(line, serialErrorPrefix)))
	}
	return line, nil
}

// parseRaw parses a raw count and checks it against the configured width.
func parseRaw(s string, limit int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("serial: invalid sample %q: %w", s, err)
	}
	if v < 0 || v > limit {
		return 0, fmt.Errorf("serial: sample %d out of range [0, %d]", v, limit)
	}
	return v, nil
}
