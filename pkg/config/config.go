package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	CalibrationTopic  string `json:"calibration_topic" yaml:"calibration_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type OutputConfig struct {
	Type       string       `json:"type" yaml:"type"`
	IntervalMs int          `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig  `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Kafka      *KafkaConfig `json:"kafka,omitempty" yaml:"kafka,omitempty"`
	HTTP       *HTTPConfig  `json:"http,omitempty" yaml:"http,omitempty"`
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

// ADCConfig mirrors the width/attenuation/channel triple the sensor channel
// is configured with before every read batch.
type ADCConfig struct {
	Width       int    `json:"width" yaml:"width"`
	Attenuation string `json:"attenuation" yaml:"attenuation"`
	Channel     int    `json:"channel" yaml:"channel"`
	SampleRate  int    `json:"sample_rate" yaml:"sample_rate"`
}

// SimulationConfig drives the simulated sensor.
type SimulationConfig struct {
	BaseRaw int `json:"base_raw" yaml:"base_raw"`
	Noise   int `json:"noise" yaml:"noise"`
}

type MQ2Config struct {
	LoadKOhm           float64     `json:"load_kohm" yaml:"load_kohm"`
	CleanAirFactor     float64     `json:"clean_air_factor" yaml:"clean_air_factor"`
	CalibrationSamples int         `json:"calibration_samples" yaml:"calibration_samples"`
	CalibrationDelayMs int         `json:"calibration_delay_ms" yaml:"calibration_delay_ms"`
	ReadSamples        int         `json:"read_samples" yaml:"read_samples"`
	ReadDelayMs        int         `json:"read_delay_ms" yaml:"read_delay_ms"`
	CacheTTLMs         int         `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	AlarmPPM           float64     `json:"alarm_ppm" yaml:"alarm_ppm"`
	Ro                 float64     `json:"ro_kohm,omitempty" yaml:"ro_kohm,omitempty"`
	Curves             *mq2.Curves `json:"curves,omitempty" yaml:"curves,omitempty"`
}

type Config struct {
	SensorType string           `json:"sensor_type" yaml:"sensor_type"`
	SensorID   string           `json:"sensor_id" yaml:"sensor_id"`
	I2C        I2CConfig        `json:"i2c" yaml:"i2c"`
	Serial     SerialConfig     `json:"serial" yaml:"serial"`
	ADC        ADCConfig        `json:"adc" yaml:"adc"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	MQ2        MQ2Config        `json:"mq2" yaml:"mq2"`
	Outputs    []OutputConfig   `json:"outputs" yaml:"outputs"`
	IntervalMs int              `json:"interval_ms" yaml:"interval_ms"`
	LogLevel   string           `json:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: "ads1115",
		SensorID:   "mq2",
		I2C:        I2CConfig{Bus: "2", Address: 0x48},
		Serial:     SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200},
		ADC:        ADCConfig{Width: 10, Attenuation: "11db", Channel: 0, SampleRate: 128},
		Simulation: SimulationConfig{BaseRaw: 300, Noise: 5},
		MQ2: MQ2Config{
			LoadKOhm:           mq2.DefaultLoadKOhm,
			CleanAirFactor:     mq2.DefaultCleanAirFactor,
			CalibrationSamples: mq2.DefaultCalibrationSamples,
			CalibrationDelayMs: int(mq2.DefaultCalibrationDelay / time.Millisecond),
			ReadSamples:        mq2.DefaultReadSamples,
			ReadDelayMs:        int(mq2.DefaultReadDelay / time.Millisecond),
			CacheTTLMs:         int(mq2.DefaultCacheTTL / time.Millisecond),
			AlarmPPM:           mq2.DefaultAlarmPPM,
		},
		Outputs:    []OutputConfig{{Type: "console", IntervalMs: 1000}},
		IntervalMs: 1000,
		LogLevel:   "info",
	}
}

// LoadFromFlags loads configuration from a JSON or YAML file (optional) and
// command line flags. Flags override values present in the file.
func LoadFromFlags() (Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load parses args with fs and builds the configuration.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagSensorType := fs.String("sensor-type", "", "sensor type: ads1115|serial|simulation")
	flagSensorID := fs.String("sensor-id", "", "Sensor identifier used in topics and keys")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagSerialPort := fs.String("serial-port", "", "Serial port of the ADC bridge")
	flagBaud := fs.Int("baud-rate", -1, "Serial baud rate")
	flagWidth := fs.Int("adc-width", -1, "ADC width in bits")
	flagAtten := fs.String("adc-attenuation", "", "ADC attenuation: 0db|2.5db|6db|11db")
	flagChannel := fs.Int("adc-channel", -1, "ADC channel wired to the MQ-2 analog output")
	flagSampleRate := fs.Int("sample-rate", -1, "ADC sample rate (SPS)")
	flagLoad := fs.Float64("load-kohm", math.NaN(), "Load resistor in kilo-ohms")
	flagCleanAir := fs.Float64("clean-air-factor", math.NaN(), "Rs/Ro in clean air")
	flagRo := fs.Float64("ro", math.NaN(), "Use a known Ro (kilo-ohms) instead of calibrating")
	flagCacheTTL := fs.Int("cache-ttl-ms", -1, "Per-gas cache TTL in ms")
	flagAlarm := fs.Float64("alarm-ppm", math.NaN(), "Alarm threshold in ppm")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,kafka,http)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagKafkaBrokers := fs.String("kafka-brokers", "", "Comma-separated Kafka brokers")
	flagKafkaTopic := fs.String("kafka-topic", "", "Kafka topic")
	flagHTTPAddr := fs.String("http-addr", "", "HTTP listen address")
	flagInterval := fs.Int("interval-ms", -1, "Read interval in ms")
	flagLogLevel := fs.String("log-level", "", "debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagSensorID != "" {
		cfg.SensorID = *flagSensorID
	}
	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagSerialPort != "" {
		cfg.Serial.Port = *flagSerialPort
	}
	if *flagBaud != -1 {
		cfg.Serial.BaudRate = *flagBaud
	}
	if *flagWidth != -1 {
		cfg.ADC.Width = *flagWidth
	}
	if *flagAtten != "" {
		cfg.ADC.Attenuation = *flagAtten
	}
	if *flagChannel != -1 {
		cfg.ADC.Channel = *flagChannel
	}
	if *flagSampleRate != -1 {
		cfg.ADC.SampleRate = *flagSampleRate
	}
	if !math.IsNaN(*flagLoad) {
		cfg.MQ2.LoadKOhm = *flagLoad
	}
	if !math.IsNaN(*flagCleanAir) {
		cfg.MQ2.CleanAirFactor = *flagCleanAir
	}
	if !math.IsNaN(*flagRo) {
		cfg.MQ2.Ro = *flagRo
	}
	if *flagCacheTTL != -1 {
		cfg.MQ2.CacheTTLMs = *flagCacheTTL
	}
	if !math.IsNaN(*flagAlarm) {
		cfg.MQ2.AlarmPPM = *flagAlarm
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		m := outputFor(&cfg, "mqtt")
		if m.MQTT == nil {
			m.MQTT = &MQTTConfig{}
		}
		setIf(&m.MQTT.Server, *flagMQTTServer)
		setIf(&m.MQTT.Username, *flagMQTTUser)
		setIf(&m.MQTT.Password, *flagMQTTPass)
		setIf(&m.MQTT.ClientID, *flagClientID)
		setIf(&m.MQTT.StateTopic, *flagTopic)
	}
	if *flagKafkaBrokers != "" || *flagKafkaTopic != "" {
		k := outputFor(&cfg, "kafka")
		if k.Kafka == nil {
			k.Kafka = &KafkaConfig{}
		}
		if *flagKafkaBrokers != "" {
			k.Kafka.Brokers = parseCSV(*flagKafkaBrokers)
		}
		setIf(&k.Kafka.Topic, *flagKafkaTopic)
	}
	if *flagHTTPAddr != "" {
		h := outputFor(&cfg, "http")
		if h.HTTP == nil {
			h.HTTP = &HTTPConfig{}
		}
		h.HTTP.Addr = *flagHTTPAddr
	}
	// ensure outputs have interval default
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// outputFor returns the first output of type typ, appending one if missing.
func outputFor(cfg *Config, typ string) *OutputConfig {
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) == typ {
			return &cfg.Outputs[i]
		}
	}
	cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: typ})
	return &cfg.Outputs[len(cfg.Outputs)-1]
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the values that would otherwise fail deep inside the
// sensor or the conversion model.
func (c Config) Validate() error {
	switch c.SensorType {
	case "ads1115", "serial", "simulation":
	default:
		return fmt.Errorf("unknown sensor-type %q", c.SensorType)
	}
	if c.ADC.Width < 9 || c.ADC.Width > 15 {
		return fmt.Errorf("adc width must be within [9, 15], got %d", c.ADC.Width)
	}
	if c.ADC.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.ADC.Channel < 0 {
		return errors.New("adc channel must be >= 0")
	}
	if c.MQ2.LoadKOhm <= 0 {
		return errors.New("load-kohm must be > 0")
	}
	if c.MQ2.CleanAirFactor <= 0 {
		return errors.New("clean-air-factor must be > 0")
	}
	if c.MQ2.CalibrationSamples <= 0 {
		return errors.New("calibration samples must be > 0")
	}
	if c.MQ2.Ro < 0 {
		return errors.New("ro must not be negative")
	}
	if c.MQ2.Curves != nil {
		if err := c.MQ2.Curves.Validate(); err != nil {
			return err
		}
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt", "kafka", "http":
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

// DetectorOptions translates the mq2 section into conversion model options.
func (c Config) DetectorOptions() mq2.Options {
	opts := mq2.Options{
		Divider: mq2.Divider{LoadKOhm: c.MQ2.LoadKOhm, ADCMax: c.ADCMax()},
		Curves:  mq2.DefaultCurves(),
		Calibration: mq2.CalibrationOptions{
			Samples:        c.MQ2.CalibrationSamples,
			CleanAirFactor: c.MQ2.CleanAirFactor,
			Delay:          ms(c.MQ2.CalibrationDelayMs),
		},
		ReadSamples: c.MQ2.ReadSamples,
		ReadDelay:   ms(c.MQ2.ReadDelayMs),
		CacheTTL:    ms(c.MQ2.CacheTTLMs),
		AlarmPPM:    c.MQ2.AlarmPPM,
	}
	if c.MQ2.Curves != nil {
		opts.Curves = *c.MQ2.Curves
	}
	return opts
}

// ADCMax is the full scale count for the configured width.
func (c Config) ADCMax() int { return 1<<c.ADC.Width - 1 }

func (c Config) Interval() time.Duration { return ms(c.IntervalMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyIntMap parses "a=1,b=2" pairs.
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair %q", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", p, err)
		}
		out[strings.ToLower(strings.TrimSpace(kv[0]))] = v
	}
	return out, nil
}
