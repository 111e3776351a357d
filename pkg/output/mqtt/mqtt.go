package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/ericogr/mq2-to-mqtt/pkg/output"
)

const (
	// defaults
	DefaultServer         = "tcp://localhost:1883"
	DefaultClientID       = "mq2-client"
	defaultStateTopicFmt  = "mq2/%s/state"
	defaultCalibrationFmt = "mq2/%s/calibration"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyJSONAttributesTmpl  = "json_attributes_template"
	keyUniqueID            = "unique_id"
	keyIcon                = "icon"
	unitPPM                = "ppm"
	stateClassMeasurement  = "measurement"
	valueTemplateFmt       = "{{ value_json.reading.ppm.%s }}"
	attributesTemplate     = "{{ {'raw': value_json.reading.raw, 'ratio': value_json.reading.ratio, 'detected': value_json.reading.detected} | tojson }}"
	iconGas                = "mdi:molecule"
)

// publisher is the subset of the paho client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client           publisher
	sensorID         string
	stateTopic       string
	calibrationTopic string
	log              *slog.Logger
}

func NewMQTT(cfg config.MQTTConfig, sensorID string, log *slog.Logger) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTT(client, cfg, sensorID, log), nil
}

func newMQTT(client publisher, cfg config.MQTTConfig, sensorID string, log *slog.Logger) *MQTTOutput {
	if log == nil {
		log = slog.Default()
	}
	m := &MQTTOutput{
		client:           client,
		sensorID:         sensorID,
		stateTopic:       topicOr(cfg.StateTopic, defaultStateTopicFmt, sensorID),
		calibrationTopic: topicOr(cfg.CalibrationTopic, defaultCalibrationFmt, sensorID),
		log:              log.With(slog.String("component", "mqtt")),
	}
	// Publish Home Assistant discovery payload(s) if requested
	if cfg.DiscoveryTopic != "" {
		for _, g := range mq2.Gases {
			dTopic := discoveryTopic(cfg.DiscoveryTopic, g)
			payload := baseDiscoveryPayload(discoveryName(cfg, sensorID, g), m.stateTopic, discoveryUniqueID(cfg, sensorID, g), g)
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				m.log.Error("mqtt discovery publish error", slog.String("topic", dTopic), slog.Any("err", err))
			}
		}
	}
	return m
}

// PublishCalibration publishes Ro retained, so late subscribers see the baseline.
func (m *MQTTOutput) PublishCalibration(c mq2.Calibration) error {
	return publishJSON(m.client, m.calibrationTopic, true, output.NewCalibrationEvent(m.sensorID, c))
}

func (m *MQTTOutput) Publish(r mq2.Reading) error {
	return publishJSON(m.client, m.stateTopic, false, output.NewReadingEvent(m.sensorID, r))
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: use the configured topic, or the default for this sensor
func topicOr(topic, def, sensorID string) string {
	if topic != "" {
		if strings.Contains(topic, "%s") {
			return fmt.Sprintf(topic, sensorID)
		}
		return topic
	}
	return fmt.Sprintf(def, sensorID)
}

// helper: discovery topics need one entry per gas; without a %s formatter
// the gas is appended as a path element.
func discoveryTopic(base string, g mq2.Gas) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, g)
	}
	return strings.TrimSuffix(base, "/") + "/" + g.String()
}

func discoveryName(cfg config.MQTTConfig, sensorID string, g mq2.Gas) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("MQ-2 %s", sensorID)
	}
	return fmt.Sprintf("%s %s", name, strings.ToUpper(g.String()))
}

func discoveryUniqueID(cfg config.MQTTConfig, sensorID string, g mq2.Gas) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = sensorID
	}
	return fmt.Sprintf("%s_%s", uid, g)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string, g mq2.Gas) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitPPM,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf(valueTemplateFmt, g),
		keyJSONAttributesTopic: stateTopic,
		keyJSONAttributesTmpl:  attributesTemplate,
		keyIcon:                iconGas,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client publisher, topic string, retained bool, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
