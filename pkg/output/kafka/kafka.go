package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/ericogr/mq2-to-mqtt/pkg/output"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "mq2.readings"
	writeTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOutput writes every report as a JSON event keyed by sensor id, so all
// events of one sensor land on the same partition in order.
type KafkaOutput struct {
	w        messageWriter
	sensorID string
}

func NewKafka(cfg config.KafkaConfig, sensorID string) (output.Output, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newKafka(w, sensorID), nil
}

func newKafka(w messageWriter, sensorID string) *KafkaOutput {
	return &KafkaOutput{w: w, sensorID: sensorID}
}

func (k *KafkaOutput) PublishCalibration(c mq2.Calibration) error {
	return k.write(output.NewCalibrationEvent(k.sensorID, c))
}

func (k *KafkaOutput) Publish(r mq2.Reading) error {
	return k.write(output.NewReadingEvent(k.sensorID, r))
}

func (k *KafkaOutput) write(ev output.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(k.sensorID),
		Value: b,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "event-id", Value: []byte(ev.ID)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaOutput) Close() error { return k.w.Close() }
