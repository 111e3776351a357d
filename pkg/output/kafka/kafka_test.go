package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/ericogr/mq2-to-mqtt/pkg/output"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishReading(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "kitchen")
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	require.NoError(t, k.Publish(mq2.Reading{Timestamp: ts, Raw: 700, Detected: true}))
	require.NoError(t, k.PublishCalibration(mq2.Calibration{Ro: 2, Timestamp: ts}))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, []byte("kitchen"), msg.Key)
	assert.Equal(t, ts, msg.Time)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, []byte(output.EventReading), msg.Headers[0].Value)

	var ev output.Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, string(msg.Headers[1].Value), ev.ID)
	assert.Equal(t, 700, ev.Reading.Raw)
	assert.True(t, ev.Reading.Detected)

	assert.Equal(t, []byte(output.EventCalibration), w.msgs[1].Headers[0].Value)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestPublishError(t *testing.T) {
	down := errors.New("leader not available")
	k := newKafka(&fakeWriter{err: down}, "kitchen")
	assert.ErrorIs(t, k.Publish(mq2.Reading{}), down)
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(config.KafkaConfig{}, "kitchen")
	assert.Error(t, err)

	out, err := NewKafka(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, "kitchen")
	require.NoError(t, err)
	w := out.(*KafkaOutput).w.(*kafka.Writer)
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.NoError(t, out.Close())
}
