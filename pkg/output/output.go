package output

import (
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/google/uuid"
)

// Output receives calibration and reading reports.
type Output interface {
	PublishCalibration(mq2.Calibration) error
	Publish(mq2.Reading) error
	Close() error
}

const (
	EventReading     = "reading"
	EventCalibration = "calibration"
)

// Event is the JSON envelope shared by the message based outputs.
type Event struct {
	ID          string           `json:"id"`
	SensorID    string           `json:"sensor_id"`
	Type        string           `json:"type"`
	Time        time.Time        `json:"time"`
	Reading     *mq2.Reading     `json:"reading,omitempty"`
	Calibration *mq2.Calibration `json:"calibration,omitempty"`
}

func NewReadingEvent(sensorID string, r mq2.Reading) Event {
	return Event{ID: uuid.NewString(), SensorID: sensorID, Type: EventReading, Time: r.Timestamp, Reading: &r}
}

func NewCalibrationEvent(sensorID string, c mq2.Calibration) Event {
	return Event{ID: uuid.NewString(), SensorID: sensorID, Type: EventCalibration, Time: c.Timestamp, Calibration: &c}
}

// helper constructors are in subpackages
