package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"virtual_sensors/sensor"
)

// Event types routed to the pipeline.
const (
	TypeSensorInserted  = "element inserted in collection sensors"
	TypeSensorReplaced  = "element replaced in collection sensors"
	TypeReadingInserted = "element inserted in collection readings"
)

// ChangeEvent is a sensor insert or replace notification.
type ChangeEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Data      *ChangeData `json:"data"`
}

// ChangeData carries the changed sensor. ID is authoritative over any id in Element.
type ChangeData struct {
	ID      string          `json:"id"`
	Element json.RawMessage `json:"element"`
}

// IsSensorChange reports whether the event should be routed to the pipeline.
// Producers that predate typed events leave Type empty.
func (e ChangeEvent) IsSensorChange() bool {
	switch e.Type {
	case "", TypeSensorInserted, TypeSensorReplaced:
		return true
	default:
		return false
	}
}

// ParseChangeEvent decodes a message body.
func ParseChangeEvent(body []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("invalid change event: %w", err)
	}
	return ev, nil
}

// element is the subset of a sensor document the pipeline needs to accept it.
type element struct {
	Virtual  *bool            `json:"virtual"`
	Formulas *json.RawMessage `json:"formulas"`
}

// Definition extracts the virtual sensor carried by the event. data.id names
// the sensor; it fails when data.id, element, virtual flag or formulas are missing.
func (e ChangeEvent) Definition() (sensor.Definition, error) {
	if e.Data == nil || e.Data.ID == "" {
		return sensor.Definition{}, fmt.Errorf("%w: data.id is missing", sensor.ErrValidation)
	}
	if len(e.Data.Element) == 0 || string(e.Data.Element) == "null" {
		return sensor.Definition{}, fmt.Errorf("%w: data.element is missing", sensor.ErrValidation)
	}

	var probe element
	if err := json.Unmarshal(e.Data.Element, &probe); err != nil {
		return sensor.Definition{}, fmt.Errorf("%w: data.element: %v", sensor.ErrValidation, err)
	}
	if probe.Virtual == nil || !*probe.Virtual {
		return sensor.Definition{}, fmt.Errorf("%w: sensor %s is not virtual", sensor.ErrValidation, e.Data.ID)
	}
	if probe.Formulas == nil || string(*probe.Formulas) == "null" {
		return sensor.Definition{}, fmt.Errorf("%w: sensor %s has no formulas", sensor.ErrValidation, e.Data.ID)
	}

	var def sensor.Definition
	if err := json.Unmarshal(e.Data.Element, &def); err != nil {
		return sensor.Definition{}, fmt.Errorf("%w: sensor %s: %v", sensor.ErrValidation, e.Data.ID, err)
	}
	def.ID = e.Data.ID
	return def, nil
}

// Measurement is one value of a reading.
type Measurement struct {
	Type              string  `json:"type"`
	Value             float64 `json:"value"`
	UnitOfMeasurement string  `json:"unitOfMeasurement,omitempty"`
}

// Reading is one computed virtual measurement.
type Reading struct {
	SensorID     string        `json:"sensorId"`
	Date         string        `json:"date"`
	Source       string        `json:"source"`
	Measurements []Measurement `json:"measurements"`
}

// ReadingEvent is the envelope published for every computed reading.
type ReadingEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      ReadingData `json:"data"`
}

// ReadingData carries the reading element.
type ReadingData struct {
	Element Reading `json:"element"`
}

// NewReadingEvent wraps one evaluated value at time t (epoch milliseconds).
func NewReadingEvent(sensorID, measurementType, unit string, value float64, t int64, now time.Time) ReadingEvent {
	return ReadingEvent{
		ID:        uuid.NewString(),
		Type:      TypeReadingInserted,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Data: ReadingData{Element: Reading{
			SensorID: sensorID,
			Date:     time.UnixMilli(t).UTC().Format(time.RFC3339Nano),
			Source:   sensor.SourceReading,
			Measurements: []Measurement{{
				Type:              measurementType,
				Value:             value,
				UnitOfMeasurement: unit,
			}},
		}},
	}
}
