package models

import (
	"time"

	"virtual_sensors/evaluator"
	"virtual_sensors/sensor"
)

// SensorAggregate is one day of one sensor's one measurement type, stored as
// comma-joined values and millisecond times. Raw sensors and virtual sensors
// share the table; the ID is "{sensorId}-{day}-reading-{measurementType}".
type SensorAggregate struct {
	ID                string    `gorm:"primaryKey;size:255" json:"_id"`
	Day               string    `gorm:"index;size:10;not null" json:"day"`
	SensorID          string    `gorm:"index;size:255;not null" json:"sensorId"`
	Source            string    `gorm:"size:32" json:"source"`
	MeasurementType   string    `gorm:"size:128;not null" json:"measurementType"`
	UnitOfMeasurement string    `gorm:"size:64" json:"unitOfMeasurement,omitempty"`
	MeasurementValues string    `gorm:"type:text" json:"measurementValues"`
	MeasurementTimes  string    `gorm:"type:text" json:"measurementTimes"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName customizes the table name
func (SensorAggregate) TableName() string {
	return "readings_daily_aggregates"
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&VirtualSensor{},
		&SensorAggregate{},
	}
}

// NewSensorAggregate encodes one day of readings under its bucket key.
func NewSensorAggregate(sensorID, day, measurementType, unit string, values []float64, times []int64) *SensorAggregate {
	return &SensorAggregate{
		ID:                sensor.BucketKey(sensorID, day, measurementType),
		Day:               day,
		SensorID:          sensorID,
		Source:            sensor.SourceReading,
		MeasurementType:   measurementType,
		UnitOfMeasurement: unit,
		MeasurementValues: evaluator.EncodeValues(values),
		MeasurementTimes:  evaluator.EncodeTimes(times),
	}
}

// Series decodes the stored readings.
func (a *SensorAggregate) Series() (evaluator.RawSeries, error) {
	return evaluator.NewRawSeries(a.ID, a.SensorID, a.MeasurementType, a.MeasurementValues, a.MeasurementTimes)
}
