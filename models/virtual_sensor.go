package models

import (
	"time"

	"gorm.io/datatypes"

	"virtual_sensors/sensor"
)

// VirtualSensor is the persisted, normalized definition of a virtual sensor.
// It is the reference the next change event is diffed against.
type VirtualSensor struct {
	ID                string                                  `gorm:"primaryKey;size:255" json:"_id"`
	UnitOfMeasurement string                                  `gorm:"size:64" json:"unitOfMeasurement,omitempty"`
	MeasurementType   datatypes.JSONSlice[string]             `json:"measurementType"`
	Variables         datatypes.JSONSlice[string]             `json:"variables"`
	SensorsIDs        datatypes.JSONSlice[string]             `json:"sensorsIds,omitempty"`
	Formulas          datatypes.JSONSlice[sensor.FormulaSpec] `json:"formulas"`
	UpdatedAt         time.Time                               `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName customizes the table name
func (VirtualSensor) TableName() string {
	return "virtual_sensors_formulas"
}

// NewVirtualSensor converts a decorated definition into its stored form
func NewVirtualSensor(def sensor.Definition) *VirtualSensor {
	return &VirtualSensor{
		ID:                def.ID,
		UnitOfMeasurement: def.UnitOfMeasurement,
		MeasurementType:   nonNil(def.MeasurementTypes),
		Variables:         nonNil(def.Variables),
		SensorsIDs:        nonNil(def.SensorsIDs),
		Formulas:          datatypes.JSONSlice[sensor.FormulaSpec](def.Formulas),
	}
}

// Definition converts the stored document back into a sensor definition
func (v *VirtualSensor) Definition() sensor.Definition {
	return sensor.Definition{
		ID:                v.ID,
		Virtual:           true,
		UnitOfMeasurement: v.UnitOfMeasurement,
		Formulas:          []sensor.FormulaSpec(v.Formulas),
		MeasurementTypes:  []string(v.MeasurementType),
		Variables:         []string(v.Variables),
		SensorsIDs:        []string(v.SensorsIDs),
	}
}

func nonNil(values []string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](values)
}
