package sensor

import (
	"errors"
	"fmt"

	"virtual_sensors/formula"
)

// ErrValidation marks a sensor payload that cannot be processed.
var ErrValidation = errors.New("validation error")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Decorate returns the normalized view of a sensor: deduplicated measurement
// types and variables aggregated over all formulas, and the referenced raw
// sensor ids. The input is not modified.
func Decorate(def Definition) (Definition, error) {
	if def.Formulas == nil {
		return Definition{}, validationErrorf("sensor %q has no formulas", def.ID)
	}

	decorated := def
	decorated.Formulas = make([]FormulaSpec, len(def.Formulas))

	var measurementTypes, variables, sensorsIDs [][]string
	for i, f := range def.Formulas {
		if err := validateFormula(f); err != nil {
			return Definition{}, fmt.Errorf("formula %d of sensor %q: %w", i, def.ID, err)
		}

		normalized := f
		normalized.MeasurementType = UniqueNonEmpty(f.MeasurementType)
		normalized.Variables = UniqueNonEmpty(f.Variables)
		if f.Bindings != nil {
			normalized.Bindings = append([]VariableBinding(nil), f.Bindings...)
		}
		if !normalized.IsSymbolic() && len(normalized.Variables) == 0 {
			// Unparseable formulas keep no variables and fail later at compile time.
			if extracted, err := formula.ExtractVariables(f.Formula); err == nil {
				normalized.Variables = extracted
			}
		}
		decorated.Formulas[i] = normalized

		measurementTypes = append(measurementTypes, normalized.MeasurementType)
		variables = append(variables, normalized.Variables)
		if normalized.IsSymbolic() {
			ids := make([]string, 0, len(normalized.Bindings))
			for _, b := range normalized.Bindings {
				ids = append(ids, b.SensorID)
			}
			sensorsIDs = append(sensorsIDs, ids)
		} else {
			sensorsIDs = append(sensorsIDs, normalized.Variables)
		}
	}

	decorated.MeasurementTypes = UniqueNonEmpty(measurementTypes...)
	decorated.Variables = UniqueNonEmpty(variables...)
	decorated.SensorsIDs = UniqueNonEmpty(sensorsIDs...)
	return decorated, nil
}

func validateFormula(f FormulaSpec) error {
	if f.Formula == "" {
		return validationErrorf("missing formula text")
	}
	if len(UniqueNonEmpty(f.MeasurementType)) == 0 {
		return validationErrorf("missing measurementType")
	}
	if f.Start.IsZero() {
		return validationErrorf("missing start")
	}
	for _, b := range f.Bindings {
		if b.Symbol == "" || b.SensorID == "" {
			return validationErrorf("variable binding needs symbol and sensorId")
		}
	}
	return nil
}

// UniqueNonEmpty concatenates the lists, dropping empty strings and
// duplicates while keeping first-seen order. It returns nil when nothing is left.
func UniqueNonEmpty(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
