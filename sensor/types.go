package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relvacode/iso8601"
)

const (
	// DefaultMeasurementDelta is the sampling grid applied when a formula sets none (ms).
	DefaultMeasurementDelta int64 = 300000
	// SourceReading marks measurements coming from readings.
	SourceReading = "reading"
	// DayLayout formats the calendar day part of bucket keys.
	DayLayout = "2006-01-02"
)

// Timestamp is an instant decoded from any ISO-8601 form used by upstream
// producers ("2011-01-01T00:00:00Z", "2011-01-01T00:00:00.000Z", ...).
// The zero value means "not set".
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MustParseTimestamp parses an ISO-8601 string and panics on failure.
func MustParseTimestamp(s string) Timestamp {
	t, err := iso8601.ParseString(s)
	if err != nil {
		panic(err)
	}
	return NewTimestamp(t)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var millis int64
		if err := json.Unmarshal(data, &millis); err != nil {
			return fmt.Errorf("timestamp must be an ISO-8601 string or epoch milliseconds: %s", data)
		}
		*t = NewTimestamp(time.UnixMilli(millis))
		return nil
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := iso8601.ParseString(raw)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	*t = NewTimestamp(parsed)
	return nil
}

// Equal compares instants, ignoring the representation they were decoded from.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.Time.Equal(o.Time)
}

// StringSet is a list of strings that also decodes from a single JSON string.
type StringSet []string

func (s *StringSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringSet{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*s = list
	return nil
}

// VariableBinding maps a formula symbol to a raw sensor channel.
type VariableBinding struct {
	Symbol          string `json:"symbol"`
	SensorID        string `json:"sensorId"`
	MeasurementType string `json:"measurementType,omitempty"`
}

// FormulaSpec is one formula of a virtual sensor, active between Start and End.
//
// Variables comes in two shapes: a flat list of raw sensor ids, which are
// also the identifiers used in the formula, or a list of bindings
// {symbol, sensorId, measurementType}. The flat shape fills Variables; the
// symbolic shape fills Bindings.
type FormulaSpec struct {
	Formula           string            `json:"formula"`
	Variables         []string          `json:"-"`
	Bindings          []VariableBinding `json:"-"`
	MeasurementType   StringSet         `json:"measurementType"`
	MeasurementUnit   string            `json:"measurementUnit,omitempty"`
	Start             Timestamp         `json:"start"`
	End               Timestamp         `json:"end"`
	AggregationType   string            `json:"aggregationType,omitempty"`
	MeasurementDelta  int64             `json:"measurementDelta,omitempty"`
	MeasurementSample int64             `json:"measurementSample,omitempty"`
}

type formulaSpecJSON FormulaSpec

func (f FormulaSpec) MarshalJSON() ([]byte, error) {
	type wire struct {
		formulaSpecJSON
		Variables any `json:"variables"`
	}
	w := wire{formulaSpecJSON: formulaSpecJSON(f)}
	if f.IsSymbolic() {
		w.Variables = f.Bindings
	} else if f.Variables != nil {
		w.Variables = f.Variables
	} else {
		w.Variables = []string{}
	}
	return json.Marshal(w)
}

func (f *FormulaSpec) UnmarshalJSON(data []byte) error {
	type wire struct {
		formulaSpecJSON
		Variables json.RawMessage `json:"variables"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = FormulaSpec(w.formulaSpecJSON)
	f.Variables, f.Bindings = nil, nil

	raw := bytes.TrimSpace(w.Variables)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("variables must be a list: %w", err)
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var b VariableBinding
			if err := json.Unmarshal(item, &b); err != nil {
				return fmt.Errorf("invalid variable binding: %w", err)
			}
			f.Bindings = append(f.Bindings, b)
			continue
		}
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return fmt.Errorf("invalid variable: %w", err)
		}
		f.Variables = append(f.Variables, name)
	}
	return nil
}

// IsSymbolic reports whether the formula binds symbols to sensors explicitly.
func (f FormulaSpec) IsSymbolic() bool {
	return len(f.Bindings) > 0
}

// Delta returns the sampling grid in milliseconds.
func (f FormulaSpec) Delta() int64 {
	switch {
	case f.MeasurementDelta > 0:
		return f.MeasurementDelta
	case f.MeasurementSample > 0:
		return f.MeasurementSample
	default:
		return DefaultMeasurementDelta
	}
}

// EffectiveEnd caps the formula end at now. An unset end is open-ended.
func (f FormulaSpec) EffectiveEnd(now time.Time) time.Time {
	if f.End.IsZero() || f.End.After(now) {
		return now.UTC()
	}
	return f.End.UTC()
}

// SeriesRef names the raw series feeding one formula symbol.
type SeriesRef struct {
	Symbol          string
	SensorID        string
	MeasurementType string
}

// SeriesRefs lists the raw series a formula reads when computing measurementType.
func (f FormulaSpec) SeriesRefs(measurementType string) []SeriesRef {
	if f.IsSymbolic() {
		refs := make([]SeriesRef, 0, len(f.Bindings))
		for _, b := range f.Bindings {
			if b.SensorID == "" {
				continue
			}
			mt := b.MeasurementType
			if mt == "" {
				mt = measurementType
			}
			refs = append(refs, SeriesRef{Symbol: b.Symbol, SensorID: b.SensorID, MeasurementType: mt})
		}
		return refs
	}
	refs := make([]SeriesRef, 0, len(f.Variables))
	for _, v := range f.Variables {
		if v == "" {
			continue
		}
		refs = append(refs, SeriesRef{Symbol: v, SensorID: v, MeasurementType: measurementType})
	}
	return refs
}

// Definition is a sensor as carried by change events and persisted between runs.
type Definition struct {
	ID                string        `json:"id"`
	Virtual           bool          `json:"virtual"`
	UnitOfMeasurement string        `json:"unitOfMeasurement,omitempty"`
	Formulas          []FormulaSpec `json:"formulas"`
	MeasurementTypes  []string      `json:"measurementType,omitempty"`
	Variables         []string      `json:"variables,omitempty"`
	SensorsIDs        []string      `json:"sensorsIds,omitempty"`
}

// UnitFor resolves the unit attached to readings of a formula.
func (d Definition) UnitFor(f FormulaSpec) string {
	if f.MeasurementUnit != "" {
		return f.MeasurementUnit
	}
	return d.UnitOfMeasurement
}

// BucketKey identifies one sensor's one measurement type on one UTC day.
func BucketKey(sensorID, day, measurementType string) string {
	return fmt.Sprintf("%s-%s-reading-%s", sensorID, day, measurementType)
}
