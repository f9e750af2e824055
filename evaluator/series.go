package evaluator

import (
	"fmt"
	"strconv"
	"strings"
)

// RawSeries is one day of one raw sensor's one measurement type.
// Symbol is the formula identifier the values are bound to; when empty the
// sensor id is used.
type RawSeries struct {
	ID              string
	Symbol          string
	SensorID        string
	MeasurementType string
	Values          []float64
	Times           []int64
}

func (s RawSeries) symbol() string {
	if s.Symbol != "" {
		return s.Symbol
	}
	return s.SensorID
}

// EncodeValues joins values with commas using the shortest representation
// that parses back to the same float64.
func EncodeValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// DecodeValues parses a comma-joined list of numbers. An empty string is an empty series.
func DecodeValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// EncodeTimes joins millisecond timestamps with commas.
func EncodeTimes(times []int64) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, ",")
}

// DecodeTimes parses comma-joined millisecond timestamps.
func DecodeTimes(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	times := make([]int64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		t, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			// some producers wrote times as floats
			f, ferr := strconv.ParseFloat(p, 64)
			if ferr != nil {
				return nil, fmt.Errorf("time %d: %w", i, err)
			}
			t = int64(f)
		}
		times[i] = t
	}
	return times, nil
}

// NewRawSeries decodes comma-joined values and times. Extra entries on the
// longer side are dropped.
func NewRawSeries(id, sensorID, measurementType, values, times string) (RawSeries, error) {
	vs, err := DecodeValues(values)
	if err != nil {
		return RawSeries{}, fmt.Errorf("series %s: %w", id, err)
	}
	ts, err := DecodeTimes(times)
	if err != nil {
		return RawSeries{}, fmt.Errorf("series %s: %w", id, err)
	}
	n := min(len(vs), len(ts))
	return RawSeries{
		ID:              id,
		SensorID:        sensorID,
		MeasurementType: measurementType,
		Values:          vs[:n],
		Times:           ts[:n],
	}, nil
}
