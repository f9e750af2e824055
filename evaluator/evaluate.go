package evaluator

import (
	"fmt"
	"slices"

	"virtual_sensors/formula"
	"virtual_sensors/logger"
	"virtual_sensors/sensor"
)

// EvaluationError reports a timestamp that could not be computed.
type EvaluationError struct {
	Time int64
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation at %d: %v", e.Time, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Result holds the computed readings in ascending time order.
// Skipped lists the timestamps that failed evaluation.
type Result struct {
	Values  []float64
	Times   []int64
	Skipped []*EvaluationError
}

func (r Result) Len() int { return len(r.Times) }

// Evaluator aligns raw series on a time grid and applies a compiled formula.
type Evaluator struct {
	program *formula.Program
}

// New compiles the formula once for reuse across buckets.
func New(source string) (*Evaluator, error) {
	program, err := formula.Compile(source)
	if err != nil {
		return nil, err
	}
	return &Evaluator{program: program}, nil
}

func (e *Evaluator) Program() *formula.Program { return e.program }

// Evaluate compiles f and evaluates it over the given series.
func Evaluate(f sensor.FormulaSpec, series []RawSeries, bucketDeltaMs int64) (Result, error) {
	e, err := New(f.Formula)
	if err != nil {
		return Result{}, err
	}
	return e.Evaluate(series, bucketDeltaMs), nil
}

type point struct {
	symbol string
	value  float64
	time   int64
}

// Evaluate computes one reading per distinct grid time present in any series.
// Every timestamp is snapped down to a multiple of bucketDeltaMs. At each
// time only the series with a point there contribute; a time whose formula
// cannot be computed is skipped without affecting the others.
func (e *Evaluator) Evaluate(series []RawSeries, bucketDeltaMs int64) Result {
	if bucketDeltaMs <= 0 {
		bucketDeltaMs = sensor.DefaultMeasurementDelta
	}

	var points []point
	for _, s := range series {
		symbol := s.symbol()
		for i, t := range s.Times {
			if i >= len(s.Values) {
				break
			}
			points = append(points, point{symbol: symbol, value: s.Values[i], time: normalize(t, bucketDeltaMs)})
		}
	}

	byTime := make(map[int64]map[string]float64)
	for _, p := range points {
		vars, ok := byTime[p.time]
		if !ok {
			vars = make(map[string]float64)
			byTime[p.time] = vars
		}
		// later points in the same grid slot win
		vars[p.symbol] = p.value
	}

	times := make([]int64, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	slices.Sort(times)

	result := Result{
		Values: make([]float64, 0, len(times)),
		Times:  make([]int64, 0, len(times)),
	}
	for _, t := range times {
		v, err := e.program.Eval(byTime[t])
		if err != nil {
			evalErr := &EvaluationError{Time: t, Err: err}
			logger.Debugf("skipping measurement of %q: %v\n", e.program.Source(), evalErr)
			result.Skipped = append(result.Skipped, evalErr)
			continue
		}
		result.Values = append(result.Values, v)
		result.Times = append(result.Times, t)
	}
	return result
}

// normalize floors t to the grid. Negative times floor towards minus infinity.
func normalize(t, delta int64) int64 {
	r := t % delta
	if r < 0 {
		r += delta
	}
	return t - r
}
