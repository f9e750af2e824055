package evaluator_test

import (
	"errors"
	"math"
	"testing"

	"virtual_sensors/evaluator"
	"virtual_sensors/formula"
	"virtual_sensors/sensor"

	"github.com/stretchr/testify/require"
)

func mustSeries(t *testing.T, sensorID, values, times string) evaluator.RawSeries {
	t.Helper()
	s, err := evaluator.NewRawSeries(sensorID+"-2016-01-28-reading-t", sensorID, "t", values, times)
	require.NoError(t, err)
	return s
}

func TestEvaluateIdentityFormula(t *testing.T) {
	// 2016-01-01 at 00:00, 00:05, 00:10
	series := mustSeries(t, "ANZ01", "4,5,6", "1451606400000,1451606700000,1451607000000")
	f := sensor.FormulaSpec{Formula: "ANZ01"}

	result, err := evaluator.Evaluate(f, []evaluator.RawSeries{series}, 300000)
	require.NoError(t, err)
	require.Equal(t, series.Values, result.Values)
	require.Equal(t, series.Times, result.Times)
	require.Empty(t, result.Skipped)
}

func TestEvaluatePartialOverlap(t *testing.T) {
	a := evaluator.RawSeries{SensorID: "a", Values: []float64{1, 2}, Times: []int64{0, 300000}}
	b := evaluator.RawSeries{SensorID: "b", Values: []float64{10}, Times: []int64{300000}}

	result, err := evaluator.Evaluate(sensor.FormulaSpec{Formula: "a+b"}, []evaluator.RawSeries{a, b}, 300000)
	require.NoError(t, err)
	require.Equal(t, []float64{12}, result.Values)
	require.Equal(t, []int64{300000}, result.Times)

	require.Len(t, result.Skipped, 1)
	require.Equal(t, int64(0), result.Skipped[0].Time)
	require.True(t, errors.Is(result.Skipped[0], formula.ErrUnknownVariable))
}

func TestEvaluateMultiSeries(t *testing.T) {
	series := []evaluator.RawSeries{
		mustSeries(t, "ANZ01", "1,2,3,4,5,6,7,9,10",
			"1453939200000,1453939500000,1453939800000,1453940100000,1453940400000,1453940700000,1453941000000,1453941300000,1453941600000"),
		mustSeries(t, "ANZ02", "2,3,4,5,6,7,9,10",
			"1453939500000,1453939800000,1453940100000,1453940400000,1453940700000,1453941000000,1453941300000,1453941600000"),
		mustSeries(t, "ANZ03", "0,0,0,0,0,0,0,10",
			"1453939500000,1453939800000,1453940100000,1453940400000,1453940700000,1453941000000,1453941300000,1453941600000"),
	}

	e, err := evaluator.New("(ANZ01+ANZ02+ANZ03)/2")
	require.NoError(t, err)
	result := e.Evaluate(series, 300000)

	require.Equal(t, "2,3,4,5,6,7,9,15", evaluator.EncodeValues(result.Values))
	require.Equal(t,
		"1453939500000,1453939800000,1453940100000,1453940400000,1453940700000,1453941000000,1453941300000,1453941600000",
		evaluator.EncodeTimes(result.Times))
}

func TestEvaluateNormalizesJitter(t *testing.T) {
	a := evaluator.RawSeries{SensorID: "a", Values: []float64{1, 2}, Times: []int64{1000, 301500}}
	b := evaluator.RawSeries{SensorID: "b", Values: []float64{5, 6}, Times: []int64{299999, 300001}}

	e, err := evaluator.New("a*b")
	require.NoError(t, err)
	result := e.Evaluate([]evaluator.RawSeries{a, b}, 300000)

	require.Equal(t, []int64{0, 300000}, result.Times)
	require.Equal(t, []float64{5, 12}, result.Values)
}

func TestEvaluateOutputCountMatchesCoverage(t *testing.T) {
	a := evaluator.RawSeries{SensorID: "a", Values: []float64{1, 1, 1, 1}, Times: []int64{0, 60000, 120000, 180000}}
	b := evaluator.RawSeries{SensorID: "b", Values: []float64{2, 2, 2}, Times: []int64{60000, 180000, 240000}}

	e, err := evaluator.New("a - b")
	require.NoError(t, err)
	result := e.Evaluate([]evaluator.RawSeries{a, b}, 60000)

	require.Equal(t, []int64{60000, 180000}, result.Times)
	require.Len(t, result.Skipped, 3)
}

func TestEvaluateSymbolBinding(t *testing.T) {
	x := evaluator.RawSeries{Symbol: "x", SensorID: "sensorId-3", Values: []float64{20}, Times: []int64{60000}}

	e, err := evaluator.New("x+273")
	require.NoError(t, err)
	result := e.Evaluate([]evaluator.RawSeries{x}, 60000)
	require.Equal(t, []float64{293}, result.Values)
}

func TestEvaluateSkipsArithmeticFailures(t *testing.T) {
	a := evaluator.RawSeries{SensorID: "a", Values: []float64{1, 1}, Times: []int64{0, 300000}}
	b := evaluator.RawSeries{SensorID: "b", Values: []float64{0, 4}, Times: []int64{0, 300000}}

	e, err := evaluator.New("a/b")
	require.NoError(t, err)
	result := e.Evaluate([]evaluator.RawSeries{a, b}, 0)

	require.Equal(t, []float64{0.25}, result.Values)
	require.Equal(t, []int64{300000}, result.Times)
	require.ErrorIs(t, result.Skipped[0], formula.ErrDivisionByZero)
}

func TestEvaluateParseError(t *testing.T) {
	_, err := evaluator.Evaluate(sensor.FormulaSpec{Formula: "a +"}, nil, 300000)
	var perr *formula.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestEvaluateEmpty(t *testing.T) {
	e, err := evaluator.New("a")
	require.NoError(t, err)
	result := e.Evaluate(nil, 300000)
	require.Zero(t, result.Len())
}

func TestSeriesCodecRoundTrip(t *testing.T) {
	values := []float64{0, 1, -2.5, 4.808, 0.1, 1e-7, 123456789.123, math.MaxFloat64}
	decoded, err := evaluator.DecodeValues(evaluator.EncodeValues(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)

	times := []int64{0, 1453940100000, -300000}
	decodedTimes, err := evaluator.DecodeTimes(evaluator.EncodeTimes(times))
	require.NoError(t, err)
	require.Equal(t, times, decodedTimes)
}

func TestSeriesDecodeErrors(t *testing.T) {
	_, err := evaluator.DecodeValues("1,x,3")
	require.Error(t, err)

	_, err = evaluator.DecodeTimes("1,,3")
	require.Error(t, err)

	values, err := evaluator.DecodeValues("")
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestNewRawSeriesTruncatesMismatch(t *testing.T) {
	s, err := evaluator.NewRawSeries("id", "a", "t", "1,2,3", "0,300000")
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, s.Values)
	require.Equal(t, []int64{0, 300000}, s.Times)
}
