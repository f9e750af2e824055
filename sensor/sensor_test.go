package sensor_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"virtual_sensors/sensor"

	"github.com/stretchr/testify/require"
)

func ts(s string) sensor.Timestamp {
	return sensor.MustParseTimestamp(s)
}

func TestDecodeFlatPayload(t *testing.T) {
	payload := `{
		"id": "VIRTUAL01",
		"virtual": true,
		"unitOfMeasurement": "kWh",
		"formulas": [{
			"formula": "ANZ01 + ANZ02",
			"variables": ["ANZ01", "ANZ02"],
			"measurementType": ["temperature"],
			"start": "2011-01-01T00:00:00.000Z",
			"end": "2100-01-01T00:00:00Z"
		}]
	}`

	var def sensor.Definition
	require.NoError(t, json.Unmarshal([]byte(payload), &def))
	require.True(t, def.Virtual)
	require.Len(t, def.Formulas, 1)

	f := def.Formulas[0]
	require.False(t, f.IsSymbolic())
	require.Equal(t, []string{"ANZ01", "ANZ02"}, f.Variables)
	require.Equal(t, sensor.StringSet{"temperature"}, f.MeasurementType)
	require.True(t, f.Start.Equal(ts("2011-01-01T00:00:00Z")))
	require.Equal(t, sensor.DefaultMeasurementDelta, f.Delta())
}

func TestDecodeSymbolicPayload(t *testing.T) {
	payload := `{
		"formula": "x+y",
		"variables": [
			{"symbol": "x", "sensorId": "sensorId-1", "measurementType": "temperature"},
			{"symbol": "y", "sensorId": "sensorId-2", "measurementType": "co2"}
		],
		"start": "1970-01-01T00:00:00Z",
		"end": "1970-01-02T00:00:00Z",
		"measurementType": "customType",
		"measurementUnit": "°C/ppm",
		"measurementSample": 60000
	}`

	var f sensor.FormulaSpec
	require.NoError(t, json.Unmarshal([]byte(payload), &f))
	require.True(t, f.IsSymbolic())
	require.Nil(t, f.Variables)
	require.Equal(t, sensor.StringSet{"customType"}, f.MeasurementType)
	require.Equal(t, int64(60000), f.Delta())
	require.Equal(t, []sensor.SeriesRef{
		{Symbol: "x", SensorID: "sensorId-1", MeasurementType: "temperature"},
		{Symbol: "y", SensorID: "sensorId-2", MeasurementType: "co2"},
	}, f.SeriesRefs("customType"))

	encoded, err := json.Marshal(f)
	require.NoError(t, err)
	var again sensor.FormulaSpec
	require.NoError(t, json.Unmarshal(encoded, &again))
	require.Equal(t, f.Bindings, again.Bindings)
	require.True(t, again.SameAs(f))
}

func TestDecorateFlat(t *testing.T) {
	def := sensor.Definition{
		ID:      "VIRTUAL01",
		Virtual: true,
		Formulas: []sensor.FormulaSpec{{
			Formula:         "ANZ01",
			Variables:       []string{"ANZ01"},
			MeasurementType: sensor.StringSet{"activeEnergy", "temperature"},
			Start:           ts("1970-01-01T00:00:00Z"),
			End:             ts("2170-01-01T00:00:00Z"),
		}, {
			Formula:         "ANZ01 + ANZ02",
			Variables:       []string{"ANZ01", "ANZ02", ""},
			MeasurementType: sensor.StringSet{"temperature", ""},
			Start:           ts("2011-01-01T00:00:00Z"),
			End:             ts("2100-01-01T00:00:00Z"),
		}},
	}

	decorated, err := sensor.Decorate(def)
	require.NoError(t, err)
	require.Equal(t, []string{"activeEnergy", "temperature"}, decorated.MeasurementTypes)
	require.Equal(t, []string{"ANZ01", "ANZ02"}, decorated.Variables)
	require.Equal(t, []string{"ANZ01", "ANZ02"}, decorated.SensorsIDs)
	require.Equal(t, sensor.StringSet{"temperature"}, decorated.Formulas[1].MeasurementType)

	// input untouched
	require.Equal(t, []string{"ANZ01", "ANZ02", ""}, def.Formulas[1].Variables)
}

func TestDecorateDerivesMissingVariables(t *testing.T) {
	def := sensor.Definition{
		ID: "V",
		Formulas: []sensor.FormulaSpec{{
			Formula:         "(a + b) / c",
			MeasurementType: sensor.StringSet{"power"},
			Start:           ts("2016-01-01T00:00:00Z"),
		}},
	}
	decorated, err := sensor.Decorate(def)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, decorated.Formulas[0].Variables)
	require.Equal(t, []string{"a", "b", "c"}, decorated.Variables)
}

func TestDecorateSymbolic(t *testing.T) {
	def := sensor.Definition{
		ID: "sensorId-0",
		Formulas: []sensor.FormulaSpec{{
			Formula: "x+y",
			Bindings: []sensor.VariableBinding{
				{Symbol: "x", SensorID: "sensorId-1", MeasurementType: "temperature"},
				{Symbol: "y", SensorID: "sensorId-2", MeasurementType: "co2"},
			},
			MeasurementType: sensor.StringSet{"customType"},
			Start:           ts("1970-01-01T00:00:00Z"),
			End:             ts("1970-01-02T00:00:00Z"),
		}, {
			Formula: "x+273",
			Bindings: []sensor.VariableBinding{
				{Symbol: "x", SensorID: "sensorId-3", MeasurementType: "temperature"},
				{Symbol: "y", SensorID: "sensorId-1", MeasurementType: "temperature"},
			},
			MeasurementType: sensor.StringSet{"temperature"},
			Start:           ts("1970-01-01T00:00:00Z"),
			End:             ts("1970-01-02T00:00:00Z"),
		}},
	}

	decorated, err := sensor.Decorate(def)
	require.NoError(t, err)
	require.Equal(t, []string{"sensorId-1", "sensorId-2", "sensorId-3"}, decorated.SensorsIDs)
	require.Equal(t, def.Formulas[0].Bindings, decorated.Formulas[0].Bindings)
	require.Equal(t, def.Formulas[1].Formula, decorated.Formulas[1].Formula)
}

func TestDecorateValidation(t *testing.T) {
	valid := sensor.FormulaSpec{
		Formula:         "a",
		MeasurementType: sensor.StringSet{"t"},
		Start:           ts("2016-01-01T00:00:00Z"),
	}

	noText := valid
	noText.Formula = ""
	noType := valid
	noType.MeasurementType = sensor.StringSet{""}
	noStart := valid
	noStart.Start = sensor.Timestamp{}

	cases := map[string]sensor.Definition{
		"no formulas":     {ID: "s"},
		"no formula text": {ID: "s", Formulas: []sensor.FormulaSpec{valid, noText}},
		"no type":         {ID: "s", Formulas: []sensor.FormulaSpec{noType}},
		"no start":        {ID: "s", Formulas: []sensor.FormulaSpec{noStart}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := sensor.Decorate(def)
			require.True(t, errors.Is(err, sensor.ErrValidation), err)
		})
	}
}

func deltaFixture() sensor.Definition {
	return sensor.Definition{
		Formulas: []sensor.FormulaSpec{{
			Formula:         "IT001E00088487",
			MeasurementType: sensor.StringSet{"activeEnergy", "temperature"},
			Start:           ts("1970-01-01T00:00:00Z"),
			End:             ts("2011-01-01T00:00:00Z"),
		}, {
			Formula:         "ANZ01 + ANZ02",
			MeasurementType: sensor.StringSet{"temperature"},
			Start:           ts("2011-01-01T00:00:00.000Z"),
			End:             ts("2170-01-01T00:00:00.000Z"),
		}},
	}
}

func TestDeltaReflexive(t *testing.T) {
	def := deltaFixture()
	require.Empty(t, sensor.Delta(def, &def))
}

func TestDeltaWithoutStoredState(t *testing.T) {
	def := deltaFixture()
	require.Equal(t, def.Formulas, sensor.Delta(def, nil))
}

func TestDeltaEndChanged(t *testing.T) {
	incoming := deltaFixture()
	stored := sensor.Definition{
		Formulas: []sensor.FormulaSpec{{
			Formula:         "IT001E00088487",
			MeasurementType: sensor.StringSet{"activeEnergy", "temperature"},
			Start:           ts("1970-01-01T00:00:00Z"),
			End:             ts("2170-01-01T00:00:00Z"),
		}},
	}
	require.Equal(t, incoming.Formulas, sensor.Delta(incoming, &stored))

	// roles swapped: only the stored formula missing from the other side
	require.Equal(t, stored.Formulas, sensor.Delta(stored, &incoming))
}

func TestDeltaIgnoresTypeOrderAndVariables(t *testing.T) {
	incoming := deltaFixture()
	stored := deltaFixture()
	stored.Formulas[0].MeasurementType = sensor.StringSet{"temperature", "activeEnergy"}
	stored.Formulas[1].Variables = []string{"ANZ01", "ANZ02"}
	stored.Formulas[1].Start = ts("2011-01-01T00:00:00Z")

	require.Empty(t, sensor.Delta(incoming, &stored))
	require.Equal(t, sensor.StringSet{"temperature", "activeEnergy"}, stored.Formulas[0].MeasurementType)
}

func TestDeltaAggregationTypeChanged(t *testing.T) {
	incoming := deltaFixture()
	stored := deltaFixture()
	incoming.Formulas[1].AggregationType = "sum"

	require.Equal(t, []sensor.FormulaSpec{incoming.Formulas[1]}, sensor.Delta(incoming, &stored))
}

func TestResolveBuckets(t *testing.T) {
	f := sensor.FormulaSpec{
		Formula:         "IT001E00088487",
		Variables:       []string{"IT001E00088487"},
		MeasurementType: sensor.StringSet{"activeEnergy", "temperature"},
		Start:           ts("1970-01-01T00:00:00Z"),
		End:             ts("1970-01-03T00:00:00Z"),
	}
	now := time.Date(2016, 1, 15, 0, 0, 0, 0, time.UTC)

	buckets := sensor.ResolveBuckets(f, now)
	require.Equal(t, map[string][]sensor.DayBucket{
		"activeEnergy": {
			{Day: "1970-01-01", IDs: []string{"IT001E00088487-1970-01-01-reading-activeEnergy"}, Symbols: []string{"IT001E00088487"}},
			{Day: "1970-01-02", IDs: []string{"IT001E00088487-1970-01-02-reading-activeEnergy"}, Symbols: []string{"IT001E00088487"}},
			{Day: "1970-01-03", IDs: []string{"IT001E00088487-1970-01-03-reading-activeEnergy"}, Symbols: []string{"IT001E00088487"}},
		},
		"temperature": {
			{Day: "1970-01-01", IDs: []string{"IT001E00088487-1970-01-01-reading-temperature"}, Symbols: []string{"IT001E00088487"}},
			{Day: "1970-01-02", IDs: []string{"IT001E00088487-1970-01-02-reading-temperature"}, Symbols: []string{"IT001E00088487"}},
			{Day: "1970-01-03", IDs: []string{"IT001E00088487-1970-01-03-reading-temperature"}, Symbols: []string{"IT001E00088487"}},
		},
	}, buckets)
}

func TestResolveBucketsKeyCount(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		start string
		end   string
		types []string
		vars  []string
		days  int
	}{
		{"single day", "2016-01-01T00:00:00Z", "2016-01-01T23:00:00Z", []string{"t"}, []string{"a"}, 1},
		{"mid-day start", "2016-01-01T18:30:00Z", "2016-01-03T01:00:00Z", []string{"t", "e"}, []string{"a", "b"}, 3},
		{"month", "2016-02-01T00:00:00Z", "2016-02-29T00:00:00Z", []string{"t", "e", "h"}, []string{"a", "b", "c"}, 29},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := sensor.FormulaSpec{
				Formula:         "x",
				Variables:       tc.vars,
				MeasurementType: tc.types,
				Start:           ts(tc.start),
				End:             ts(tc.end),
			}
			require.Equal(t, tc.days*len(tc.types)*len(tc.vars), sensor.CountKeys(sensor.ResolveBuckets(f, now)))
		})
	}
}

func TestResolveBucketsCapsAtNow(t *testing.T) {
	f := sensor.FormulaSpec{
		Formula:         "ANZ01",
		Variables:       []string{"ANZ01"},
		MeasurementType: sensor.StringSet{"activeEnergy"},
		Start:           ts("2016-01-10T00:00:00Z"),
		End:             ts("2170-01-01T00:00:00Z"),
	}
	now := time.Date(2016, 1, 15, 12, 0, 0, 0, time.UTC)

	days := sensor.ResolveBuckets(f, now)["activeEnergy"]
	require.Len(t, days, 6)
	require.Equal(t, "2016-01-15", days[len(days)-1].Day)

	future := f
	future.Start = ts("2016-02-01T00:00:00Z")
	require.Empty(t, sensor.ResolveBuckets(future, now))
	require.Zero(t, sensor.CountKeys(sensor.ResolveBuckets(future, now)))
}

func TestResolveBucketsOpenEnded(t *testing.T) {
	f := sensor.FormulaSpec{
		Formula:         "a",
		Variables:       []string{"a"},
		MeasurementType: sensor.StringSet{"t"},
		Start:           ts("2016-01-01T00:00:00Z"),
	}
	now := time.Date(2016, 1, 2, 8, 0, 0, 0, time.UTC)
	require.Equal(t, 2, sensor.CountKeys(sensor.ResolveBuckets(f, now)))
}

func TestResolveBucketsSymbolic(t *testing.T) {
	f := sensor.FormulaSpec{
		Formula: "x+y",
		Bindings: []sensor.VariableBinding{
			{Symbol: "x", SensorID: "s1", MeasurementType: "temperature"},
			{Symbol: "y", SensorID: "s2"},
		},
		MeasurementType: sensor.StringSet{"custom"},
		Start:           ts("2016-01-01T00:00:00Z"),
		End:             ts("2016-01-01T00:00:00Z"),
	}
	days := sensor.ResolveBuckets(f, time.Date(2016, 2, 1, 0, 0, 0, 0, time.UTC))["custom"]
	require.Equal(t, []sensor.DayBucket{{
		Day:     "2016-01-01",
		IDs:     []string{"s1-2016-01-01-reading-temperature", "s2-2016-01-01-reading-custom"},
		Symbols: []string{"x", "y"},
	}}, days)
}
