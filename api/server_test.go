package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"virtual_sensors/api"
	"virtual_sensors/models"
	"virtual_sensors/progress"
	"virtual_sensors/sensor"
)

type stubStore struct {
	sensors    map[string]sensor.Definition
	aggregates map[string]models.SensorAggregate
}

func (s stubStore) FindVirtualSensor(_ context.Context, id string) (*sensor.Definition, error) {
	def, ok := s.sensors[id]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (s stubStore) FindAggregate(_ context.Context, id string) (*models.SensorAggregate, error) {
	doc, ok := s.aggregates[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s stubStore) ListAggregates(_ context.Context, sensorID, day string) ([]models.SensorAggregate, error) {
	var out []models.SensorAggregate
	for _, doc := range s.aggregates {
		if doc.SensorID == sensorID && (day == "" || doc.Day == day) {
			out = append(out, doc)
		}
	}
	return out, nil
}

type stubProgress map[string]progress.Progress

func (s stubProgress) GetProgress(_ context.Context, id string) (*progress.Progress, error) {
	p, ok := s[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	agg := models.NewSensorAggregate("VIRTUAL01", "2016-01-01", "temperature", "°C", []float64{4, 5}, []int64{0, 300000})
	store := stubStore{
		sensors: map[string]sensor.Definition{
			"VIRTUAL01": {ID: "VIRTUAL01", Virtual: true, MeasurementTypes: []string{"temperature"}, Variables: []string{"ANZ01"}},
		},
		aggregates: map[string]models.SensorAggregate{agg.ID: *agg},
	}
	return api.NewRouter(&api.Handler{
		Sensors:    store,
		Aggregates: store,
		Progress: stubProgress{"VIRTUAL01": {
			SensorID: "VIRTUAL01", Total: 2, Done: 1, Failed: 1,
			Buckets: map[string]string{"a": progress.StatusDone, "b": progress.StatusFailed},
		}},
	})
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestSensorRoutes(t *testing.T) {
	r := newRouter()

	w, body := get(t, r, "/api/v1/sensors/VIRTUAL01")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "VIRTUAL01", body["_id"])
	require.Equal(t, []any{"temperature"}, body["measurementType"])

	w, _ = get(t, r, "/api/v1/sensors/MISSING")
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = get(t, r, "/api/v1/sensors/VIRTUAL01/progress")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), body["total"])
	require.Equal(t, float64(1), body["completed"])
	require.Equal(t, true, body["finished"])
}

func TestAggregateRoutes(t *testing.T) {
	r := newRouter()

	w, body := get(t, r, "/api/v1/aggregates/VIRTUAL01-2016-01-01-reading-temperature")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "4,5", body["measurementValues"])
	require.Equal(t, "0,300000", body["measurementTimes"])

	w, _ = get(t, r, "/api/v1/aggregates/nope")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sensors/VIRTUAL01/aggregates?day=2016-01-01", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var docs []models.SensorAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := api.NewRouter(&api.Handler{Health: func(context.Context) error { return errors.New("db down") }})

	w, body := get(t, r, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "db down", body["error"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, r, "/api/v1/sensors/VIRTUAL01/progress")
	require.Equal(t, http.StatusNotImplemented, w.Code)
}
