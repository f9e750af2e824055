package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"virtual_sensors/evaluator"
	"virtual_sensors/models"
	"virtual_sensors/sensor"
)

var errUnavailable = errors.New("store unavailable")

type fakeSensors struct {
	mu        sync.Mutex
	docs      map[string]sensor.Definition
	upserts   int
	findErr   error
	upsertErr error
}

func newFakeSensors() *fakeSensors {
	return &fakeSensors{docs: make(map[string]sensor.Definition)}
}

func (f *fakeSensors) FindVirtualSensor(_ context.Context, id string) (*sensor.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	def, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (f *fakeSensors) UpsertVirtualSensor(_ context.Context, def sensor.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.docs[def.ID] = def
	return nil
}

type fakeSeries struct {
	mu     sync.Mutex
	docs   map[string]evaluator.RawSeries
	failOn map[string]bool
}

func newFakeSeries() *fakeSeries {
	return &fakeSeries{docs: make(map[string]evaluator.RawSeries), failOn: make(map[string]bool)}
}

func (f *fakeSeries) add(id string, s evaluator.RawSeries) {
	s.ID = id
	f.docs[id] = s
}

func (f *fakeSeries) FindAggregates(_ context.Context, ids []string) ([]evaluator.RawSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []evaluator.RawSeries
	for _, id := range ids {
		if f.failOn[id] {
			return nil, errUnavailable
		}
		if s, ok := f.docs[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAggregates struct {
	mu   sync.Mutex
	docs map[string]*models.SensorAggregate
}

func newFakeAggregates() *fakeAggregates {
	return &fakeAggregates{docs: make(map[string]*models.SensorAggregate)}
}

func (f *fakeAggregates) UpsertAggregate(_ context.Context, doc *models.SensorAggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeAggregates) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type fakePublisher struct {
	mu       sync.Mutex
	bodies   []json.RawMessage
	failures int
	calls    int
}

func (f *fakePublisher) Publish(_ context.Context, body json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("channel closed")
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakePublisher) published() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.bodies)
}

type fakeProgress struct {
	mu       sync.Mutex
	total    map[string]int
	statuses map[string]string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{total: make(map[string]int), statuses: make(map[string]string)}
}

func (f *fakeProgress) Reset(_ context.Context, sensorID string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total[sensorID] = total
	return nil
}

func (f *fakeProgress) SetBucketStatus(_ context.Context, _ string, key, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[key] = status
	return nil
}
