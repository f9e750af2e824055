package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"virtual_sensors/config"
	"virtual_sensors/logger"
	"virtual_sensors/metrics"
	"virtual_sensors/models"
)

// Publisher sends one event to the outbound readings stream and returns once
// the broker confirmed it.
type Publisher interface {
	Publish(ctx context.Context, body json.RawMessage) error
}

// AggregateWriter replaces one aggregate document.
type AggregateWriter interface {
	UpsertAggregate(ctx context.Context, doc *models.SensorAggregate) error
}

// EmitOptions tunes the Emitter.
type EmitOptions struct {
	Mode      string
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Emitter turns evaluated readings into outbound events and/or an aggregate
// document for the bucket's day.
type Emitter struct {
	publisher  Publisher
	aggregates AggregateWriter
	opts       EmitOptions
	now        func() time.Time
}

// NewEmitter builds an emitter. A nil publisher or writer disables that output.
func NewEmitter(p Publisher, w AggregateWriter, opts EmitOptions) *Emitter {
	if opts.Mode == "" {
		opts.Mode = config.EmitBoth
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Emitter{publisher: p, aggregates: w, opts: opts, now: time.Now}
}

func (e *Emitter) readings() bool {
	return e.publisher != nil && (e.opts.Mode == config.EmitReadings || e.opts.Mode == config.EmitBoth)
}

func (e *Emitter) aggregate() bool {
	return e.aggregates != nil && (e.opts.Mode == config.EmitAggregates || e.opts.Mode == config.EmitBoth)
}

// Emit publishes one reading per (value, time) pair in order, then replaces
// the aggregate of sensorID for day.
func (e *Emitter) Emit(ctx context.Context, sensorID, day, measurementType, unit string, values []float64, times []int64) error {
	if e.readings() {
		for i, t := range times {
			ev := NewReadingEvent(sensorID, measurementType, unit, values[i], t, e.now())
			body, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to encode reading of %s: %w", sensorID, err)
			}
			if err := e.publishWithRetry(ctx, body); err != nil {
				return &CollaboratorError{Op: "publish reading", Err: err}
			}
			metrics.ReadingsEmitted.Inc()
		}
	}

	if e.aggregate() {
		doc := models.NewSensorAggregate(sensorID, day, measurementType, unit, values, times)
		if err := e.aggregates.UpsertAggregate(ctx, doc); err != nil {
			return &CollaboratorError{Op: "upsert aggregate " + doc.ID, Err: err}
		}
		metrics.AggregatesWritten.Inc()
	}
	return nil
}

func (e *Emitter) publishWithRetry(ctx context.Context, msg json.RawMessage) error {
	var lastErr error
	for attempt := 1; attempt <= e.opts.Attempts; attempt++ {
		err := e.publisher.Publish(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == e.opts.Attempts {
			break
		}
		metrics.PublishRetries.Inc()

		backoff := e.opts.BaseDelay << (attempt - 1)
		if backoff > e.opts.MaxDelay {
			backoff = e.opts.MaxDelay
		}
		logger.Warnf("publish attempt %d/%d failed, retrying in %v: %v", attempt, e.opts.Attempts, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", e.opts.Attempts, lastErr)
}
