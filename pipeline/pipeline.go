// Package pipeline reacts to virtual sensor changes: it diffs the incoming
// formulas against the stored definition, recomputes the day buckets of the
// formulas that changed and persists the new definition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"virtual_sensors/evaluator"
	"virtual_sensors/logger"
	"virtual_sensors/metrics"
	"virtual_sensors/progress"
	"virtual_sensors/sensor"
)

// SensorStore persists the normalized definition of virtual sensors.
type SensorStore interface {
	FindVirtualSensor(ctx context.Context, id string) (*sensor.Definition, error)
	UpsertVirtualSensor(ctx context.Context, def sensor.Definition) error
}

// SeriesStore loads raw sensor day series by bucket key.
type SeriesStore interface {
	FindAggregates(ctx context.Context, ids []string) ([]evaluator.RawSeries, error)
}

// Bucket statuses reported to the ProgressTracker.
const (
	StatusDone    = progress.StatusDone
	StatusFailed  = progress.StatusFailed
	StatusSkipped = progress.StatusSkipped
)

// ProgressTracker records the outcome of every recomputed bucket.
type ProgressTracker interface {
	Reset(ctx context.Context, sensorID string, total int) error
	SetBucketStatus(ctx context.Context, sensorID, bucketKey, status string) error
}

// CollaboratorError reports a failed call to a store or to the broker.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Options tunes a Pipeline.
type Options struct {
	Workers  int
	Progress ProgressTracker
	Now      func() time.Time
}

// Pipeline processes change events one at a time; buckets of one event are
// recomputed concurrently.
type Pipeline struct {
	sensors  SensorStore
	series   SeriesStore
	emitter  *Emitter
	progress ProgressTracker
	workers  int
	now      func() time.Time
}

// New wires a pipeline around explicit collaborators.
func New(sensors SensorStore, series SeriesStore, emitter *Emitter, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		sensors:  sensors,
		series:   series,
		emitter:  emitter,
		progress: opts.Progress,
		workers:  opts.Workers,
		now:      opts.Now,
	}
}

// Outcome summarizes one processed event.
type Outcome struct {
	State    State
	SensorID string
	Changed  int
	Buckets  int
	Done     int
	Skipped  int
	Failed   int
}

// HandleMessage decodes body and processes it. An undecodable body is rejected, not failed.
func (p *Pipeline) HandleMessage(ctx context.Context, body []byte) (Outcome, error) {
	ev, err := ParseChangeEvent(body)
	if err != nil {
		logger.Warnf("rejecting message: %v", err)
		metrics.EventsTotal.WithLabelValues(StateRejected.String()).Inc()
		return Outcome{State: StateRejected}, nil
	}
	return p.Handle(ctx, ev)
}

// Handle runs one change event to a terminal state. A non-nil error is only
// returned with StateFailed; the event should then be redelivered.
func (p *Pipeline) Handle(ctx context.Context, ev ChangeEvent) (out Outcome, err error) {
	out.State = StateReceived
	defer func() {
		metrics.EventsTotal.WithLabelValues(out.State.String()).Inc()
	}()

	if !ev.IsSensorChange() {
		logger.Debugf("ignoring event %s of type %q", ev.ID, ev.Type)
		out.State = StateIgnored
		return out, nil
	}

	def, err := ev.Definition()
	if err != nil {
		logger.Warnf("rejecting event %s: %v", ev.ID, err)
		out.State = StateRejected
		return out, nil
	}
	out.SensorID = def.ID
	out.State = StateValidated
	log := logger.With("event", ev.ID, "sensor", def.ID)

	decorated, err := sensor.Decorate(def)
	if err != nil {
		log.Warn("rejecting sensor", "error", err)
		out.State = StateRejected
		return out, nil
	}
	out.State = StateDecorated

	stored, err := p.sensors.FindVirtualSensor(ctx, def.ID)
	if err != nil {
		out.State = StateFailed
		return out, &CollaboratorError{Op: "find virtual sensor " + def.ID, Err: err}
	}
	changed := sensor.Delta(decorated, stored)
	out.Changed = len(changed)
	out.State = StateDiffed
	log.Info("formulas diffed", "formulas", len(decorated.Formulas), "changed", len(changed))

	jobs := p.plan(decorated, changed, log)
	out.Buckets = len(jobs)
	out.State = StateRecomputing

	if len(jobs) > 0 && p.progress != nil {
		if err := p.progress.Reset(ctx, def.ID, len(jobs)); err != nil {
			log.Warn("failed to reset progress", "error", err)
		}
	}

	var failures []error
	for _, r := range p.runBuckets(ctx, decorated.ID, jobs) {
		switch r.Status {
		case StatusDone:
			out.Done++
		case StatusSkipped:
			out.Skipped++
		case StatusFailed:
			out.Failed++
			failures = append(failures, fmt.Errorf("bucket %s: %w", r.Key, r.Err))
		}
	}
	if len(failures) > 0 {
		log.Error("recompute failed", "failed", out.Failed, "buckets", out.Buckets)
		out.State = StateFailed
		return out, errors.Join(failures...)
	}

	if err := p.sensors.UpsertVirtualSensor(ctx, decorated); err != nil {
		out.State = StateFailed
		return out, &CollaboratorError{Op: "upsert virtual sensor " + def.ID, Err: err}
	}
	out.State = StatePersisted

	log.Info("sensor recomputed", "buckets", out.Buckets, "done", out.Done, "skipped", out.Skipped)
	out.State = StateDone
	return out, nil
}

// formulaPart is one formula's contribution to a bucket. Points outside
// [From, To] (epoch milliseconds) belong to another formula.
type formulaPart struct {
	Bucket    sensor.DayBucket
	Evaluator *evaluator.Evaluator
	Delta     int64
	From      int64
	To        int64
}

// bucketJob is one output aggregate: sensor × measurement type × day. Parts
// are in formula order; on overlapping windows the later formula wins.
type bucketJob struct {
	Key             string
	Day             string
	MeasurementType string
	Unit            string
	Parts           []formulaPart
}

// plan compiles the formulas and groups their buckets by output key. Only
// keys reached by a changed formula are recomputed, but every formula
// covering such a key contributes, since the aggregate is replaced whole.
// A formula that does not parse contributes nothing.
func (p *Pipeline) plan(def sensor.Definition, changed []sensor.FormulaSpec, log *slog.Logger) []bucketJob {
	now := p.now()

	compiled := make(map[string]*evaluator.Evaluator)
	failed := make(map[string]error)
	compile := func(source string) (*evaluator.Evaluator, error) {
		if eval, ok := compiled[source]; ok {
			return eval, nil
		}
		if err, ok := failed[source]; ok {
			return nil, err
		}
		eval, err := evaluator.New(source)
		if err != nil {
			failed[source] = err
			return nil, err
		}
		compiled[source] = eval
		return eval, nil
	}

	touched := make(map[string]bool)
	for _, f := range changed {
		if _, err := compile(f.Formula); err != nil {
			log.Error("skipping formula", "formula", f.Formula, "error", err)
			continue
		}
		for measurementType, days := range sensor.ResolveBuckets(f, now) {
			for _, day := range days {
				touched[sensor.BucketKey(def.ID, day.Day, measurementType)] = true
			}
		}
	}
	if len(touched) == 0 {
		return nil
	}

	byKey := make(map[string]*bucketJob, len(touched))
	var order []string
	for _, f := range def.Formulas {
		eval, err := compile(f.Formula)
		if err != nil {
			continue
		}
		part := formulaPart{
			Evaluator: eval,
			Delta:     f.Delta(),
			From:      f.Start.UnixMilli(),
			To:        f.EffectiveEnd(now).UnixMilli(),
		}
		for measurementType, days := range sensor.ResolveBuckets(f, now) {
			for _, day := range days {
				key := sensor.BucketKey(def.ID, day.Day, measurementType)
				if !touched[key] {
					continue
				}
				job, ok := byKey[key]
				if !ok {
					job = &bucketJob{Key: key, Day: day.Day, MeasurementType: measurementType}
					byKey[key] = job
					order = append(order, key)
				}
				job.Unit = def.UnitFor(f)
				part.Bucket = day
				job.Parts = append(job.Parts, part)
			}
		}
	}

	jobs := make([]bucketJob, 0, len(order))
	for _, key := range order {
		jobs = append(jobs, *byKey[key])
	}
	return jobs
}
