package pipeline

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"virtual_sensors/evaluator"
	"virtual_sensors/logger"
	"virtual_sensors/metrics"
)

// bucketResult is the outcome of one bucketJob.
type bucketResult struct {
	Key      string
	Status   string
	Readings int
	Duration time.Duration
	Err      error
}

// runBuckets processes jobs with a bounded pool and returns once every job finished.
// A failing bucket does not stop its siblings.
func (p *Pipeline) runBuckets(ctx context.Context, sensorID string, buckets []bucketJob) []bucketResult {
	if len(buckets) == 0 {
		return nil
	}

	jobs := make(chan bucketJob, len(buckets))
	results := make(chan bucketResult, len(buckets))

	workers := min(p.workers, len(buckets))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, sensorID, jobs, results, &wg)
	}

	for _, b := range buckets {
		jobs <- b
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	all := make([]bucketResult, 0, len(buckets))
	for r := range results {
		all = append(all, r)
	}
	return all
}

func (p *Pipeline) worker(ctx context.Context, sensorID string, jobs <-chan bucketJob, results chan<- bucketResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		result := p.processBucket(ctx, sensorID, job)

		metrics.BucketsTotal.WithLabelValues(result.Status).Inc()
		metrics.BucketDuration.Observe(result.Duration.Seconds())
		if p.progress != nil {
			if err := p.progress.SetBucketStatus(ctx, sensorID, job.Key, result.Status); err != nil {
				logger.Warnf("failed to record progress of %s: %v", job.Key, err)
			}
		}
		results <- result
	}
}

// processBucket fetches the raw series of one day, evaluates every formula
// covering it within its own window and emits the merged readings.
func (p *Pipeline) processBucket(ctx context.Context, sensorID string, job bucketJob) bucketResult {
	start := time.Now()
	result := bucketResult{Key: job.Key}

	var ids []string
	for _, part := range job.Parts {
		for _, id := range part.Bucket.IDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	series, err := p.series.FindAggregates(ctx, ids)
	if err != nil {
		result.Status = StatusFailed
		result.Err = &CollaboratorError{Op: "find aggregates", Err: err}
		result.Duration = time.Since(start)
		return result
	}
	if len(series) == 0 {
		logger.Debugf("no raw series for %s", job.Key)
		result.Status = StatusSkipped
		result.Duration = time.Since(start)
		return result
	}

	byID := make(map[string]evaluator.RawSeries, len(series))
	for _, s := range series {
		byID[s.ID] = s
	}

	merged := make(map[int64]float64)
	for _, part := range job.Parts {
		// one stored series may feed several symbols
		bound := make([]evaluator.RawSeries, 0, len(part.Bucket.IDs))
		for i, id := range part.Bucket.IDs {
			s, ok := byID[id]
			if !ok {
				continue
			}
			s.Symbol = part.Bucket.Symbols[i]
			bound = append(bound, s)
		}

		evaluated := part.Evaluator.Evaluate(bound, part.Delta)
		metrics.EvaluationSkipped.Add(float64(len(evaluated.Skipped)))
		for i, t := range evaluated.Times {
			if t < part.From || t > part.To {
				continue
			}
			merged[t] = evaluated.Values[i]
		}
	}

	times := slices.Sorted(maps.Keys(merged))
	values := make([]float64, len(times))
	for i, t := range times {
		values[i] = merged[t]
	}

	if err := p.emitter.Emit(ctx, sensorID, job.Day, job.MeasurementType, job.Unit, values, times); err != nil {
		logger.Errorf("failed to emit %s: %v", job.Key, err)
		result.Status = StatusFailed
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	result.Status = StatusDone
	result.Readings = len(times)
	result.Duration = time.Since(start)
	return result
}
