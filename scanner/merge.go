package scanner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"virtual_sensors/logger"
	"virtual_sensors/metrics"
	"virtual_sensors/models"
	"virtual_sensors/sensor"
)

const batchSize = 500

type bucket struct {
	sensorID        string
	day             string
	measurementType string
	unit            string
	points          map[int64]float64
}

// group splits rows into UTC day buckets. Later rows win on equal timestamps.
func group(rows []Row) map[string]*bucket {
	buckets := make(map[string]*bucket)
	for _, r := range rows {
		day := time.UnixMilli(r.Time).UTC().Format(sensor.DayLayout)
		key := sensor.BucketKey(r.SensorID, day, r.MeasurementType)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				sensorID:        r.SensorID,
				day:             day,
				measurementType: r.MeasurementType,
				points:          make(map[int64]float64),
			}
			buckets[key] = b
		}
		if r.Unit != "" {
			b.unit = r.Unit
		}
		b.points[r.Time] = r.Value
	}
	return buckets
}

// merge folds rows into the stored day buckets and writes them back.
func (cs *CSVScanner) merge(ctx context.Context, rows []Row) (int, error) {
	buckets := group(rows)

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	docs := make([]*models.SensorAggregate, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		existing, err := cs.store.FindAggregate(ctx, key)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			series, err := existing.Series()
			if err != nil {
				return 0, fmt.Errorf("failed to decode stored bucket %s: %w", key, err)
			}
			for i, t := range series.Times {
				if _, ok := b.points[t]; !ok {
					b.points[t] = series.Values[i]
				}
			}
			if b.unit == "" {
				b.unit = existing.UnitOfMeasurement
			}
		}
		docs = append(docs, b.aggregate())
	}

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		if err := cs.store.UpsertAggregates(ctx, docs[i:end]); err != nil {
			return i, err
		}
		logger.LogProgress(end, len(docs), "day buckets written")
	}
	metrics.ImportedRows.Add(float64(len(rows)))
	return len(docs), nil
}

func (b *bucket) aggregate() *models.SensorAggregate {
	times := make([]int64, 0, len(b.points))
	for t := range b.points {
		times = append(times, t)
	}
	slices.Sort(times)
	values := make([]float64, len(times))
	for i, t := range times {
		values[i] = b.points[t]
	}
	return models.NewSensorAggregate(b.sensorID, b.day, b.measurementType, b.unit, values, times)
}
