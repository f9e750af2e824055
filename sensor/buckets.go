package sensor

import (
	"time"
)

// DayBucket groups the raw series keys read for one UTC day. IDs and
// Symbols are parallel: Symbols[i] is the formula identifier fed by IDs[i].
type DayBucket struct {
	Day     string
	IDs     []string
	Symbols []string
}

// ResolveBuckets expands a formula into the raw series buckets covering its
// active window, grouped by output measurement type then by day. Days are
// UTC calendar days from start through min(end, now), both inclusive.
// A formula starting after now resolves to no buckets.
func ResolveBuckets(f FormulaSpec, now time.Time) map[string][]DayBucket {
	result := make(map[string][]DayBucket)

	start := truncateDay(f.Start.UTC())
	end := truncateDay(f.EffectiveEnd(now))
	if f.Start.IsZero() || f.Start.After(now) || start.After(end) {
		return result
	}

	for _, measurementType := range UniqueNonEmpty(f.MeasurementType) {
		refs := f.SeriesRefs(measurementType)
		if len(refs) == 0 {
			continue
		}
		var days []DayBucket
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			dayStr := day.Format(DayLayout)
			bucket := DayBucket{
				Day:     dayStr,
				IDs:     make([]string, 0, len(refs)),
				Symbols: make([]string, 0, len(refs)),
			}
			for _, ref := range refs {
				bucket.IDs = append(bucket.IDs, BucketKey(ref.SensorID, dayStr, ref.MeasurementType))
				bucket.Symbols = append(bucket.Symbols, ref.Symbol)
			}
			days = append(days, bucket)
		}
		result[measurementType] = days
	}
	return result
}

// CountKeys returns the total number of bucket keys in a resolution.
func CountKeys(buckets map[string][]DayBucket) int {
	n := 0
	for _, days := range buckets {
		for _, d := range days {
			n += len(d.IDs)
		}
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
