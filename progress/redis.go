// Package progress records, per virtual sensor, the status of every bucket
// of the latest recompute in a Redis hash.
package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const totalField = "_total"

// Bucket statuses.
const (
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Tracker stores bucket statuses under prefix+sensorID.
type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTracker(client *redis.Client, prefix string, ttl time.Duration) *Tracker {
	return &Tracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *Tracker) key(sensorID string) string {
	return t.prefix + sensorID
}

// Reset starts a new recompute of total buckets, dropping previous statuses.
func (t *Tracker) Reset(ctx context.Context, sensorID string, total int) error {
	key := t.key(sensorID)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, totalField, total)
		if t.ttl > 0 {
			pipe.Expire(ctx, key, t.ttl)
		}
		return nil
	})
	return err
}

// SetBucketStatus records the status of one bucket.
func (t *Tracker) SetBucketStatus(ctx context.Context, sensorID, bucketKey, status string) error {
	return t.client.HSet(ctx, t.key(sensorID), bucketKey, status).Err()
}

// Progress summarizes the latest recompute of a sensor.
type Progress struct {
	SensorID string            `json:"sensorId"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Buckets  map[string]string `json:"buckets"`
}

// Finished reports whether every bucket has a status.
func (p Progress) Finished() bool {
	return p.Done+p.Failed+p.Skipped >= p.Total
}

// GetProgress returns the summary, or nil when the sensor has no recorded recompute.
func (t *Tracker) GetProgress(ctx context.Context, sensorID string) (*Progress, error) {
	fields, err := t.client.HGetAll(ctx, t.key(sensorID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	p, err := summarize(sensorID, fields)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func summarize(sensorID string, fields map[string]string) (Progress, error) {
	p := Progress{SensorID: sensorID, Buckets: make(map[string]string, len(fields))}
	for field, value := range fields {
		if field == totalField {
			total, err := strconv.Atoi(value)
			if err != nil {
				return Progress{}, fmt.Errorf("invalid total for %s: %w", sensorID, err)
			}
			p.Total = total
			continue
		}
		p.Buckets[field] = value
		switch value {
		case StatusDone:
			p.Done++
		case StatusFailed:
			p.Failed++
		case StatusSkipped:
			p.Skipped++
		}
	}
	return p, nil
}
