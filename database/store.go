package database

import (
	"context"
	"errors"
	"fmt"

	"virtual_sensors/evaluator"
	"virtual_sensors/models"
	"virtual_sensors/sensor"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes virtual sensor definitions and daily aggregates.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// FindVirtualSensor returns the stored definition, or nil when the sensor was never persisted.
func (s *Store) FindVirtualSensor(ctx context.Context, id string) (*sensor.Definition, error) {
	var doc models.VirtualSensor
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find virtual sensor %s: %w", id, err)
	}
	def := doc.Definition()
	return &def, nil
}

// UpsertVirtualSensor replaces the stored definition with def.
func (s *Store) UpsertVirtualSensor(ctx context.Context, def sensor.Definition) error {
	doc := models.NewVirtualSensor(def)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert virtual sensor %s: %w", def.ID, err)
	}
	return nil
}

// ListVirtualSensors returns every stored definition ordered by id.
func (s *Store) ListVirtualSensors(ctx context.Context) ([]models.VirtualSensor, error) {
	var docs []models.VirtualSensor
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list virtual sensors: %w", err)
	}
	return docs, nil
}

// FindAggregates loads the raw series stored under ids. Missing ids are
// simply absent from the result.
func (s *Store) FindAggregates(ctx context.Context, ids []string) ([]evaluator.RawSeries, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []models.SensorAggregate
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to find aggregates: %w", err)
	}
	series := make([]evaluator.RawSeries, 0, len(docs))
	for _, doc := range docs {
		rs, err := doc.Series()
		if err != nil {
			return nil, err
		}
		series = append(series, rs)
	}
	return series, nil
}

// FindAggregate returns one aggregate document, or nil when absent.
func (s *Store) FindAggregate(ctx context.Context, id string) (*models.SensorAggregate, error) {
	var doc models.SensorAggregate
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find aggregate %s: %w", id, err)
	}
	return &doc, nil
}

// ListAggregates returns the aggregates of one sensor, optionally restricted to a day.
func (s *Store) ListAggregates(ctx context.Context, sensorID, day string) ([]models.SensorAggregate, error) {
	var docs []models.SensorAggregate
	query := s.db.WithContext(ctx).Where("sensor_id = ?", sensorID)
	if day != "" {
		query = query.Where("day = ?", day)
	}
	if err := query.Order("day ASC, measurement_type ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list aggregates of %s: %w", sensorID, err)
	}
	return docs, nil
}

// UpsertAggregate replaces a whole aggregate document.
func (s *Store) UpsertAggregate(ctx context.Context, doc *models.SensorAggregate) error {
	return s.UpsertAggregates(ctx, []*models.SensorAggregate{doc})
}

// UpsertAggregates replaces documents in batches.
func (s *Store) UpsertAggregates(ctx context.Context, docs []*models.SensorAggregate) error {
	if len(docs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(docs, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d aggregate(s): %w", len(docs), err)
	}
	return nil
}
