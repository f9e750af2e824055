package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"virtual_sensors/models"
	"virtual_sensors/progress"
	"virtual_sensors/sensor"
)

type SensorReader interface {
	FindVirtualSensor(ctx context.Context, id string) (*sensor.Definition, error)
}

type AggregateReader interface {
	FindAggregate(ctx context.Context, id string) (*models.SensorAggregate, error)
	ListAggregates(ctx context.Context, sensorID, day string) ([]models.SensorAggregate, error)
}

type ProgressReader interface {
	GetProgress(ctx context.Context, sensorID string) (*progress.Progress, error)
}

// Handler serves the stored state of virtual sensors. Progress may be nil.
type Handler struct {
	Sensors    SensorReader
	Aggregates AggregateReader
	Progress   ProgressReader
	Health     func(ctx context.Context) error
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetSensor(c *gin.Context) {
	id := c.Param("sensor_id")
	def, err := h.Sensors.FindVirtualSensor(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}
	c.JSON(http.StatusOK, models.NewVirtualSensor(*def))
}

func (h *Handler) GetProgress(c *gin.Context) {
	if h.Progress == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "progress tracking disabled"})
		return
	}
	id := c.Param("sensor_id")
	p, err := h.Progress.GetProgress(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recompute recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sensor_id": id,
		"total":     p.Total,
		"completed": p.Done + p.Skipped,
		"failed":    p.Failed,
		"finished":  p.Finished(),
		"buckets":   p.Buckets,
	})
}

func (h *Handler) ListSensorAggregates(c *gin.Context) {
	docs, err := h.Aggregates.ListAggregates(c.Request.Context(), c.Param("sensor_id"), c.Query("day"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) GetAggregate(c *gin.Context) {
	doc, err := h.Aggregates.FindAggregate(c.Request.Context(), c.Param("aggregate_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "aggregate not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}
