package models

import (
	"time"
)

// MetricSample is one timestamped observation produced by a collection agent.
// Rows are append-only; retention is handled externally.
type MetricSample struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	SourceID   string            `json:"source_id" gorm:"index:idx_sample_source_metric;not null"`
	MetricName string            `json:"metric_name" gorm:"index:idx_sample_source_metric;not null"`
	Timestamp  time.Time         `json:"timestamp" gorm:"index;not null"`
	Value      float64           `json:"value"`
	Tags       map[string]string `json:"tags,omitempty" gorm:"serializer:json"`
}
