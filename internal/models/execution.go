package models

import (
	"time"

	"gorm.io/gorm"
)

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// AgentExecution records one scheduled run of a collection agent.
type AgentExecution struct {
	gorm.Model
	AgentID      string          `json:"agent_id" gorm:"index;not null"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Status       ExecutionStatus `json:"status"`
	MetricsCount int             `json:"metrics_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
