package models

import (
	"time"

	"gorm.io/gorm"
)

type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorLT  Operator = "lt"
	OperatorGTE Operator = "gte"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
	OperatorNE  Operator = "ne"
)

// Symbol returns the comparison symbol used in alert messages.
func (o Operator) Symbol() string {
	switch o {
	case OperatorGT:
		return ">"
	case OperatorLT:
		return "<"
	case OperatorGTE:
		return ">="
	case OperatorLTE:
		return "<="
	case OperatorEQ:
		return "=="
	case OperatorNE:
		return "!="
	default:
		return string(o)
	}
}

type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// Condition is one scalar comparison inside a condition group.
type Condition struct {
	MetricName string   `json:"metric_name"`
	Condition  Operator `json:"condition"`
	Threshold  float64  `json:"threshold"`
}

// ConditionGroup combines its conditions with Operator (AND when empty).
// Groups on a rule are always combined with AND; only the intra-group
// operator is configurable. Known limitation, kept for compatibility.
type ConditionGroup struct {
	Operator   GroupOperator `json:"operator"`
	Conditions []Condition   `json:"conditions"`
}

// ResourceScopeAll matches every resource that has recent samples.
const ResourceScopeAll = "all"

type AlertRule struct {
	gorm.Model
	Name                   string           `json:"name" gorm:"uniqueIndex;not null"`
	Description            string           `json:"description"`
	ResourceID             string           `json:"resource_id"` // specific resource, or "all" / empty
	MetricName             string           `json:"metric_name"`
	Condition              Operator         `json:"condition"`
	Threshold              float64          `json:"threshold"`
	Severity               Severity         `json:"severity" gorm:"not null"`
	Enabled                bool             `json:"enabled" gorm:"default:true"`
	CooldownMinutes        int              `json:"cooldown_minutes"`
	Groups                 []ConditionGroup `json:"groups,omitempty" gorm:"serializer:json"`
	NotificationChannelIDs []uint           `json:"notification_channel_ids,omitempty" gorm:"serializer:json"`
	MutedUntil             *time.Time       `json:"muted_until,omitempty"`
	LastTriggered          *time.Time       `json:"last_triggered,omitempty"`
	TriggerCount           int              `json:"trigger_count" gorm:"default:0"`
}

// Cooldown returns the minimum gap between alert creations for one
// rule+resource pair.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AppliesTo reports whether the rule is scoped to the given resource id.
func (r *AlertRule) AppliesTo(resourceID string) bool {
	if r.ResourceID == "" || r.ResourceID == ResourceScopeAll {
		return true
	}
	return r.ResourceID == resourceID
}
