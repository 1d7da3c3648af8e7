package models

import (
	"time"

	"gorm.io/gorm"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Alert is one lifecycle row: active -> acknowledged -> resolved, with
// acknowledged optional. Resolved rows are terminal; a re-trigger creates
// a brand-new row.
type Alert struct {
	gorm.Model
	RuleID         uint        `json:"rule_id" gorm:"index:idx_alert_pair"`
	RuleName       string      `json:"rule_name"`
	ResourceType   string      `json:"resource_type"`
	ResourceID     string      `json:"resource_id" gorm:"index:idx_alert_pair"`
	ResourceName   string      `json:"resource_name"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	MetricName     string      `json:"metric_name"`
	MetricValue    float64     `json:"metric_value"`
	Threshold      float64     `json:"threshold"`
	Status         AlertStatus `json:"status" gorm:"index"`
	TriggeredAt    time.Time   `json:"triggered_at" gorm:"index"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy     string      `json:"resolved_by,omitempty"`
	SnoozedUntil   *time.Time  `json:"snoozed_until,omitempty"`
}
