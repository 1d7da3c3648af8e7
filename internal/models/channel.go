package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationChannel is a configured external delivery target. The URL is
// an opaque connection descriptor interpreted by the sender for ServiceType.
type NotificationChannel struct {
	gorm.Model
	Name         string     `json:"name" gorm:"uniqueIndex;not null"`
	ServiceType  string     `json:"service_type" gorm:"not null"` // slack, email, webhook, shoutrrr
	Enabled      bool       `json:"enabled" gorm:"default:true"`
	URL          string     `json:"url" gorm:"not null"`
	SuccessCount int        `json:"success_count" gorm:"default:0"`
	FailureCount int        `json:"failure_count" gorm:"default:0"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// NotificationLog is the append-only audit trail, one row per delivery
// attempt regardless of outcome.
type NotificationLog struct {
	gorm.Model
	ChannelID    uint      `json:"channel_id" gorm:"index"`
	AlertID      *uint     `json:"alert_id,omitempty" gorm:"index"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}
