package notify

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/metrics"
	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/pkg/logger"
)

// ChannelResult is the delivery outcome for one channel.
type ChannelResult struct {
	ChannelID   uint   `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Outcome aggregates a fan-out. Success is true only when every resolved
// channel succeeded; zero resolved channels is a normal non-success.
type Outcome struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Results []ChannelResult `json:"results"`
}

// Dispatcher fans one event out to notification channels, updates
// per-channel counters and appends one NotificationLog row per attempt.
type Dispatcher struct {
	db      *gorm.DB
	senders Registry
	clk     clock.Clock
	log     logger.Logger
}

func NewDispatcher(db *gorm.DB, senders Registry, clk clock.Clock, log logger.Logger) *Dispatcher {
	return &Dispatcher{db: db, senders: senders, clk: clk, log: log}
}

// Send resolves target channels (explicit ids when given, else all enabled)
// and attempts delivery through each independently. One channel's failure
// never prevents the rest; every attempt is logged.
func (d *Dispatcher) Send(ctx context.Context, title, body string, channelIDs []uint, triggerType string, triggerID *uint) Outcome {
	channels, err := d.resolveChannels(channelIDs)
	if err != nil {
		d.log.Error("failed to resolve notification channels", "error", err)
		return Outcome{Success: false, Message: fmt.Sprintf("failed to resolve channels: %v", err)}
	}
	if len(channels) == 0 {
		return Outcome{Success: false, Message: "no notification channels configured"}
	}

	out := Outcome{Success: true}
	for i := range channels {
		ch := &channels[i]
		result := d.deliver(ctx, ch, title, body, triggerID)
		if !result.Success {
			out.Success = false
		}
		out.Results = append(out.Results, result)
	}

	d.log.Info("notification dispatched",
		"title", title, "trigger_type", triggerType,
		"channels", len(channels), "success", out.Success)
	return out
}

// TestChannel sends a fixed synthetic message through exactly one channel,
// enabled or not. Used for configuration-time validation.
func (d *Dispatcher) TestChannel(ctx context.Context, channelID uint) (ChannelResult, error) {
	var ch models.NotificationChannel
	if err := d.db.First(&ch, channelID).Error; err != nil {
		return ChannelResult{}, fmt.Errorf("failed to find channel %d: %v", channelID, err)
	}
	return d.deliver(ctx, &ch,
		"LabWatch test notification",
		fmt.Sprintf("Test message for channel %q (%s). If you can read this, delivery works.", ch.Name, ch.ServiceType),
		nil), nil
}

func (d *Dispatcher) resolveChannels(channelIDs []uint) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	query := d.db.Where("enabled = ?", true)
	if len(channelIDs) > 0 {
		query = d.db.Where("id IN ?", channelIDs).Where("enabled = ?", true)
	}
	if err := query.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch *models.NotificationChannel, title, body string, alertID *uint) ChannelResult {
	now := d.clk.Now()
	result := ChannelResult{ChannelID: ch.ID, ChannelName: ch.Name, Success: true}

	err := d.senders.send(ctx, ch, title, body)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		ch.FailureCount++
		metrics.NotificationsTotal.WithLabelValues(ch.ServiceType, "failure").Inc()
		d.log.Warn("notification delivery failed",
			"channel", ch.Name, "service_type", ch.ServiceType, "error", err)
	} else {
		ch.SuccessCount++
		ch.LastUsedAt = &now
		metrics.NotificationsTotal.WithLabelValues(ch.ServiceType, "success").Inc()
	}

	if err := d.db.Save(ch).Error; err != nil {
		d.log.Error("failed to update channel counters", "channel", ch.Name, "error", err)
	}

	logRow := models.NotificationLog{
		ChannelID:    ch.ID,
		AlertID:      alertID,
		Title:        title,
		Body:         body,
		Success:      result.Success,
		ErrorMessage: result.Error,
		SentAt:       now,
	}
	if err := d.db.Create(&logRow).Error; err != nil {
		d.log.Error("failed to write notification log", "channel", ch.Name, "error", err)
	}

	return result
}
