package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/broadcast"
	"github.com/labwatch/labwatch/internal/metrics"
	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/internal/notify"
	"github.com/labwatch/labwatch/pkg/logger"
)

// Resource identifies the monitored thing an alert is about.
type Resource struct {
	Type string
	ID   string
	Name string
}

// Notifier is the dispatch surface the manager fans lifecycle events
// through. Satisfied by *notify.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, title, body string, channelIDs []uint, triggerType string, triggerID *uint) notify.Outcome
}

// Publisher is the best-effort live event side channel. Satisfied by
// *broadcast.Hub.
type Publisher interface {
	Publish(evt broadcast.Event) bool
}

// Manager owns the alert lifecycle state machine:
// active -> acknowledged -> resolved, acknowledged optional, resolved
// terminal. It is the only writer of alert status transitions.
type Manager struct {
	db         *gorm.DB
	clk        clock.Clock
	log        logger.Logger
	notifier   Notifier
	publisher  Publisher
	correlator *Correlator
}

func NewManager(db *gorm.DB, clk clock.Clock, log logger.Logger, notifier Notifier, publisher Publisher, correlator *Correlator) *Manager {
	return &Manager{
		db:         db,
		clk:        clk,
		log:        log,
		notifier:   notifier,
		publisher:  publisher,
		correlator: correlator,
	}
}

// Trigger creates a new active alert for (rule, resource) unless an active
// alert already exists, the pair is snoozed, or the cooldown window since
// the most recent alert (any status) has not elapsed. All three checks run
// inside one transaction so near-simultaneous evaluations cannot both
// insert. Returns nil without error on a no-op.
func (m *Manager) Trigger(ctx context.Context, r *models.AlertRule, res Resource, value float64) (*models.Alert, error) {
	now := m.clk.Now()

	var created *models.Alert
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var last models.Alert
		err := tx.Where("rule_id = ? AND resource_id = ?", r.ID, res.ID).
			Order("triggered_at DESC").
			First(&last).Error
		switch {
		case err == nil:
			if last.Status == models.AlertStatusActive {
				return nil
			}
			if last.SnoozedUntil != nil && now.Before(*last.SnoozedUntil) {
				return nil
			}
			if r.CooldownMinutes > 0 && now.Sub(last.TriggeredAt) < r.Cooldown() {
				return nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First alert for this pair.
		default:
			return err
		}

		a := &models.Alert{
			RuleID:       r.ID,
			RuleName:     r.Name,
			ResourceType: res.Type,
			ResourceID:   res.ID,
			ResourceName: res.Name,
			Severity:     r.Severity,
			MetricName:   r.MetricName,
			MetricValue:  value,
			Threshold:    r.Threshold,
			Message:      formatMessage(r, res, value),
			Status:       models.AlertStatusActive,
			TriggeredAt:  now,
		}
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("failed to create alert: %v", err)
		}
		if err := tx.Model(&models.AlertRule{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
			"last_triggered": now,
			"trigger_count":  gorm.Expr("trigger_count + 1"),
		}).Error; err != nil {
			return fmt.Errorf("failed to update rule stats: %v", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, nil
	}

	metrics.AlertsTriggered.WithLabelValues(string(created.Severity)).Inc()
	m.log.Info("alert triggered",
		"alert_id", created.ID, "rule", r.Name, "resource", res.ID, "value", value)

	related, err := m.correlator.Related(created)
	if err != nil {
		m.log.Error("alert correlation failed", "alert_id", created.ID, "error", err)
	}
	if err == nil && m.correlator.ShouldSuppress(related) {
		metrics.AlertsSuppressed.Inc()
		m.log.Info("alert suppressed as likely cascade",
			"alert_id", created.ID, "related", len(related))
	} else {
		m.notifier.Send(ctx,
			notificationTitle(created), created.Message,
			r.NotificationChannelIDs, "alert", &created.ID)
	}

	m.publish("triggered", created)
	return created, nil
}

// Acknowledge marks an active alert as acknowledged. Re-acknowledging is a
// no-op with no duplicate notification.
func (m *Manager) Acknowledge(ctx context.Context, id uint, actor string) (*models.Alert, error) {
	var a models.Alert
	if err := m.db.First(&a, id).Error; err != nil {
		return nil, fmt.Errorf("failed to find alert %d: %v", id, err)
	}

	switch a.Status {
	case models.AlertStatusAcknowledged:
		return &a, nil
	case models.AlertStatusResolved:
		return nil, fmt.Errorf("alert %d is already resolved", id)
	}

	now := m.clk.Now()
	a.Status = models.AlertStatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	if err := m.db.Save(&a).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %v", err)
	}

	m.notifier.Send(ctx,
		fmt.Sprintf("Alert acknowledged: %s", a.RuleName),
		fmt.Sprintf("%s\nAcknowledged by %s.", a.Message, actor),
		nil, "alert_acknowledged", &a.ID)
	m.publish("acknowledged", &a)
	return &a, nil
}

// Resolve marks an alert as resolved. Resolving a resolved alert is a
// no-op.
func (m *Manager) Resolve(ctx context.Context, id uint, actor string) (*models.Alert, error) {
	var a models.Alert
	if err := m.db.First(&a, id).Error; err != nil {
		return nil, fmt.Errorf("failed to find alert %d: %v", id, err)
	}
	if a.Status == models.AlertStatusResolved {
		return &a, nil
	}
	return m.resolve(ctx, &a, actor)
}

// AutoResolve resolves the active alert for (rule, resource) when a later
// evaluation finds the rule no longer triggering. No-op when nothing is
// active.
func (m *Manager) AutoResolve(ctx context.Context, ruleID uint, resourceID string) error {
	var a models.Alert
	err := m.db.Where("rule_id = ? AND resource_id = ? AND status = ?",
		ruleID, resourceID, models.AlertStatusActive).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up active alert: %v", err)
	}
	_, err = m.resolve(ctx, &a, "auto-resolved")
	return err
}

func (m *Manager) resolve(ctx context.Context, a *models.Alert, actor string) (*models.Alert, error) {
	now := m.clk.Now()
	a.Status = models.AlertStatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	if err := m.db.Save(a).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %v", err)
	}

	m.log.Info("alert resolved", "alert_id", a.ID, "rule", a.RuleName, "by", actor)
	m.notifier.Send(ctx,
		fmt.Sprintf("Alert resolved: %s", a.RuleName),
		fmt.Sprintf("%s\nResolved by %s.", a.Message, actor),
		nil, "alert_resolved", &a.ID)
	m.publish("resolved", a)
	return a, nil
}

// Snooze suppresses new trigger evaluation for the alert's rule+resource
// pair until now+duration. The alert's own status is untouched.
func (m *Manager) Snooze(ctx context.Context, id uint, duration time.Duration) (*models.Alert, error) {
	var a models.Alert
	if err := m.db.First(&a, id).Error; err != nil {
		return nil, fmt.Errorf("failed to find alert %d: %v", id, err)
	}

	until := m.clk.Now().Add(duration)
	a.SnoozedUntil = &until
	if err := m.db.Save(&a).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %v", err)
	}

	m.log.Info("alert snoozed", "alert_id", a.ID, "until", until)
	return &a, nil
}

// publish pushes a lifecycle event to the live stream. Best effort only; a
// missing or failing subscriber never affects the state transition.
func (m *Manager) publish(eventType string, a *models.Alert) {
	if m.publisher == nil {
		return
	}
	if !m.publisher.Publish(broadcast.NewEvent(eventType, a, m.clk.Now())) {
		m.log.Warn("lifecycle broadcast dropped", "type", eventType, "alert_id", a.ID)
	}
}

func formatMessage(r *models.AlertRule, res Resource, value float64) string {
	if len(r.Groups) > 0 {
		return fmt.Sprintf("%s: compound conditions met on %s", r.Name, res.Name)
	}
	return fmt.Sprintf("%s on %s is %.2f (threshold %s %.2f)",
		r.MetricName, res.Name, value, r.Condition.Symbol(), r.Threshold)
}

func notificationTitle(a *models.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.RuleName)
}
