package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/broadcast"
	"github.com/labwatch/labwatch/internal/database"
	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/internal/notify"
	"github.com/labwatch/labwatch/pkg/logger"
)

type sendCall struct {
	Title       string
	TriggerType string
	ChannelIDs  []uint
	TriggerID   *uint
}

type fakeNotifier struct {
	calls []sendCall
}

func (f *fakeNotifier) Send(_ context.Context, title, _ string, channelIDs []uint, triggerType string, triggerID *uint) notify.Outcome {
	f.calls = append(f.calls, sendCall{Title: title, TriggerType: triggerType, ChannelIDs: channelIDs, TriggerID: triggerID})
	return notify.Outcome{Success: true}
}

type fakePublisher struct {
	events []broadcast.Event
}

func (f *fakePublisher) Publish(evt broadcast.Event) bool {
	f.events = append(f.events, evt)
	return true
}

type managerFixture struct {
	db        *gorm.DB
	clk       *clock.Mock
	notifier  *fakeNotifier
	publisher *fakePublisher
	manager   *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	db := database.OpenTest(t)
	clk := clock.NewMock()
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	correlator := NewCorrelator(db, clk, DefaultWindow, DefaultSuppressionThreshold)
	return &managerFixture{
		db:        db,
		clk:       clk,
		notifier:  notifier,
		publisher: publisher,
		manager:   NewManager(db, clk, logger.Nop(), notifier, publisher, correlator),
	}
}

func (f *managerFixture) createRule(t *testing.T, cooldownMinutes int) *models.AlertRule {
	t.Helper()
	r := &models.AlertRule{
		Name:            "disk-usage-" + t.Name(),
		ResourceID:      "nas-01",
		MetricName:      "disk_percent",
		Condition:       models.OperatorGT,
		Threshold:       90,
		Severity:        models.SeverityWarning,
		Enabled:         true,
		CooldownMinutes: cooldownMinutes,
	}
	require.NoError(t, f.db.Create(r).Error)
	return r
}

var nas = Resource{Type: "agent", ID: "nas-01", Name: "nas-01"}

func (f *managerFixture) alertCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Alert{}).Count(&n).Error)
	return n
}

func TestTriggerCreatesAlert(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 5)

	a, err := f.manager.Trigger(context.Background(), r, nas, 92)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, models.AlertStatusActive, a.Status)
	assert.Equal(t, 92.0, a.MetricValue)
	assert.Contains(t, a.Message, "disk_percent")
	assert.Contains(t, a.Message, "nas-01")
	assert.Contains(t, a.Message, ">")
	assert.Contains(t, a.Message, "92.00")
	assert.Contains(t, a.Message, "90.00")

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "alert", f.notifier.calls[0].TriggerType)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "triggered", f.publisher.events[0].Type)

	var updated models.AlertRule
	require.NoError(t, f.db.First(&updated, r.ID).Error)
	assert.Equal(t, 1, updated.TriggerCount)
	require.NotNil(t, updated.LastTriggered)
}

func TestTriggerNoOpWhileActive(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 5)

	first, err := f.manager.Trigger(context.Background(), r, nas, 92)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.manager.Trigger(context.Background(), r, nas, 93)
	require.NoError(t, err)
	assert.Nil(t, second, "second trigger while active must be a no-op")
	assert.EqualValues(t, 1, f.alertCount(t))
	assert.Len(t, f.notifier.calls, 1)
}

func TestTriggerRespectsCooldownAfterResolve(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 5)
	ctx := context.Background()

	first, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = f.manager.Resolve(ctx, first.ID, "operator")
	require.NoError(t, err)

	// Still inside the cooldown window even though nothing is active.
	f.clk.Add(2 * time.Minute)
	a, err := f.manager.Trigger(ctx, r, nas, 95)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.EqualValues(t, 1, f.alertCount(t))

	// Past cooldown a brand-new alert row appears.
	f.clk.Add(4 * time.Minute)
	a, err = f.manager.Trigger(ctx, r, nas, 95)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NotEqual(t, first.ID, a.ID)
	assert.EqualValues(t, 2, f.alertCount(t))
}

// Acknowledging does not end the cooldown window, so a rapid
// acknowledge -> re-trigger sequence cannot duplicate alerts.
func TestTriggerCooldownCoversAcknowledgedAlerts(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 5)
	ctx := context.Background()

	first, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)
	_, err = f.manager.Acknowledge(ctx, first.ID, "operator")
	require.NoError(t, err)

	f.clk.Add(time.Minute)
	a, err := f.manager.Trigger(ctx, r, nas, 99)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.EqualValues(t, 1, f.alertCount(t))
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0)
	ctx := context.Background()

	a, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)
	triggersSent := len(f.notifier.calls)

	acked, err := f.manager.Acknowledge(ctx, a.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "carol", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)
	firstAckAt := *acked.AcknowledgedAt
	assert.Len(t, f.notifier.calls, triggersSent+1)

	f.clk.Add(time.Minute)
	again, err := f.manager.Acknowledge(ctx, a.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, "carol", again.AcknowledgedBy, "re-acknowledge must not change state")
	assert.Equal(t, firstAckAt, *again.AcknowledgedAt)
	assert.Len(t, f.notifier.calls, triggersSent+1, "no duplicate notification")
}

func TestResolveIsIdempotentAndTerminal(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0)
	ctx := context.Background()

	a, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)

	resolved, err := f.manager.Resolve(ctx, a.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	sent := len(f.notifier.calls)

	again, err := f.manager.Resolve(ctx, a.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, "carol", again.ResolvedBy)
	assert.Len(t, f.notifier.calls, sent)

	// No transition out of resolved.
	_, err = f.manager.Acknowledge(ctx, a.ID, "dave")
	assert.Error(t, err)
}

func TestResolveReopensEligibility(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0) // no cooldown
	ctx := context.Background()

	first, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)
	_, err = f.manager.Resolve(ctx, first.ID, "carol")
	require.NoError(t, err)

	second, err := f.manager.Trigger(ctx, r, nas, 94)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAutoResolve(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0)
	ctx := context.Background()

	a, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)

	require.NoError(t, f.manager.AutoResolve(ctx, r.ID, nas.ID))

	var resolved models.Alert
	require.NoError(t, f.db.First(&resolved, a.ID).Error)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Equal(t, "auto-resolved", resolved.ResolvedBy)

	// Nothing active: a second pass is a quiet no-op.
	require.NoError(t, f.manager.AutoResolve(ctx, r.ID, nas.ID))
}

func TestSnoozeSuppressesNewTriggers(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0)
	ctx := context.Background()

	a, err := f.manager.Trigger(ctx, r, nas, 92)
	require.NoError(t, err)

	snoozed, err := f.manager.Snooze(ctx, a.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, snoozed.Status, "snooze must not change status")
	require.NotNil(t, snoozed.SnoozedUntil)

	_, err = f.manager.Resolve(ctx, a.ID, "carol")
	require.NoError(t, err)

	// Inside the snooze window no new alert appears even with no cooldown.
	f.clk.Add(10 * time.Minute)
	blocked, err := f.manager.Trigger(ctx, r, nas, 99)
	require.NoError(t, err)
	assert.Nil(t, blocked)

	// After the snooze passes the pair is eligible again.
	f.clk.Add(25 * time.Minute)
	fresh, err := f.manager.Trigger(ctx, r, nas, 99)
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestAtMostOneActivePerPair(t *testing.T) {
	f := newManagerFixture(t)
	r := f.createRule(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.manager.Trigger(ctx, r, nas, 95)
		require.NoError(t, err)
	}

	var active int64
	require.NoError(t, f.db.Model(&models.Alert{}).
		Where("rule_id = ? AND resource_id = ? AND status = ?", r.ID, nas.ID, models.AlertStatusActive).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestCascadeSuppressionWithholdsNotificationOnly(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	// Three active alerts on the same resource within the window.
	for i, name := range []string{"rule-a", "rule-b", "rule-c"} {
		r := &models.AlertRule{
			Name: name, ResourceID: nas.ID, MetricName: "m", Condition: models.OperatorGT,
			Threshold: float64(i), Severity: models.SeverityWarning, Enabled: true,
		}
		require.NoError(t, f.db.Create(r).Error)
		a, err := f.manager.Trigger(ctx, r, nas, 100)
		require.NoError(t, err)
		require.NotNil(t, a)
	}
	sentBefore := len(f.notifier.calls)
	assert.Equal(t, 3, sentBefore)

	r := &models.AlertRule{
		Name: "rule-d", ResourceID: nas.ID, MetricName: "m", Condition: models.OperatorGT,
		Threshold: 50, Severity: models.SeverityWarning, Enabled: true,
	}
	require.NoError(t, f.db.Create(r).Error)
	fourth, err := f.manager.Trigger(ctx, r, nas, 100)
	require.NoError(t, err)
	require.NotNil(t, fourth, "suppressed alert row is still persisted")

	assert.Len(t, f.notifier.calls, sentBefore, "fourth alert must not be dispatched")
	assert.Len(t, f.publisher.events, 4, "broadcast still happens for suppressed alerts")
	assert.EqualValues(t, 4, f.alertCount(t))
}

func TestCorrelatorWindowAndScope(t *testing.T) {
	f := newManagerFixture(t)
	correlator := NewCorrelator(f.db, f.clk, 5*time.Minute, 3)
	now := f.clk.Now()

	mk := func(resID string, sev models.Severity, age time.Duration, status models.AlertStatus) {
		a := models.Alert{
			RuleID: 1, ResourceType: "agent", ResourceID: resID,
			Severity: sev, Status: status, TriggeredAt: now.Add(-age),
		}
		require.NoError(t, f.db.Create(&a).Error)
	}

	mk("nas-01", models.SeverityCritical, time.Minute, models.AlertStatusActive)   // same resource
	mk("other", models.SeverityWarning, 2*time.Minute, models.AlertStatusActive)   // same severity
	mk("nas-01", models.SeverityWarning, 10*time.Minute, models.AlertStatusActive) // outside window
	mk("nas-01", models.SeverityWarning, time.Minute, models.AlertStatusResolved)  // not active
	mk("unrelated", models.SeverityInfo, time.Minute, models.AlertStatusActive)    // nothing shared

	subject := models.Alert{
		RuleID: 2, ResourceType: "agent", ResourceID: "nas-01",
		Severity: models.SeverityWarning, Status: models.AlertStatusActive, TriggeredAt: now,
	}
	require.NoError(t, f.db.Create(&subject).Error)

	related, err := correlator.Related(&subject)
	require.NoError(t, err)
	assert.Len(t, related, 2)
	assert.False(t, correlator.ShouldSuppress(related))
	assert.True(t, correlator.ShouldSuppress(make([]models.Alert, 3)))
}
