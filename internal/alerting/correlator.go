package alerting

import (
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/models"
)

const (
	// DefaultWindow is the trailing window used to look for related alerts.
	DefaultWindow = 5 * time.Minute
	// DefaultSuppressionThreshold is the related-alert count at which a new
	// alert is treated as part of a cascade rather than an independent
	// problem.
	DefaultSuppressionThreshold = 3
)

// Correlator groups alerts likely caused by one underlying incident so the
// dispatcher is not hammered with a notification storm. Suppression only
// withholds the external notification; the alert row is always kept.
type Correlator struct {
	db        *gorm.DB
	clk       clock.Clock
	window    time.Duration
	threshold int
}

func NewCorrelator(db *gorm.DB, clk clock.Clock, window time.Duration, threshold int) *Correlator {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultSuppressionThreshold
	}
	return &Correlator{db: db, clk: clk, window: window, threshold: threshold}
}

// Related returns active alerts within the trailing window that share the
// new alert's resource or its severity, excluding the alert itself. The
// single query deduplicates by construction.
func (c *Correlator) Related(a *models.Alert) ([]models.Alert, error) {
	since := c.clk.Now().Add(-c.window)

	var related []models.Alert
	err := c.db.
		Where("id <> ? AND status = ? AND triggered_at >= ?",
			a.ID, models.AlertStatusActive, since).
		Where(c.db.
			Where("resource_type = ? AND resource_id = ?", a.ResourceType, a.ResourceID).
			Or("severity = ?", a.Severity)).
		Find(&related).Error
	if err != nil {
		return nil, err
	}
	return related, nil
}

// ShouldSuppress reports whether the new alert looks like part of a
// cascade.
func (c *Correlator) ShouldSuppress(related []models.Alert) bool {
	return len(related) >= c.threshold
}
