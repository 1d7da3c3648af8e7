package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/internal/rule"
	"github.com/labwatch/labwatch/pkg/logger"
)

// Engine runs rule evaluation on its own cadence, decoupled from
// collection: every interval it reads the freshest metric values per
// resource from the store, evaluates each enabled rule and drives the
// lifecycle manager (trigger or auto-resolve).
type Engine struct {
	db        *gorm.DB
	clk       clock.Clock
	log       logger.Logger
	manager   *Manager
	interval  time.Duration
	staleness time.Duration
}

func NewEngine(db *gorm.DB, clk clock.Clock, log logger.Logger, manager *Manager, interval, staleness time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	return &Engine{db: db, clk: clk, log: log, manager: manager, interval: interval, staleness: staleness}
}

// Run evaluates until ctx is cancelled. Evaluation errors degrade to logs;
// a broken rule or resource never stops the loop.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clk.Ticker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.EvaluateOnce(ctx); err != nil {
				e.log.Error("rule evaluation pass failed", "error", err)
			}
		}
	}
}

// EvaluateOnce runs a single evaluation pass over all enabled, un-muted
// rules. Only a failure to read the rule set at all is returned as an
// error.
func (e *Engine) EvaluateOnce(ctx context.Context) error {
	now := e.clk.Now()

	var rules []models.AlertRule
	if err := e.db.Where("enabled = ?", true).Find(&rules).Error; err != nil {
		return fmt.Errorf("failed to load rules: %v", err)
	}

	for i := range rules {
		r := &rules[i]
		if r.MutedUntil != nil && now.Before(*r.MutedUntil) {
			continue
		}

		resources, err := e.scopedResources(r)
		if err != nil {
			e.log.Warn("failed to resolve rule scope", "rule", r.Name, "error", err)
			continue
		}

		for _, res := range resources {
			values, err := e.latestValues(res.ID, now.Add(-e.staleness))
			if err != nil {
				e.log.Warn("failed to read metric values",
					"rule", r.Name, "resource", res.ID, "error", err)
				continue
			}

			triggered, reason := rule.Evaluate(r, values)
			if triggered {
				if _, err := e.manager.Trigger(ctx, r, res, values[r.MetricName]); err != nil {
					e.log.Error("alert trigger failed",
						"rule", r.Name, "resource", res.ID, "error", err)
				}
			} else {
				e.log.Debug("rule not triggered",
					"rule", r.Name, "resource", res.ID, "reason", reason)
				if err := e.manager.AutoResolve(ctx, r.ID, res.ID); err != nil {
					e.log.Error("auto-resolve failed",
						"rule", r.Name, "resource", res.ID, "error", err)
				}
			}
		}
	}
	return nil
}

// scopedResources expands a rule's resource scope: a specific source id,
// or every source seen within the staleness window for "all".
func (e *Engine) scopedResources(r *models.AlertRule) ([]Resource, error) {
	if r.ResourceID != "" && r.ResourceID != models.ResourceScopeAll {
		return []Resource{{Type: "agent", ID: r.ResourceID, Name: r.ResourceID}}, nil
	}

	var ids []string
	err := e.db.Model(&models.MetricSample{}).
		Where("timestamp >= ?", e.clk.Now().Add(-e.staleness)).
		Distinct().
		Pluck("source_id", &ids).Error
	if err != nil {
		return nil, err
	}

	resources := make([]Resource, 0, len(ids))
	for _, id := range ids {
		resources = append(resources, Resource{Type: "agent", ID: id, Name: id})
	}
	return resources, nil
}

// latestValues builds the current metric map for one source: the newest
// value per metric name within the staleness window.
func (e *Engine) latestValues(sourceID string, since time.Time) (map[string]float64, error) {
	var samples []models.MetricSample
	err := e.db.Where("source_id = ? AND timestamp >= ?", sourceID, since).
		Order("timestamp DESC").
		Find(&samples).Error
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64, len(samples))
	for _, s := range samples {
		if _, ok := values[s.MetricName]; !ok {
			values[s.MetricName] = s.Value
		}
	}
	return values, nil
}
