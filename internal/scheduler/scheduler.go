package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/agent"
	"github.com/labwatch/labwatch/internal/config"
	"github.com/labwatch/labwatch/internal/metrics"
	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/pkg/logger"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

// AgentHealth is the rolling health of one agent, derived from its
// consecutive error count.
type AgentHealth struct {
	AgentID           string       `json:"agent_id"`
	Status            HealthStatus `json:"status"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
	LastError         string       `json:"last_error,omitempty"`
	LastRunAt         time.Time    `json:"last_run_at"`
}

type Options struct {
	DefaultInterval time.Duration
	CollectTimeout  time.Duration
	ShutdownGrace   time.Duration
	MaxConcurrent   int64
}

func (o *Options) withDefaults() {
	if o.DefaultInterval <= 0 {
		o.DefaultInterval = 60 * time.Second
	}
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = 30 * time.Second
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
}

// job is one live schedule: a single goroutine that fires first at offset,
// then every interval. Ticks of one agent never overlap; an overrun
// coalesces into at most one pending tick.
type job struct {
	agent    agent.Agent
	settings map[string]string
	interval time.Duration
	offset   time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Scheduler owns one periodic timer per enabled agent, staggering first
// executions evenly across one interval so N agents never fire as a herd.
type Scheduler struct {
	db   *gorm.DB
	clk  clock.Clock
	log  logger.Logger
	opts Options
	sem  *semaphore.Weighted

	mu      sync.Mutex
	jobs    map[string]*job
	health  map[string]*AgentHealth
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func New(db *gorm.DB, clk clock.Clock, log logger.Logger, opts Options) *Scheduler {
	opts.withDefaults()
	return &Scheduler{
		db:     db,
		clk:    clk,
		log:    log,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		jobs:   make(map[string]*job),
		health: make(map[string]*AgentHealth),
	}
}

// Start builds agents from the given configs and begins their schedules.
func (s *Scheduler) Start(configs []config.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true
	return s.scheduleLocked(configs)
}

// Reload atomically replaces the full schedule. Re-adding an agent id
// never duplicates its timer: the prior job is stopped first.
func (s *Scheduler) Reload(configs []config.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("scheduler not started")
	}
	s.stopJobsLocked()
	s.log.Info("scheduler reloading", "agents", len(configs))
	return s.scheduleLocked(configs)
}

// Stop cancels all timers and waits up to the shutdown grace period for
// in-flight collections. Interrupted collections write nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.stopJobsLocked()
	s.started = false
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
}

// Health returns a snapshot of per-agent rolling health.
func (s *Scheduler) Health() map[string]AgentHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]AgentHealth, len(s.health))
	for id, h := range s.health {
		out[id] = *h
	}
	return out
}

// Descriptors lists the scheduled agents' self-descriptions.
func (s *Scheduler) Descriptors() []agent.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Descriptor, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.agent.Describe())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (s *Scheduler) scheduleLocked(configs []config.AgentConfig) error {
	enabled := make([]config.AgentConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	sort.Slice(enabled, func(i, k int) bool { return enabled[i].ID < enabled[k].ID })

	n := len(enabled)
	for i, cfg := range enabled {
		interval := s.opts.DefaultInterval
		if cfg.IntervalSeconds > 0 {
			interval = time.Duration(cfg.IntervalSeconds) * time.Second
		}

		a, err := agent.New(cfg.Kind, cfg.ID, int(interval/time.Second))
		if err != nil {
			return fmt.Errorf("failed to build agent %s: %v", cfg.ID, err)
		}

		// Spread first executions evenly across one interval.
		offset := interval / time.Duration(n) * time.Duration(i)

		jctx, jcancel := context.WithCancel(s.ctx)
		j := &job{
			agent:    a,
			settings: cfg.Settings,
			interval: interval,
			offset:   offset,
			cancel:   jcancel,
			done:     make(chan struct{}),
		}
		s.jobs[cfg.ID] = j
		if _, ok := s.health[cfg.ID]; !ok {
			s.health[cfg.ID] = &AgentHealth{AgentID: cfg.ID, Status: HealthHealthy}
		}

		s.log.Info("agent scheduled",
			"agent", cfg.ID, "kind", cfg.Kind,
			"interval", interval.String(), "offset", offset.String())
		go s.runLoop(jctx, cfg.ID, j)
	}
	return nil
}

// stopJobsLocked cancels every job and waits for the loops to exit, up to
// the grace period.
func (s *Scheduler) stopJobsLocked() {
	deadline := time.After(s.opts.ShutdownGrace)
	for id, j := range s.jobs {
		j.cancel()
		select {
		case <-j.done:
		case <-deadline:
			s.log.Warn("agent did not stop within grace period", "agent", id)
		}
		delete(s.jobs, id)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, id string, j *job) {
	defer close(j.done)

	timer := s.clk.Timer(j.offset)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}
	s.runOnce(ctx, id, j)

	ticker := s.clk.Ticker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, id, j)
		}
	}
}

// runOnce performs one bounded collection. A failed or interrupted run
// never touches other agents; retry is the next tick.
func (s *Scheduler) runOnce(ctx context.Context, id string, j *job) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	started := s.clk.Now()
	cctx, cancel := context.WithTimeout(ctx, s.opts.CollectTimeout)
	values, err := j.agent.Collect(cctx, j.settings)
	cancel()
	completed := s.clk.Now()

	// Shutdown mid-collection: discard, never half-write.
	if ctx.Err() != nil {
		return
	}

	if err == nil && len(values) == 0 {
		err = errors.New("agent returned no metrics")
	}

	if err != nil {
		s.recordFailure(id, started, completed, err)
		return
	}
	s.recordSuccess(id, started, completed, values)
}

func (s *Scheduler) recordSuccess(id string, started, completed time.Time, values map[string]float64) {
	samples := make([]models.MetricSample, 0, len(values))
	for name, value := range values {
		samples = append(samples, models.MetricSample{
			SourceID:   id,
			MetricName: name,
			Timestamp:  completed,
			Value:      value,
		})
	}
	if err := s.db.Create(&samples).Error; err != nil {
		s.log.Error("failed to write metric samples", "agent", id, "error", err)
	} else {
		metrics.SamplesWritten.Add(float64(len(samples)))
	}

	exec := models.AgentExecution{
		AgentID:      id,
		StartedAt:    started,
		CompletedAt:  &completed,
		Status:       models.ExecutionSuccess,
		MetricsCount: len(values),
	}
	if err := s.db.Create(&exec).Error; err != nil {
		s.log.Error("failed to write execution record", "agent", id, "error", err)
	}
	metrics.CollectionsTotal.WithLabelValues(id, "success").Inc()

	s.mu.Lock()
	if h, ok := s.health[id]; ok {
		h.ConsecutiveErrors = 0
		h.Status = HealthHealthy
		h.LastError = ""
		h.LastRunAt = completed
	}
	s.mu.Unlock()

	s.log.Debug("collection complete", "agent", id, "metrics", len(values))
}

func (s *Scheduler) recordFailure(id string, started, completed time.Time, collectErr error) {
	exec := models.AgentExecution{
		AgentID:      id,
		StartedAt:    started,
		CompletedAt:  &completed,
		Status:       models.ExecutionFailed,
		ErrorMessage: collectErr.Error(),
	}
	if err := s.db.Create(&exec).Error; err != nil {
		s.log.Error("failed to write execution record", "agent", id, "error", err)
	}
	metrics.CollectionsTotal.WithLabelValues(id, "failed").Inc()

	s.mu.Lock()
	if h, ok := s.health[id]; ok {
		h.ConsecutiveErrors++
		h.Status = deriveHealth(h.ConsecutiveErrors)
		h.LastError = collectErr.Error()
		h.LastRunAt = completed
	}
	s.mu.Unlock()

	s.log.Warn("collection failed", "agent", id, "error", collectErr)
}

func deriveHealth(consecutiveErrors int) HealthStatus {
	switch {
	case consecutiveErrors >= 5:
		return HealthFailing
	case consecutiveErrors >= 2:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
