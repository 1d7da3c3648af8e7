package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/labwatch/labwatch/internal/alerting"
	"github.com/labwatch/labwatch/internal/broadcast"
	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/internal/notify"
	"github.com/labwatch/labwatch/internal/scheduler"
	"github.com/labwatch/labwatch/pkg/logger"
)

// Server exposes the pipeline's outputs (alerts, executions, samples,
// health) plus the alert lifecycle operations and the live event stream.
// Configuration CRUD lives elsewhere.
type Server struct {
	db         *gorm.DB
	sched      *scheduler.Scheduler
	manager    *alerting.Manager
	dispatcher *notify.Dispatcher
	hub        *broadcast.Hub
	log        logger.Logger
	router     *gin.Engine
	httpServer *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func NewServer(db *gorm.DB, sched *scheduler.Scheduler, manager *alerting.Manager, dispatcher *notify.Dispatcher, hub *broadcast.Hub, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		db:         db,
		sched:      sched,
		manager:    manager,
		dispatcher: dispatcher,
		hub:        hub,
		log:        log,
		router:     gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.serveWebsocket)

	api := s.router.Group("/api/v1")
	api.GET("/alerts", s.listAlerts)
	api.PUT("/alerts/:id/acknowledge", s.acknowledgeAlert)
	api.PUT("/alerts/:id/resolve", s.resolveAlert)
	api.PUT("/alerts/:id/snooze", s.snoozeAlert)
	api.GET("/executions", s.listExecutions)
	api.GET("/samples", s.listSamples)
	api.GET("/scheduler/agents", s.listAgents)
	api.GET("/scheduler/health", s.schedulerHealth)
	api.POST("/channels/:id/test", s.testChannel)
}

func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) serveWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	broadcast.NewClient(s.hub, conn, s.log).Serve()
}

func (s *Server) listAlerts(c *gin.Context) {
	query := s.db.Order("triggered_at desc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if resource := c.Query("resource_id"); resource != "" {
		query = query.Where("resource_id = ?", resource)
	}
	query = query.Limit(queryLimit(c, 100))

	var alerts []models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	_ = c.BindJSON(&body)
	if body.Actor == "" {
		body.Actor = "api"
	}

	alert, err := s.manager.Acknowledge(c.Request.Context(), id, body.Actor)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) resolveAlert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	_ = c.BindJSON(&body)
	if body.Actor == "" {
		body.Actor = "api"
	}

	alert, err := s.manager.Resolve(c.Request.Context(), id, body.Actor)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) snoozeAlert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := c.BindJSON(&body); err != nil || body.Minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
		return
	}

	alert, err := s.manager.Snooze(c.Request.Context(), id, time.Duration(body.Minutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) listExecutions(c *gin.Context) {
	query := s.db.Order("started_at desc").Limit(queryLimit(c, 100))
	if agentID := c.Query("agent_id"); agentID != "" {
		query = query.Where("agent_id = ?", agentID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var executions []models.AgentExecution
	if err := query.Find(&executions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch executions"})
		return
	}
	c.JSON(http.StatusOK, executions)
}

func (s *Server) listSamples(c *gin.Context) {
	query := s.db.Order("timestamp desc").Limit(queryLimit(c, 500))
	if source := c.Query("source_id"); source != "" {
		query = query.Where("source_id = ?", source)
	}
	if metric := c.Query("metric"); metric != "" {
		query = query.Where("metric_name = ?", metric)
	}
	if start := c.Query("start"); start != "" {
		if ts, err := time.Parse(time.RFC3339, start); err == nil {
			query = query.Where("timestamp >= ?", ts)
		}
	}
	if end := c.Query("end"); end != "" {
		if ts, err := time.Parse(time.RFC3339, end); err == nil {
			query = query.Where("timestamp <= ?", ts)
		}
	}

	var samples []models.MetricSample
	if err := query.Find(&samples).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch samples"})
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Descriptors())
}

func (s *Server) schedulerHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Health())
}

func (s *Server) testChannel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	result, err := s.dispatcher.TestChannel(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func queryLimit(c *gin.Context, fallback int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return fallback
}
