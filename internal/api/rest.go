// Package api provides the REST status API and WebSocket streaming for
// Linkarr: health, import history, event queries, manual rescan and
// maintenance triggers, and Prometheus metrics.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/fingerprint"
	"github.com/mescon/Linkarr/internal/logger"
	"github.com/mescon/Linkarr/internal/metrics"
	"github.com/mescon/Linkarr/internal/services"
)

// Rescanner triggers a walk of the watch folder. Interface so handlers can be
// tested without a real filesystem watcher.
type Rescanner interface {
	Rescan(trigger string)
}

// Maintenance runs one janitor pass.
type Maintenance interface {
	Run() services.JanitorStats
}

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	db         *sql.DB
	eventBus   eventbus.Publisher
	store      *fingerprint.Store
	rescanner  Rescanner
	janitor    Maintenance
	metrics    *metrics.MetricsService
	hub        *WebSocketHub
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	DB        *sql.DB
	EventBus  eventbus.Publisher
	Store     *fingerprint.Store
	Rescanner Rescanner
	Janitor   Maintenance
	Metrics   *metrics.MetricsService
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	// Release mode suppresses gin's debug warnings in production.
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.Request.ContentLength)
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	s := &RESTServer{
		router:    r,
		db:        deps.DB,
		eventBus:  deps.EventBus,
		store:     deps.Store,
		rescanner: deps.Rescanner,
		janitor:   deps.Janitor,
		metrics:   deps.Metrics,
		hub:       NewWebSocketHub(deps.EventBus),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *RESTServer) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stats", s.handleStats)
		api.GET("/imports/recent", s.handleRecentImports)
		api.GET("/events", s.handleEvents)
		api.POST("/rescan", s.handleRescan)
		api.POST("/janitor/run", s.handleJanitorRun)
		api.GET("/ws", s.hub.HandleWebSocket)
	}

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Shutdown is called.
func (s *RESTServer) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("REST API listening on :%s", port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the WebSocket hub.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *RESTServer) handleHealth(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"
	if err := s.db.Ping(); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"database": dbStatus,
		"version":  config.Version,
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
	})
}
