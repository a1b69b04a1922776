// Package server exposes the capture, launchpad, preference, and
// longitudinal surfaces over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memento/internal/analysis"
	"memento/internal/classify"
	"memento/internal/config"
	"memento/internal/errors"
	"memento/internal/lock"
	"memento/internal/logging"
	"memento/internal/prefs"
	"memento/internal/session"
	"memento/internal/tasks"
	"memento/internal/themes"
)

// APIResponse is the uniform envelope for every JSON endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Deps carries the wired components the server routes to.
type Deps struct {
	Config      *config.Config
	Sessions    *session.Store
	Locks       *lock.Manager
	Classifier  *classify.Classifier
	Rules       *prefs.Store
	Analyzer    *prefs.Analyzer
	Aggregator  *analysis.Aggregator
	Detector    *themes.Detector
	Generator   *tasks.Generator
	TaskRunner  *tasks.Runner
	DomainRules *prefs.DomainRuleStore
}

type metrics struct {
	registry        *prometheus.Registry
	classifications *prometheus.CounterVec
	classifyTime    prometheus.Histogram
	dispositions    *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memento_classifications_total",
			Help: "Completed classifications by source.",
		}, []string{"source"}),
		classifyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "memento_classification_seconds",
			Help:    "Wall time of the classification pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memento_dispositions_total",
			Help: "Appended dispositions by action.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(m.classifications, m.classifyTime, m.dispositions)
	return m
}

// Server is the HTTP front of the whole system.
type Server struct {
	deps    Deps
	engine  *gin.Engine
	httpSrv *http.Server
	metrics *metrics
	logger  logging.Logger
}

func New(deps Deps) *Server {
	if !deps.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		deps:    deps,
		engine:  engine,
		metrics: newMetrics(),
		logger:  logging.NewComponentLogger("Server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/classifyBrowserContext", s.handleClassify)

	api := s.engine.Group("/api")
	{
		api.POST("/acquire-lock", s.handleAcquireLock)
		api.GET("/lock-status", s.handleLockStatus)

		launchpad := api.Group("/launchpad/:id")
		{
			launchpad.POST("/disposition", s.handleDisposition)
			launchpad.POST("/batch-disposition", s.handleBatchDisposition)
			launchpad.POST("/clear-lock", s.handleClearLock)
			launchpad.POST("/effort", s.handleCreateEffort)
			launchpad.POST("/effort/:eid/complete", s.handleCompleteEffort)
			launchpad.POST("/effort/:eid/defer", s.handleDeferEffort)
		}

		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
		api.GET("/sessions/:id/applied", s.handleGetSessionApplied)
		api.POST("/sessions/:id/reclassify", s.handleReclassify)
		api.GET("/search", s.handleSearch)

		api.GET("/preferences", s.handleGetPreferences)
		api.POST("/preferences/:id/approve", s.handleApprovePreference)
		api.POST("/preferences/:id/reject", s.handleRejectPreference)
		api.POST("/preferences/:id/unapprove", s.handleUnapprovePreference)

		api.GET("/domain-rules", s.handleGetDomainRules)
		api.PUT("/domain-rules/:host", s.handleSetDomainRule)

		api.GET("/analysis/recurring", s.handleRecurring)
		api.GET("/analysis/project-health", s.handleProjectHealth)
		api.GET("/analysis/distraction", s.handleDistraction)

		api.GET("/themes", s.handleThemes)
		api.POST("/themes/:id/feedback", s.handleThemeFeedback)

		api.GET("/tasks", s.handleTasks)
		api.POST("/tasks/action", s.handleTaskAction)
	}

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.registry, promhttp.HandlerOpts{})))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.deps.Config.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", s.deps.Config.ListenAddr)
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func okMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: message})
}

func fail(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), APIResponse{Success: false, Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	fail(c, errors.InvalidArgumentf("invalid request: %v", err))
}
