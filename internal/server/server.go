// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/shahram8708/Finvela/internal/audit"
	"github.com/shahram8708/Finvela/internal/benchmark"
	"github.com/shahram8708/Finvela/internal/compliance"
	"github.com/shahram8708/Finvela/internal/config"
	"github.com/shahram8708/Finvela/internal/idgen"
	"github.com/shahram8708/Finvela/internal/invoice"
	"github.com/shahram8708/Finvela/internal/logging"
	"github.com/shahram8708/Finvela/internal/metrics"
	"github.com/shahram8708/Finvela/internal/ratelimit"
	"github.com/shahram8708/Finvela/internal/realtime"
	"github.com/shahram8708/Finvela/internal/risk"
	"github.com/shahram8708/Finvela/internal/security"
	"github.com/shahram8708/Finvela/internal/traces"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	invoices    invoice.Store
	events      invoice.EventStore
	checks      compliance.Store
	scores      risk.Store
	weights     risk.WeightResolver
	benchmarks  benchmark.Service
	auditWriter *audit.Writer
	orch        *risk.Orchestrator
	hub         *realtime.Hub
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx  context.CancelFunc
	traceShutdown func(context.Context) error
	ready         atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server with all dependencies wired from config.
// With DATABASE_URL set, stores are PostgreSQL-backed; otherwise everything
// runs in memory (demo mode). Same split for BENCHMARK_URL and the stub.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()

	if err := s.setupStores(); err != nil {
		return nil, err
	}
	s.setupPipeline()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupStores() error {
	if s.cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		s.db = db
		s.invoices = invoice.NewPostgresStore(db)
		s.events = invoice.NewPostgresEventStore(db)
		s.checks = compliance.NewPostgresStore(db)
		s.scores = risk.NewPostgresStore(db)
		s.auditWriter = audit.NewWriter(audit.NewPostgresStore(db), s.logger)
		s.logger.Info("using PostgreSQL stores")
	} else {
		s.invoices = invoice.NewMemoryStore()
		s.events = invoice.NewMemoryEventStore()
		s.checks = compliance.NewMemoryStore()
		s.scores = risk.NewMemoryStore()
		s.auditWriter = audit.NewWriter(audit.NewMemoryStore(), s.logger)
		s.logger.Warn("DATABASE_URL not set, using in-memory stores (data is not persisted)")
	}

	if s.cfg.BenchmarkURL != "" {
		s.benchmarks = benchmark.NewClient(s.cfg.BenchmarkURL, s.logger)
	} else {
		s.benchmarks = benchmark.NewStub()
		s.logger.Warn("BENCHMARK_URL not set, using benchmark stub")
	}
	return nil
}

func (s *Server) setupPipeline() {
	weights := make(map[risk.ContributorName]float64, len(s.cfg.RiskWeights))
	for name, w := range s.cfg.RiskWeights {
		weights[risk.ContributorName(name)] = w
	}
	s.weights = risk.NewStaticResolver(weights, s.cfg.RiskPolicyVersion)

	s.hub = realtime.NewHub(s.logger)
	s.events = realtime.NewEventBridge(s.events, s.hub)

	s.orch = risk.NewOrchestrator(risk.OrchestratorDeps{
		Invoices:   s.invoices,
		Events:     s.events,
		Benchmarks: s.benchmarks,
		Checks:     s.checks,
		Scores:     s.scores,
		Weights:    s.weights,
		Audit:      s.auditWriter,
		Logger:     s.logger,
	}, risk.OrchestratorConfig{
		Workers:    s.cfg.RiskWorkers,
		QueueSize:  s.cfg.RiskQueueSize,
		MaxItems:   s.cfg.WaterfallMaxItems,
		FailValue:  s.cfg.CheckFailValue,
		WarnValue:  s.cfg.CheckWarnValue,
		RunTimeout: s.cfg.RiskRunTimeout,
	})
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(8)
		}

		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := s.logger.With(
			"request_id", logging.RequestID(c.Request.Context()),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		)

		switch {
		case status >= 500:
			logger.Error("request completed", "client_ip", c.ClientIP())
		case status >= 400:
			logger.Warn("request completed")
		default:
			logger.Info("request completed")
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/live", s.livenessHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitPerMinute,
		BurstSize:         s.cfg.RateLimitPerMinute / 2,
		CleanupInterval:   time.Minute,
	})

	riskHandler := risk.NewHandler(s.invoices, s.scores, s.weights, s.orch, s.logger)
	riskHandler.RegisterRoutes(&s.router.RouterGroup, s.rateLimiter.Middleware())

	s.router.GET("/ws/events", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until a shutdown signal or context
// cancellation, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.traceShutdown = shutdown

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Background workers: pipeline pool, event hub, audit writer
	go s.orch.Start(runCtx)
	go s.hub.Run(runCtx)
	go s.auditWriter.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown stops the HTTP server and background workers gracefully.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (workers, hub, audit)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.auditWriter != nil {
		s.auditWriter.Stop()
	}
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
