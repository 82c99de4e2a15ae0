// Package server wires the HTTP API: tenant resolution, entitlement
// gating, floor plan, QR access and billing routes.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/tavolohq/tavolo/internal/billing"
	"github.com/tavolohq/tavolo/internal/config"
	"github.com/tavolohq/tavolo/internal/entitlement"
	"github.com/tavolohq/tavolo/internal/floor"
	"github.com/tavolohq/tavolo/internal/health"
	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
	"github.com/tavolohq/tavolo/internal/qraccess"
	"github.com/tavolohq/tavolo/internal/ratelimit"
	"github.com/tavolohq/tavolo/internal/reqctx"
	"github.com/tavolohq/tavolo/internal/security"
	"github.com/tavolohq/tavolo/internal/tenant"
	"github.com/tavolohq/tavolo/internal/validation"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry

	tenants    tenant.Store
	directory  *tenant.Directory
	billingSvc *billing.Service
	engine     *entitlement.Engine
	floorSvc   *floor.Service
	registry   *qraccess.Registry

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var (
		tenantStore  tenant.Store
		billingStore billing.Store
		usageStore   entitlement.UsageStore
		floorStore   floor.Store
		qrStore      qraccess.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		tenantStore = tenant.NewPostgresStore(db)
		billingStore = billing.NewPostgresStore(db)
		usageStore = entitlement.NewPostgresUsageStore(db)
		floorStore = floor.NewPostgresStore(db)
		qrStore = qraccess.NewPostgresStore(db)

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Warn("DATABASE_URL not set, using in-memory storage")
		tenantStore = tenant.NewMemoryStore()
		billingStore = billing.NewMemoryStore()
		usageStore = entitlement.NewMemoryUsageStore()
		floorStore = floor.NewMemoryStore()
		qrStore = qraccess.NewMemoryStore()

		s.healthReg.Register("storage", func(context.Context) health.Status {
			return health.Status{Name: "storage", Healthy: true, Detail: "in-memory"}
		})
	}

	s.tenants = tenantStore
	s.directory = tenant.NewDirectory(tenantStore, tenant.Strategy(cfg.TenantStrategy),
		cfg.DefaultTenantSlug, cfg.ExcludedPaths)
	s.billingSvc = billing.NewService(billingStore, cfg.TrialDays)
	s.floorSvc = floor.NewService(floorStore)

	s.engine = entitlement.NewEngine(billingStore, usageStore)
	s.engine.RegisterCounter(billing.ResourceMaxTables, s.floorSvc.CountTables)

	s.registry = qraccess.NewRegistry(qrStore, qraccess.NewSigner(cfg.QRSecret), s.floorSvc)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// tenantMiddleware resolves the tenant from the request host or path
// and stashes its id for handlers and the structured logger.
func (s *Server) tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		slug, err := s.directory.Resolve(ctx, c.Request.Host, c.Request.URL.Path)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error": "tenant_not_found", "message": "no restaurant matches this address"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal", "message": "tenant resolution failed"})
			return
		}

		t, err := s.tenants.GetBySlug(ctx, slug)
		if err != nil || !t.Active {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "tenant_not_found", "message": "no restaurant matches this address"})
			return
		}

		reqctx.SetTenantID(c, t.ID)
		c.Request = c.Request.WithContext(logging.WithTenantID(ctx, t.ID))
		c.Next()
	}
}

// adminMiddleware guards the tenant administration surface with a
// shared secret. An empty configured secret disables the surface
// entirely rather than leaving it open.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" || c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized", "message": "admin credentials required"})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())

	if s.cfg.StripeWebhookSecret != "" {
		webhook := billing.NewStripeWebhook(s.billingSvc, s.cfg.StripeWebhookSecret)
		webhook.RegisterRoutes(s.router)
	} else {
		s.logger.Warn("STRIPE_WEBHOOK_SECRET not set, billing webhook disabled")
	}

	admin := s.router.Group("/admin", s.adminMiddleware())
	tenantHandler := tenant.NewHandler(s.tenants, s.directory, s.billingSvc)
	tenantHandler.RegisterAdminRoutes(admin)

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
	})

	api := s.router.Group("/api", s.tenantMiddleware(), s.rateLimiter.Middleware())

	billing.NewHandler(s.billingSvc).RegisterRoutes(api)
	entitlement.NewHandler(s.engine).RegisterRoutes(api)

	// The floor plan and QR management require a live subscription and
	// the matching plan feature. Billing and entitlement endpoints stay
	// ungated so a suspended tenant can still see and fix its
	// subscription, and scanning stays public so guests can reach the
	// menu from a printed code.
	subscribed := api.Group("", entitlement.RequireActiveSubscription(s.engine))

	floorGroup := subscribed.Group("", entitlement.RequireFeature(s.engine, billing.FeatureTableManagement))
	floor.NewHandler(s.floorSvc, s.engine).RegisterRoutes(floorGroup)

	qrHandler := qraccess.NewHandler(s.registry)
	qrGroup := subscribed.Group("", entitlement.RequireFeature(s.engine, billing.FeatureQRCodeBasic))
	qrHandler.RegisterRoutes(qrGroup)
	qrHandler.RegisterPublicRoutes(api)
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"tenant_strategy", s.cfg.TenantStrategy,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

func generateRequestID() string {
	return "req_" + idgen.Hex(8)
}
