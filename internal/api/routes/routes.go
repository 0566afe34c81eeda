package routes

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/api/handlers"
	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/cerberus"
	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/metrics"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
	"github.com/bazaarly/kernel/backend/internal/traffic"
)

// KernelPrefix is the route group for the operator-facing security kernel. It is
// excluded from traffic capture so operators never show up in their own feed.
const KernelPrefix = "/api/v1/kernel"

// Kernel holds the long-lived pieces Register builds, for shutdown and for tests.
type Kernel struct {
	Schema      *services.SchemaState
	Events      *services.SecurityEventService
	Trust       *services.TrustService
	Blocks      *services.BlockService
	Intel       *services.IntelService
	Watchlist   *services.WatchlistService
	Operators   *services.OperatorService
	Maintenance *services.MaintenanceService
	Guard       *cerberus.Cerberus
	Traffic     *traffic.Ring
	Registry    *prometheus.Registry
}

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*Kernel, error) {
	log := logger.Component("routes")

	if cfg.Security.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	} else if err := db.AutoMigrate(&models.KernelOperator{}); err != nil {
		// Operators are needed to log in at all; the security tables may lag behind.
		return nil, fmt.Errorf("auto migrate operators: %w", err)
	}

	k := &Kernel{Schema: services.NewSchemaState(db)}
	if missing := k.Schema.MissingTables(); len(missing) > 0 {
		log.WithField("tables", missing).Warn("kernel tables missing, affected endpoints report migration_needed")
	}

	locator, err := geo.New(cfg.GeoIP.DBPath, cfg.GeoIP.CacheSize)
	if err != nil {
		log.WithError(err).WithField("path", cfg.GeoIP.DBPath).Warn("geoip database unavailable, country enrichment disabled")
	}

	k.Events = services.NewSecurityEventService(db, k.Schema, locator)
	k.Trust = services.NewTrustService(db, k.Schema)
	k.Blocks = services.NewBlockService(db, k.Schema)
	k.Intel = services.NewIntelService(db, k.Schema)
	k.Watchlist = services.NewWatchlistService(db, k.Schema, k.Trust, k.Blocks, k.Intel)
	k.Operators = services.NewOperatorService(db, cfg)

	res, err := k.Operators.Bootstrap(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap operator: %w", err)
	}
	if res.Created {
		entry := log.WithField("username", res.Username)
		if res.GeneratedPassword != "" {
			entry.WithField("password", res.GeneratedPassword).Warn("created development operator with a generated password, change it after first login")
		} else {
			entry.Info("created kernel operator from configuration")
		}
	}

	k.Registry = prometheus.NewRegistry()
	metrics.Register(k.Registry)
	k.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(k.Registry, promhttp.HandlerOpts{})))

	k.Traffic = traffic.NewRing(cfg.Traffic.Capacity, cfg.Traffic.TopN)
	k.Guard = cerberus.New(cfg.Security, cerberus.Deps{
		Events:  k.Events,
		Trust:   k.Trust,
		Blocks:  k.Blocks,
		Locator: locator,
	})

	router.GET("/api/v1/health", handlers.HealthHandler(k.Schema))

	// Engine-level so unmatched paths (traps, scanner paths) pass through the guard too.
	// Health and metrics are registered above and stay outside it.
	router.Use(middleware.ClientIdentity(middleware.IdentityConfig{
		CookieName: cfg.Fingerprint.CookieName,
		Secure:     cfg.IsProduction(),
	}))
	// Capture runs outside the guard so rejected requests still land in the feed.
	router.Use(middleware.TrafficCapture(k.Traffic, traffic.NewPathFilter(cfg.Traffic.Prefixes).Excluding(KernelPrefix)))
	router.Use(k.Guard.Middleware())

	api := router.Group("/api/v1")
	registerKernel(api, k, cfg)

	k.Maintenance, err = services.NewMaintenanceService(k.Schema, k.Guard)
	if err != nil {
		return nil, err
	}
	k.Maintenance.Start()

	return k, nil
}

func registerKernel(api *gin.RouterGroup, k *Kernel, cfg config.Config) {
	authHandler := handlers.NewKernelAuthHandler(k.Operators, k.Events, cfg.IsProduction())
	systemHandler := handlers.NewSystemHandler(k.Trust, k.Blocks)
	securityHandler := handlers.NewKernelSecurityHandler(k.Events, k.Watchlist, k.Trust, k.Blocks, cfg.Security.SuspicionDays)
	trafficHandler := handlers.NewKernelTrafficHandler(k.Traffic, k.Watchlist, cfg.Security.SuspicionDays)

	kernel := api.Group("/kernel")
	kernel.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		IsDevelopment: !cfg.IsProduction(),
		NoStore:       true,
	}))
	kernel.POST("/auth/login", authHandler.Login)
	kernel.GET("/whoami", systemHandler.Whoami)

	protected := kernel.Group("")
	protected.Use(middleware.KernelAuth(k.Operators, k.Events))
	adminOnly := middleware.RequireKernelRole(k.Events, models.RoleKernelAdmin)

	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/me", authHandler.Me)

	security := protected.Group("/security")
	security.GET("/summary", securityHandler.Summary)
	security.GET("/events", securityHandler.Events)
	security.GET("/linux/watchlist", securityHandler.Watchlist)
	security.GET("/trusted", securityHandler.ListTrusted)
	security.POST("/trusted", adminOnly, securityHandler.AddTrusted)
	security.POST("/trusted/self", adminOnly, securityHandler.TrustSelf)
	security.DELETE("/trusted/:id", adminOnly, securityHandler.DeleteTrusted)

	protected.GET("/blocks", securityHandler.ListBlocks)
	protected.POST("/blocks", adminOnly, securityHandler.AddBlock)
	protected.DELETE("/blocks/:ip", adminOnly, securityHandler.DeleteBlock)

	protected.GET("/traffic/summary", trafficHandler.Summary)
	protected.GET("/traffic/recent", trafficHandler.Recent)
}

// Shutdown stops the maintenance scheduler and drains pending event writes.
func (k *Kernel) Shutdown(ctx context.Context) error {
	var errs []error
	if k.Maintenance != nil {
		if err := k.Maintenance.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop maintenance: %w", err))
		}
	}
	done := make(chan struct{})
	go func() {
		k.Events.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain security events: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
