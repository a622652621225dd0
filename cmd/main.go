package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activity-categorizer/internal/ai"
	"activity-categorizer/internal/api"
	"activity-categorizer/internal/cache"
	"activity-categorizer/internal/categorization"
	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
	"activity-categorizer/internal/monitoring"
	"activity-categorizer/internal/repository"
	"activity-categorizer/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := fx.New(
		// Configuration
		fx.Provide(config.NewConfig),

		// Logging
		fx.Provide(NewLogger),

		// Metrics and audit
		fx.Provide(NewMetrics),
		fx.Provide(monitoring.ProvideAuditLogger),

		// Database
		fx.Provide(repository.NewPostgresDB),
		fx.Provide(repository.NewHealthChecker),
		fx.Provide(repository.NewAppCategoryRepository),
		fx.Provide(repository.NewWebsiteCategoryRepository),
		fx.Provide(repository.NewProductivityRuleRepository),
		fx.Provide(repository.NewSubcategoryRepository),
		fx.Provide(repository.NewSuggestionRepository),
		fx.Provide(repository.NewUserRepository),
		fx.Provide(repository.NewActivityRepository),

		// Reference data
		fx.Provide(NewSeed),
		fx.Provide(NewTaxonomy),
		fx.Provide(categorization.NewHeuristics),

		// Cache
		fx.Provide(cache.NewRemoteStore),
		fx.Provide(cache.ProvideRuleCache),
		fx.Provide(NewAppCategoryService),

		// Categorization
		fx.Provide(NewResolver),

		// Batch jobs
		fx.Provide(ai.ProvideClassifier),
		fx.Provide(NewGenerator),
		fx.Provide(NewLearner),
		fx.Provide(NewScheduler),

		// Services
		fx.Provide(NewSuggestionService),
		fx.Provide(NewRuleService),

		// API
		fx.Provide(NewGinEngine),
		fx.Provide(NewCategorizationHandler),
		fx.Provide(NewAppCategoryHandler),
		fx.Provide(NewRuleHandler),
		fx.Provide(NewSuggestionHandler),
		fx.Provide(NewAuditHandler),
		fx.Provide(NewHealthHandler),

		// HTTP Server
		fx.Provide(NewHTTPServer),

		// Lifecycle
		fx.Invoke(services.RegisterScheduler),
		fx.Invoke(RegisterRoutes),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid logging level: %w", err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	if cfg.Logging.Encoding != "" {
		zapCfg.Encoding = cfg.Logging.Encoding
	}

	return zapCfg.Build()
}

func NewMetrics(cfg *config.Config, logger *zap.Logger) *metrics.MetricsCollector {
	return metrics.NewMetricsCollector(&cfg.Metrics, logger)
}

// NewSeed loads the reference lists, the embedded copy unless a file is configured
func NewSeed(cfg *config.Config, logger *zap.Logger) (*categorization.Seed, error) {
	seed, err := categorization.LoadSeed(cfg.Categorization.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load categorization seed: %w", err)
	}
	logger.Info("categorization seed loaded",
		zap.Int("version", seed.Version),
		zap.String("file", cfg.Categorization.SeedFile))
	return seed, nil
}

// NewTaxonomy starts from the seed subcategories and switches to the stored
// definitions once the database answers
func NewTaxonomy(
	lc fx.Lifecycle,
	seed *categorization.Seed,
	subcategories *repository.SubcategoryRepository,
	logger *zap.Logger,
) *models.Taxonomy {
	taxonomy := models.NewTaxonomy(seed.Subcategories)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			defs, err := subcategories.List(ctx)
			if err != nil {
				logger.Warn("failed to load subcategories, using seed definitions", zap.Error(err))
				return nil
			}
			if len(defs) == 0 {
				logger.Info("no stored subcategories, using seed definitions")
				return nil
			}
			taxonomy.Replace(defs)
			logger.Info("subcategories loaded", zap.Int("count", len(defs)))
			return nil
		},
	})

	return taxonomy
}

func NewGinEngine(cfg *config.Config, metricsCollector *metrics.MetricsCollector) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(api.RequestMetrics(metricsCollector))

	// CORS middleware
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	return engine
}

func NewHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
}

func RegisterRoutes(
	cfg *config.Config,
	engine *gin.Engine,
	categorizationHandler *api.CategorizationHandler,
	appCategoryHandler *api.AppCategoryHandler,
	ruleHandler *api.RuleHandler,
	suggestionHandler *api.SuggestionHandler,
	auditHandler *api.AuditHandler,
	healthHandler *api.HealthHandler,
) {
	// Health endpoints
	engine.GET("/health", healthHandler.Health)
	engine.GET("/health/ready", healthHandler.Ready)
	engine.GET("/health/live", healthHandler.Live)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	// API v1 routes
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/categorize", categorizationHandler.Categorize)

		apps := v1.Group("/app-categories")
		apps.GET("", appCategoryHandler.List)
		apps.GET("/app/:appName", appCategoryHandler.GetForApp)
		apps.GET("/subcategories", appCategoryHandler.Subcategories)
		apps.POST("", appCategoryHandler.Set)
		apps.PUT("/:id", appCategoryHandler.Update)
		apps.DELETE("/:id", appCategoryHandler.Delete)
		apps.POST("/cache/clear", appCategoryHandler.ClearCache)

		websites := v1.Group("/website-categories")
		websites.GET("", ruleHandler.ListWebsiteCategories)
		websites.POST("", ruleHandler.CreateWebsiteCategory)
		websites.PUT("/:id", ruleHandler.UpdateWebsiteCategory)
		websites.DELETE("/:id", ruleHandler.DeleteWebsiteCategory)

		rules := v1.Group("/productivity-rules")
		rules.GET("", ruleHandler.ListProductivityRules)
		rules.POST("", ruleHandler.CreateProductivityRule)
		rules.PUT("/:id", ruleHandler.UpdateProductivityRule)
		rules.DELETE("/:id", ruleHandler.DeleteProductivityRule)

		suggestions := v1.Group("/suggestions")
		suggestions.GET("", suggestionHandler.List)
		suggestions.GET("/uncategorized", suggestionHandler.Uncategorized)
		suggestions.POST("/:id/review", suggestionHandler.Review)
		suggestions.POST("/apply-batch", suggestionHandler.ApplyBatch)
		suggestions.POST("/analyze", suggestionHandler.Analyze)
		suggestions.POST("/learn", suggestionHandler.Learn)

		v1.GET("/audit/events", auditHandler.Events)
	}
}

func StartServer(
	cfg *config.Config,
	lc fx.Lifecycle,
	server *http.Server,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting Activity Categorizer Service",
				zap.String("addr", server.Addr))

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Failed to start server", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down Activity Categorizer Service")

			timeout := cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		},
	})

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Received shutdown signal")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	}()
}
