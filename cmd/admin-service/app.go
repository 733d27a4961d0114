package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"mailgate/internal/actions"
	"mailgate/internal/broker"
	"mailgate/internal/config"
	"mailgate/internal/constants"
	"mailgate/internal/evaluator"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/internal/rules"
	"mailgate/internal/stats"
	"mailgate/internal/upstream"
	"mailgate/pkg/bootstrap"
	"mailgate/pkg/health"
	"mailgate/pkg/logging"
	"mailgate/pkg/metrics"
	"mailgate/pkg/middleware"
	"mailgate/pkg/ratelimit"
)

type App struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redisClient *redis.Client
	producer    broker.Producer
	evaluator   *evaluator.Service
	server      *http.Server
	router      *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("admin-service")
	}
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis connection failed, resync replay guard disabled", "error", err)
	} else {
		a.redisClient = redisClient
	}

	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.AdminIdentityMiddleware())

	if a.config.Admin.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.config.Admin.RateLimit.RPS,
			Burst:           a.config.Admin.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Admin.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Admin.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.Middleware(rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	var ruleEventProducer *rules.RuleEventProducer
	if len(a.config.Broker.Kafka.Brokers) > 0 && a.config.Broker.Kafka.RuleUpdateTopic != "" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create rule event producer, rule change events will be disabled", "error", err)
		} else {
			producer.SetServiceName("admin-service")
			a.producer = producer
			ruleEventProducer = rules.NewRuleEventProducer(producer, a.config.Broker.Kafka.RuleUpdateTopic)
			a.logger.InfowCtx(ctx, "Rule event producer initialized", "topic", a.config.Broker.Kafka.RuleUpdateTopic)
		}
	}

	opts := []rules.ServiceOption{
		rules.WithAudit(rules.NewAuditLogger(a.db)),
	}
	if ruleEventProducer != nil {
		opts = append(opts, rules.WithRuleEvents(ruleEventProducer))
	}

	rulesService := rules.NewService(rules.NewRepository(a.db), opts...)
	rulesHandler := rules.NewHandler(rulesService, a.logger)

	evalService, err := evaluator.NewService(evaluator.NewRepository(a.db), a.config.Evaluator, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create evaluator service: %w", err)
	}
	if err := evalService.ReloadRules(ctx); err != nil {
		a.logger.WarnwCtx(ctx, "Failed to load initial rules", "error", err)
	}
	a.evaluator = evalService

	ledgerService := ledger.NewService(ledger.NewRepository(a.db), a.logger)
	ledgerHandler := ledger.NewHandler(ledgerService, a.logger)

	statsService, err := stats.NewService(stats.NewRepository(a.db), a.config.Stats, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create stats service: %w", err)
	}
	statsHandler := stats.NewHandler(statsService, a.logger)

	upstreamClient := upstream.NewClient(a.config.Upstream, a.config.CircuitBreaker, a.logger)

	guardTTL := time.Duration(a.config.Actions.ResyncGuardSeconds) * time.Second
	if guardTTL <= 0 {
		guardTTL = constants.ResyncGuardTTL
	}
	guard := actions.NewResyncGuard(a.redisClient, guardTTL, a.logger)

	dispatcher := actions.NewDispatcher(
		upstreamClient,
		ledgerService,
		evalService,
		actions.NewWatchRepository(a.db),
		guard,
		time.Duration(a.config.Actions.CooldownSeconds)*time.Second,
		a.config.Actions.ResyncWindow,
		a.logger,
	)
	actionsHandler := actions.NewHandler(dispatcher, a.logger)

	admin := router.Group("/admin")
	rulesHandler.RegisterRoutes(admin)
	ledgerHandler.RegisterRoutes(admin)
	statsHandler.RegisterRoutes(admin)
	actionsHandler.RegisterRoutes(admin)

	metrics.RegisterAdminMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.evaluator.StartReloader(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "admin-service")
	a.logger.InfowCtx(shutdownCtx, "Shutting down server")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(timeoutCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(shutdownCtx, "Server exited successfully")
	return nil
}
