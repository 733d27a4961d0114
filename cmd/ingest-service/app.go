package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mailgate/internal/broker"
	"mailgate/internal/config"
	"mailgate/internal/constants"
	"mailgate/internal/evaluator"
	"mailgate/internal/ingest"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/pkg/bootstrap"
	"mailgate/pkg/health"
	"mailgate/pkg/logging"
	"mailgate/pkg/metrics"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	evaluator   *evaluator.Service
	service     *ingest.Service
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker("ingest-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	metrics.RegisterIngestMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *App) initService(ctx context.Context) error {
	evalService, err := evaluator.NewService(evaluator.NewRepository(a.db), a.Config.Evaluator, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create evaluator service: %w", err)
	}

	if err := evalService.ReloadRules(ctx); err != nil {
		initCtx := logging.WithServiceName(ctx, "ingest-service")
		a.Logger.WarnwCtx(initCtx, "Failed to load initial rules",
			"error", err,
		)
	}
	a.evaluator = evalService

	ledgerService := ledger.NewService(ledger.NewRepository(a.db), a.Logger)
	a.service = ingest.NewService(evalService, ledgerService, a.Logger)
	return nil
}

func (a *App) initHTTPServer() error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	ruleUpdateTopic := a.Config.Broker.Kafka.RuleUpdateTopic
	if ruleUpdateTopic != "" {
		ruleConsumer, err := broker.NewConsumer(a.Config.Broker, a.Logger)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to create rule event consumer, event-driven reload disabled",
				"error", err,
			)
		} else {
			ruleConsumer.SetServiceName("ingest-service")
			defer ruleConsumer.Close()
			ruleEventHandler := evaluator.NewHandler(a.evaluator, a.Logger)

			g.Go(func() error {
				a.Logger.InfowCtx(gCtx, "Starting rule update event consumer",
					"topic", ruleUpdateTopic,
				)
				return ruleConsumer.Consume(gCtx, ruleUpdateTopic, ruleEventHandler.HandleRuleChangeEvent)
			})
		}
	}

	g.Go(func() error {
		return a.evaluator.StartReloader(gCtx)
	})

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.MailMessagesTopic
	}
	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Starting mail message consumer",
			"topic", inputTopic,
		)
		return a.Consumer.Consume(gCtx, inputTopic, a.service.HandleMessage)
	})

	err := g.Wait()

	if shutdownErr := a.shutdown(context.Background()); shutdownErr != nil {
		if err == nil || err == context.Canceled {
			err = shutdownErr
		}
	}

	return err
}

func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "ingest-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingest service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			timeoutCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(timeoutCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
