// @title Car Price Predictor API
// @version 1.0
// @description Multi-year and batch used-car price predictions backed by an inference oracle.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token from /auth/token.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/OldStager01/car-price-predictor/api"
	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/internal/events"
	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/metrics"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/internal/resilience"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/OldStager01/car-price-predictor/pkg/config"
	"github.com/OldStager01/car-price-predictor/pkg/database"
	"github.com/OldStager01/car-price-predictor/pkg/database/queries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	createClient := flag.String("create-client", "", "create or rotate an API client and print its secret")
	issueToken := flag.String("issue-token", "", "print a bearer token for the given client ID and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)

	authService := auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration, cfg.API.JWTIssuer)

	if *issueToken != "" {
		token, err := authService.GenerateToken(*issueToken)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("Database connection established")
	} else {
		logger.Warn("Database disabled; prediction history and token exchange are unavailable")
	}

	if *migrate || *createClient != "" {
		if db == nil {
			return fmt.Errorf("database is disabled")
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
		defer cancel()

		if *migrate {
			logger.Info("Running database migrations")
			if err := database.NewMigrator(db).Run(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("Migrations completed successfully")
			return nil
		}
		return runCreateClient(ctx, db, *createClient)
	}

	m := metrics.Get()
	bus := events.NewEventBus(cfg.Events.BufferSize)
	defer bus.Close()
	publisher := events.NewPublisher(bus)

	scorer, err := newOracle(cfg.Oracle, publisher, m)
	if err != nil {
		return err
	}
	defer scorer.Close()

	svc := service.NewPredictionService(scorer, publisher, m, service.Config{
		Horizon:      cfg.Predictor.Horizon,
		Workers:      cfg.Predictor.Workers,
		MaxBatchRows: cfg.Predictor.MaxBatchRows,
		BatchTimeout: cfg.Predictor.BatchTimeout,
		PublishRows:  cfg.Events.PublishRows,
	})

	var runStore events.RunStore
	if db != nil {
		runStore = queries.NewPredictionRepository(db.DB)
	}
	runLogger := events.NewEventLogger(runStore, bus.SubscribeAll())
	runLogger.Start()
	defer runLogger.Stop()

	var metricsServer *http.Server
	if cfg.Prometheus.Enabled {
		metricsServer = metrics.StartServer(cfg.Prometheus.Port, m)
	}

	server := api.NewServer(cfg, api.Dependencies{
		Predictions: svc,
		DB:          db,
		Auth:        authService,
		Events:      bus.SubscribeAll(),
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Metrics server shutdown error: %v", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// newOracle builds the configured oracle, guarded by a circuit breaker
// when enabled and observed by m.
func newOracle(cfg config.OracleConfig, publisher *events.Publisher, m *metrics.Metrics) (oracle.Oracle, error) {
	var o oracle.Oracle
	switch cfg.Type {
	case "http":
		o = oracle.NewHTTPOracle(oracle.HTTPOracleConfig{
			Endpoint:   cfg.Endpoint,
			ScorePath:  cfg.ScorePath,
			HealthPath: cfg.HealthPath,
			Timeout:    cfg.Timeout,
		})
		logger.Infof("Using HTTP oracle at %s", cfg.Endpoint)
	case "mock":
		o = oracle.NewMockOracle(nil)
		logger.Warn("Using mock oracle; prices are synthetic")
	default:
		return nil, fmt.Errorf("unknown oracle type %q", cfg.Type)
	}

	o = oracle.WithObserver(o, m.ObserveOracleCall)

	if !cfg.CircuitBreaker.Enabled {
		return o, nil
	}

	m.SetCircuitBreakerState("oracle", int(resilience.StateClosed))
	return oracle.NewResilientOracle(oracle.ResilientOracleConfig{
		Oracle:      o,
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		Timeout:     cfg.CircuitBreaker.Timeout,
		HalfOpenMax: cfg.CircuitBreaker.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Oracle circuit breaker changed state")
			m.SetCircuitBreakerState(name, int(to))
			publisher.OracleStateChanged(from.String(), to.String())
		},
	}), nil
}

func runCreateClient(ctx context.Context, db *database.DB, clientID string) error {
	secret, err := auth.GenerateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return fmt.Errorf("failed to hash secret: %w", err)
	}

	client, err := queries.NewClientRepository(db.DB).Upsert(ctx, clientID, hash)
	if err != nil {
		return fmt.Errorf("failed to store client: %w", err)
	}

	logger.WithField("client_id", client.ClientID).Info("API client secret rotated")
	fmt.Printf("client_id:     %s\nclient_secret: %s\n", client.ClientID, secret)
	return nil
}
