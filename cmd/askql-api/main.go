package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/askql/askql/internal/api"
	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/history"
	historypostgres "github.com/askql/askql/internal/history/postgres"
	"github.com/askql/askql/internal/maintenance"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/pipeline"
	querypostgres "github.com/askql/askql/internal/query/postgres"
	"github.com/askql/askql/internal/schema"
	"github.com/askql/askql/internal/storage"
	s3store "github.com/askql/askql/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := querypostgres.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open rental database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	inspector := schema.NewInspector(db)

	var objectStore storage.ObjectStore
	needObjectStore := cfg.History.Enabled || cfg.Schema.Source == config.SchemaSourceObject
	if needObjectStore {
		objectStore, err = s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// The DDL context is loaded once at startup. Without it the generator
	// has nothing to ground its SQL on, so a load failure is fatal.
	provider, err := schemaProvider(cfg, inspector, objectStore)
	if err != nil {
		logger.Error("failed to configure schema provider", slog.Any("error", err))
		os.Exit(1)
	}
	schemaCtx, err := provider.Load(context.Background())
	if err != nil {
		logger.Error("failed to load schema context", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info(
		"schema context loaded",
		slog.String("source", schemaCtx.Source()),
		slog.Int("ddl_bytes", len(schemaCtx.DDL())),
	)

	generator, err := buildGenerator(cfg)
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	executor := querypostgres.NewExecutor(db)

	var recorder history.Recorder
	var historyReader api.HistoryReader
	var archive api.ArchiveRunner
	var maintenanceService *maintenance.Service
	if cfg.History.Enabled {
		repo := historypostgres.NewRepository(db)
		recorder = repo
		historyReader = repo

		maintenanceService = &maintenance.Service{
			History:     repo,
			ObjectStore: objectStore,
			Config: maintenance.Config{
				ArchiveInterval: cfg.History.ArchiveInterval,
				RetentionAge:    cfg.History.Retention,
				ArchivePrefix:   cfg.History.ArchivePrefix,
			},
			Logger: logger,
		}
		archive = maintenanceService
	}

	pipe := pipeline.New(generator, executor, schemaCtx, recorder, logger)

	deps := api.Dependencies{
		Logger:            logger,
		Pipeline:          pipe,
		Inspector:         inspector,
		History:           historyReader,
		HistoryLimit:      cfg.History.ListLimit,
		Archive:           archive,
		DependencyTimeout: time.Second,
		Readiness: api.CombineReadinessChecks(
			inspector.HealthCheck,
			api.CheckDatabaseDSN(cfg),
			api.CheckSchemaLoaded(schemaCtx),
		),
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if maintenanceService != nil {
		go func() {
			if err := maintenanceService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("history maintenance stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func schemaProvider(cfg config.Config, inspector *schema.Inspector, store storage.ObjectStore) (schema.Provider, error) {
	switch cfg.Schema.Source {
	case config.SchemaSourceFile:
		return schema.FileProvider{Path: cfg.Schema.FilePath}, nil
	case config.SchemaSourceObject:
		return schema.ObjectProvider{Store: store, Key: cfg.Schema.ObjectKey}, nil
	case config.SchemaSourceDatabase:
		return schema.DatabaseProvider{Inspector: inspector}, nil
	default:
		return nil, errors.New("unsupported schema source")
	}
}

func buildGenerator(cfg config.Config) (nl2sql.Generator, error) {
	switch cfg.AI.Provider {
	case config.AIProviderFunction:
		return nl2sql.NewFunctionGenerator(nl2sql.FunctionConfig{
			URL:         cfg.AI.FunctionURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		})
	case config.AIProviderOpenAI:
		return nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		})
	default:
		return nil, errors.New("unsupported ai provider")
	}
}
