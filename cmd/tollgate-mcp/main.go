package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tollgate/tollgate/internal/api"
	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/nl2sql"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/storage"
	s3store "github.com/tollgate/tollgate/internal/storage/s3"
	"github.com/tollgate/tollgate/internal/toolserver"
	"github.com/tollgate/tollgate/internal/warehouse"
	"github.com/tollgate/tollgate/internal/warehouse/databricks"
	"github.com/tollgate/tollgate/internal/warehouse/lake"
	"github.com/tollgate/tollgate/internal/warehouse/postgres"
	"github.com/tollgate/tollgate/internal/warehouse/snowflake"
)

const version = "0.3.0"

func main() {
	fs := flag.NewFlagSet("tollgate-mcp", flag.ExitOnError)
	verbose := fs.Bool("v", false, "enable debug logging")
	transport := fs.String("transport", "", "MCP transport, stdio or http (overrides TOLLGATE_MCP_TRANSPORT)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.LoadFromEnv("tollgate-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if *verbose {
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	if *transport != "" {
		cfg.MCP.Transport = *transport
	}
	if cfg.MCP.Transport != "stdio" && cfg.MCP.Transport != "http" {
		slog.Error("invalid transport", slog.String("transport", cfg.MCP.Transport))
		os.Exit(1)
	}

	// Stdout belongs to the protocol when serving stdio.
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := objectStoreFromConfig(ctx, cfg, logger)
	registry, closers, err := buildWarehouses(cfg, store)
	if err != nil {
		logger.Error("failed to initialize warehouses", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		for _, close := range closers {
			_ = close()
		}
	}()

	var translator nl2sql.Translator
	if cfg.GatewayConfigured() {
		translator, err = nl2sql.NewGatewayTranslator(nl2sql.GatewayConfig{
			URL:            cfg.Gateway.URL,
			Model:          cfg.Gateway.Model,
			APIKey:         cfg.Gateway.APIKey,
			Timeout:        cfg.Gateway.Timeout,
			MaxTokens:      cfg.Gateway.MaxTokens,
			DefaultCatalog: cfg.Gateway.DefaultCatalog,
			DefaultSchema:  cfg.Gateway.DefaultSchema,
			RowLimit:       cfg.Warehouse.RowLimit,
		})
		if err != nil {
			logger.Error("failed to initialize nl2sql translator", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("nlp gateway not configured, translation tools will report an error",
			slog.String("hint", "set NLP_GATEWAY_URL and NLP_MODEL_NAME"))
	}

	var exporter *lake.Exporter
	if store != nil {
		exporter, err = lake.NewExporter(store)
		if err != nil {
			logger.Error("failed to initialize exporter", slog.Any("error", err))
			os.Exit(1)
		}
	}

	tools := toolserver.New(toolserver.Dependencies{
		Logger:          logger,
		Translator:      translator,
		Warehouses:      registry,
		Exporter:        exporter,
		DefaultRowLimit: cfg.Warehouse.RowLimit,
		QueryTimeout:    cfg.Warehouse.QueryTimeout,
		Version:         version,
	})

	deps := api.Dependencies{
		Logger:     logger,
		Warehouses: registry,
		Translator: translator,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouses(registry),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.MCP.Transport == "http" {
		deps.MCPHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return tools.MCP()
		}, nil)
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting ops server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", slog.Any("error", err))
			stop()
		}
	}()

	if cfg.MCP.Transport == "stdio" {
		logger.Info("serving mcp on stdio",
			slog.String("version", version),
			slog.Any("warehouses", registry.Names()))
		if err := tools.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mcp server failed", slog.Any("error", err))
		}
		stop()
	} else {
		logger.Info("serving mcp over http",
			slog.String("version", version),
			slog.String("endpoint", "/mcp"),
			slog.Any("warehouses", registry.Names()))
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down ops server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// buildWarehouses constructs every backend whose settings are present
// and returns close functions for the ones holding connections.
func buildWarehouses(cfg config.Config, store storage.ObjectStore) (*warehouse.Registry, []func() error, error) {
	registry := warehouse.NewRegistry(cfg.Warehouse.Default)
	var closers []func() error

	if cfg.DatabricksConfigured() {
		engine, err := databricks.New(databricks.Config{
			Host:         cfg.Databricks.Host,
			Token:        cfg.Databricks.Token,
			WarehouseID:  cfg.Databricks.WarehouseID,
			WaitTimeout:  cfg.Databricks.WaitTimeout,
			PollInterval: cfg.Databricks.PollInterval,
			PollDeadline: cfg.Databricks.PollDeadline,
		})
		if err != nil {
			return nil, closers, err
		}
		registry.Register(engine)
	}

	if cfg.SnowflakeConfigured() {
		engine, err := snowflake.New(snowflake.Config{
			Account:   cfg.Snowflake.Account,
			User:      cfg.Snowflake.User,
			Password:  cfg.Snowflake.Password,
			Database:  cfg.Snowflake.Database,
			Schema:    cfg.Snowflake.Schema,
			Warehouse: cfg.Snowflake.Warehouse,
		})
		if err != nil {
			return nil, closers, err
		}
		registry.Register(engine)
		closers = append(closers, engine.Close)
	}

	if cfg.PostgresConfigured() {
		engine, err := postgres.New(postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, closers, err
		}
		registry.Register(engine)
		closers = append(closers, engine.Close)
	}

	if store != nil {
		engine, err := lake.New(store)
		if err != nil {
			return nil, closers, err
		}
		registry.Register(engine)
	}

	return registry, closers, nil
}

func objectStoreFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) storage.ObjectStore {
	if !cfg.LakeConfigured() {
		return nil
	}
	store, err := s3store.New(ctx, s3store.Config{
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
		return nil
	}
	return store
}
