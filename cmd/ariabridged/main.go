package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tribhuwan-kumar/silly/internal/api"
	"github.com/tribhuwan-kumar/silly/internal/auth"
	"github.com/tribhuwan-kumar/silly/internal/bridge"
	"github.com/tribhuwan-kumar/silly/internal/config"
	"github.com/tribhuwan-kumar/silly/internal/db"
	"github.com/tribhuwan-kumar/silly/internal/history"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "ariabridged",
		Short: "ariabridged — bridges a browser-facing API to an aria2 daemon",
		Long: `ariabridged owns the single WebSocket JSON-RPC connection to an aria2
daemon, correlates and authenticates outbound calls, fans daemon
notifications out to subscribers, and keeps a relational download
history in sync with the daemon's view of the world.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", config.EnvOrDefault("SILLY_HTTP_ADDR", ":8000"), "HTTP API and WebSocket listen address")
	root.PersistentFlags().StringVar(&cfg.Aria2EndpointURL, "aria2-url", config.EnvOrDefault("SILLY_ARIA2_URL", "ws://127.0.0.1:6800/jsonrpc"), "aria2 daemon JSON-RPC WebSocket URL")
	root.PersistentFlags().StringVar(&cfg.Aria2Secret, "aria2-secret", config.EnvOrDefault("SILLY_ARIA2_SECRET", ""), "aria2 RPC secret token (empty = disabled, dev only)")
	root.PersistentFlags().StringVar(&cfg.Aria2Version, "aria2-version", config.EnvOrDefault("SILLY_ARIA2_VERSION", "unknown"), "aria2 daemon version reported on the status socket")
	root.PersistentFlags().StringVar(&cfg.DBDriver, "db-driver", config.EnvOrDefault("SILLY_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.DBDSN, "db-dsn", config.EnvOrDefault("SILLY_DB_DSN", "./silly.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.JWTPublicKeyPath, "jwt-public-key", config.EnvOrDefault("SILLY_JWT_PUBLIC_KEY", "./jwt_public.pem"), "PEM-encoded RSA public key used to verify access tokens")
	root.PersistentFlags().StringVar(&cfg.JWTIssuer, "jwt-issuer", config.EnvOrDefault("SILLY_JWT_ISSUER", "silly"), "Expected issuer claim on access tokens")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", config.EnvOrDefault("SILLY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ariabridged %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting ariabridged",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("aria2_url", cfg.Aria2EndpointURL),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("log_level", cfg.LogLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	historyStore := history.NewStore(gormDB)
	if err := historyStore.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}

	// --- 2. Auth ---
	jwtManager, err := auth.NewJWTManagerFromPublicKeyFile(cfg.JWTPublicKeyPath, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	// --- 3. Bridge ---
	registry := prometheus.NewRegistry()
	br := bridge.New(bridge.Config{
		EndpointURL: cfg.Aria2EndpointURL,
		Secret:      cfg.Aria2Secret,
		Version:     cfg.Aria2Version,
		Logger:      logger,
		Registerer:  registry,
	})
	go br.Run(ctx)

	// --- 4. History Projector + per-user history hub ---
	historyHub := api.NewHistoryHub()
	projector := history.NewProjector(historyStore, br, logger, historyHub.Publish)
	if err := projector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start history projector: %w", err)
	}
	defer func() {
		if err := projector.Stop(); err != nil {
			logger.Warn("history projector shutdown error", zap.Error(err))
		}
	}()

	// --- 5. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Bridge:     br,
		Store:      historyStore,
		HistoryHub: historyHub,
		JWTManager: jwtManager,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down ariabridged")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("ariabridged stopped")
	return nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
