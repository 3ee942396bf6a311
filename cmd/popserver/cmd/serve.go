package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/popfoundry/popserver/internal/api"
	"github.com/popfoundry/popserver/internal/config"
	"github.com/popfoundry/popserver/internal/metrics"
	"github.com/popfoundry/popserver/internal/storage/postgres"
	"github.com/popfoundry/popserver/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the POP ingestion HTTP server",
	Long: `Start the HTTP server and begin accepting proof-of-play submissions.

The server will:
- Load configuration from environment variables
- Ensure the tenant and play-event tables exist
- Register the bootstrap API key tenant if POP_BOOTSTRAP_API_KEY is set
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  popserver serve

  # Start on a specific host and port
  popserver serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  popserver serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting POP ingestion server")

	metrics.Init(Version, GitCommit, BuildDate)

	tracingCtx, tracingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	shutdownTracing, err := telemetry.InitTracing(tracingCtx, cfg.Tracing, Version)
	tracingCancel()
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	// Schema bootstrap is fallible; a broken database aborts startup here
	// rather than panicking somewhere in the write path later.
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = postgres.EnsureSchema(schemaCtx, pool)
	schemaCancel()
	if err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}

	if err := bootstrapTenant(cfg, pool, logger); err != nil {
		logger.Error().Err(err).Msg("tenant bootstrap failed")
	}

	// Publish pool statistics every 15 seconds.
	dbCollector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	handler, err := api.NewRouter(cfg, logger, pool)
	if err != nil {
		return fmt.Errorf("router init failed: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       60 * time.Second, // large batches can take a while to upload
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	// Override logging from flags if provided
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}

// bootstrapTenant registers the configured bootstrap API key, if any. The
// insert is idempotent, so restarting the server with the same key is
// harmless.
func bootstrapTenant(cfg config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
	key := cfg.Ingest.BootstrapAPIKey
	if key == "" {
		return nil
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repo.Tenants().Register(ctx, key); err != nil {
		return fmt.Errorf("register bootstrap tenant: %w", err)
	}

	logger.Info().Msg("bootstrapped tenant api key")
	return nil
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
