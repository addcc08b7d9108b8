package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/triage-ai/inspection/internal/api"
	"github.com/triage-ai/inspection/internal/auth"
	"github.com/triage-ai/inspection/internal/chread"
	"github.com/triage-ai/inspection/internal/config"
	"github.com/triage-ai/inspection/internal/lifecycle"
	"github.com/triage-ai/inspection/internal/server"
	"github.com/triage-ai/inspection/internal/storage"
	"github.com/triage-ai/inspection/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP inspection API and gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, a.logger)
		},
	}

	f := cmd.Flags()
	f.String("http-port", "8000", "HTTP listen port")
	f.String("grpc-port", "9090", "gRPC health listen port (empty disables)")
	f.Int("max-concurrent", 0, "concurrent inspections (0 = GOMAXPROCS)")
	f.String("nlp-endpoint", "", "Presidio-compatible analyzer URL (empty = in-process recognizers)")
	f.Duration("nlp-timeout", 2*time.Second, "analyzer request timeout")
	f.String("clickhouse-dsn", "", "ClickHouse DSN for inspection events")
	f.String("postgres-dsn", "", "Postgres DSN for caller API keys")
	f.StringSlice("api-keys", nil, "static bearer API keys")
	f.Duration("auth-cache-ttl", 30*time.Second, "API key cache TTL")
	f.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	f.Int64("max-prompt-bytes", api.DefaultMaxPromptBytes, "maximum /inspect body size")
	return cmd
}

// runServe starts the listeners, then warms up. Until warmup publishes the
// pipeline /health/ready reports degraded and every protected route answers
// 503; a failed warmup stops the process.
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting inspection server",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	health := server.NewHealthServer()
	manager := lifecycle.New(lifecycle.Config{
		PolicyPath:    cfg.ConfigPath,
		NewAnalyzer:   lifecycle.RemoteAnalyzer(cfg.NLPEndpoint, cfg.NLPTimeout),
		Logger:        logger,
		OnStateChange: server.HealthHook(health),
	})

	// Storage: ClickHouse or LogWriter fallback
	writer := openWriter(ctx, cfg, logger)
	defer writer.Close()

	deps := &api.Dependencies{
		Readiness:      manager,
		Logger:         logger,
		MaxPromptBytes: cfg.MaxPromptBytes,
	}

	if cfg.ClickHouseDSN != "" {
		reader, err := chread.NewReader(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = reader.Close() }()
			deps.Reader = reader
			logger.Info("clickhouse reader connected")
		}
	}

	authenticator, closeAuth, err := openAuthenticator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAuth()
	if authenticator != nil {
		deps.Auth = authenticator
	} else {
		logger.Warn("no INSPECTION_API_KEYS or INSPECTION_POSTGRES_DSN configured, /inspect is unauthenticated")
	}

	deps.Inspector = server.NewInspectionServer(manager, server.Options{
		MaxConcurrent: int64(cfg.MaxConcurrent),
		Writer:        writer,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	grpcServer := server.NewGRPCServer(health)
	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		if grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		g.Go(func() error {
			logger.Info("grpc health server listening", zap.String("addr", grpcLis.Addr().String()))
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := manager.Run(gctx); err != nil {
			return &ExitError{Code: ExitConfig, Err: fmt.Errorf("warmup: %w", err)}
		}
		return nil
	})

	// Block until shutdown signal or a fatal error, then drain.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("inspection server stopped")
	return err
}

func openWriter(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.EventWriter {
	if cfg.ClickHouseDSN == "" {
		logger.Info("no INSPECTION_CLICKHOUSE_DSN set, using log writer")
		return storage.NewLogWriter(logger)
	}
	chWriter, err := storage.NewClickHouseWriter(ctx, cfg.ClickHouseDSN, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

// openAuthenticator prefers the Postgres caller store, then static keys.
// It returns a nil Authenticator when neither is configured.
func openAuthenticator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.Authenticator, func(), error) {
	noop := func() {}
	if cfg.PostgresDSN != "" {
		db, err := store.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		s := store.NewStore(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("postgres connected")
		return auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			Store:    s,
			CacheTTL: cfg.AuthCacheTTL,
			Logger:   logger,
		}), func() { _ = db.Close() }, nil
	}
	if len(cfg.APIKeys) > 0 {
		return auth.NewStaticAuthenticator(cfg.APIKeys), noop, nil
	}
	return nil, noop, nil
}
