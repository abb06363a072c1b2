package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/regbuddy/internal/api"
	"github.com/ashureev/regbuddy/internal/auth"
	"github.com/ashureev/regbuddy/internal/bridge"
	"github.com/ashureev/regbuddy/internal/chat"
	"github.com/ashureev/regbuddy/internal/completion"
	"github.com/ashureev/regbuddy/internal/config"
	"github.com/ashureev/regbuddy/internal/convlog"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/exercise"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/middleware"
	"github.com/ashureev/regbuddy/internal/notify"
	"github.com/ashureev/regbuddy/internal/rewards"
	"github.com/ashureev/regbuddy/internal/store"
	"github.com/ashureev/regbuddy/internal/sweeper"
	"github.com/ashureev/regbuddy/internal/voice"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, voice bridge and health service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "driver", repo.Dialect())

	bus := notify.NewBus(cfg.SSE.ReplayBuffer, logger)
	defer bus.Close()

	convLog, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer convLog.Close()

	completer := newCompleter(ctx, cfg.Completion)

	transport, err := voice.NewTransport(cfg.Voice, logger)
	if err != nil {
		return err
	}

	// Initialize services.
	sm := bridge.NewSessionManager()

	authSvc := auth.NewService(repo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, auth.WithLogger(logger))
	authSvc.StartProvisioner(ctx)
	unsubscribe := authSvc.Subscribe(func(e auth.Event) {
		if e.Kind == auth.EventSignedOut {
			sm.CloseSession(e.UserID)
		}
	})
	defer unsubscribe()

	profiles := auth.NewProfileLoader(repo, cfg.ProfileRetry.MaxRetries, cfg.ProfileRetry.Delay, logger)
	ledger := rewards.NewLedger(repo, bus, logger)
	registry := chat.NewRegistry(chat.Deps{
		Completer:    completer,
		Store:        repo,
		Notifier:     bus,
		ConvLog:      convLog,
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
	})
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	var minter api.TokenMinter
	if o, ok := transport.(*voice.OpenAI); ok {
		minter = o
	}

	// Initialize handlers.
	base := api.NewHandler(repo, cfg.SSE.MaxRequestBodySize, logger)
	wsHandler := bridge.NewWebSocketHandler(transport, sm, convLog, cfg.Voice.OpeningDelay, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(authSvc))

	api.NewHealthHandler(repo).RegisterRoutes(r)
	api.NewAuthHandler(base, authSvc, profiles, !cfg.IsDevelopment()).RegisterRoutes(r)
	api.NewRewardsHandler(base, ledger).RegisterRoutes(r)
	api.NewChatHandler(base, registry, limiter).RegisterRoutes(r)
	api.NewExerciseHandler(base, exercise.DefaultContent(), ledger).RegisterRoutes(r)
	api.NewVoiceHandler(base, minter).RegisterRoutes(r)
	notify.NewHandler(bus, notify.StreamConfig{
		KeepaliveInterval: cfg.SSE.KeepaliveInterval,
		RetryDelay:        cfg.SSE.RetryDelay,
	}).RegisterRoutes(r)
	r.Get("/ws/voice", wsHandler.ServeHTTP)

	// SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	// Streams only return once their subscription ends.
	srv.RegisterOnShutdown(bus.Close)

	sweeper.Start(ctx, sweeper.Config{Interval: cfg.SweepInterval, IdleTTL: cfg.ChatIdleTTL}, repo, registry, limiter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		g.Go(func() error {
			slog.Info("gRPC health service listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if healthServer != nil {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

// newCompleter builds the completion client. Missing credentials do not stop
// the server; chat sends fail with a notification instead.
func newCompleter(ctx context.Context, cfg config.CompletionConfig) completion.Client {
	c, err := completion.New(ctx, cfg)
	if err == nil {
		return c
	}
	if errors.Is(err, domain.ErrCredentialsMissing) {
		slog.Warn("Completion credentials missing, chat is disabled", "provider", cfg.Provider)
	} else {
		slog.Error("Failed to initialize completion client, chat is disabled", "error", err)
	}
	return completion.Func(func(context.Context, string, []completion.Turn) (string, error) {
		return "", err
	})
}
