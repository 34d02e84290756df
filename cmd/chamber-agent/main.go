package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chamber-agent/internal/api"
	"chamber-agent/internal/config"
	"chamber-agent/internal/domain"
	"chamber-agent/internal/handler"
	"chamber-agent/internal/middleware"
	"chamber-agent/internal/notify"
	"chamber-agent/internal/observability"
	"chamber-agent/internal/service"
	"chamber-agent/internal/store"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting chamber agent")

	st, db := openStore(cfg)
	if db != nil {
		defer db.Close()
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	notifier, amqpNotifier := buildNotifier(cfg)
	if amqpNotifier != nil {
		defer amqpNotifier.Close()
	}

	client := api.NewClient(cfg.APIBaseURL)

	manager := service.NewSessionManager(client, st)
	tracker := service.NewExperimentTracker(client, notifier, clockwork.NewRealClock())
	manager.SetTracker(tracker)
	client.SetAuthProvider(manager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := manager.Initialize(initCtx); err != nil {
		slog.Error("session initialization failed", slog.String("error", err.Error()))
	}
	initCancel()

	if manager.State() != service.StateAuthenticated {
		loginWithConfiguredCredentials(ctx, manager, cfg)
	}

	statusHandler := handler.NewStatusHandler(manager, tracker)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, amqpNotifier))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", statusHandler.Status)
	r.Get("/experiments", statusHandler.Experiments)

	srv := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("admin server listening", slog.String("port", cfg.AdminPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down agent")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Session stays persisted so the next start resumes without a login.
	tracker.Stop()
	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("agent stopped gracefully")
}

// openStore builds the configured state store. The *sql.DB is returned for
// the readiness check and is nil for the file backend.
func openStore(cfg *config.Config) (store.Store, *sql.DB) {
	if cfg.StateBackend == "postgres" {
		db, err := config.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}

		migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Migrate(migrateCtx, db); err != nil {
			slog.Error("state table migration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		st, err := store.NewPostgresStore(db)
		if err != nil {
			slog.Error("failed to prepare state store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("using postgres state store")
		return st, db
	}

	st, err := store.NewFileStore(cfg.StateFile, cfg.StateSecret)
	if err != nil {
		slog.Error("failed to open state file", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("using file state store", slog.String("path", cfg.StateFile))
	return st, nil
}

// buildNotifier composes the notification sinks. The log sink is always
// present; RabbitMQ is added when configured.
func buildNotifier(cfg *config.Config) (notify.Notifier, *notify.AMQPNotifier) {
	logSink := notify.NewLogNotifier()
	if cfg.RabbitMQURL == "" {
		return logSink, nil
	}

	amqpSink, err := notify.NewAMQPNotifier(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq, notifications degrade to logs",
			slog.String("error", err.Error()))
		return logSink, nil
	}

	slog.Info("connected to rabbitmq")
	return notify.NewMulti(logSink, amqpSink), amqpSink
}

// loginWithConfiguredCredentials performs the initial login when no
// persisted session survived. Without credentials the agent stays up and
// reports unauthenticated on /status.
func loginWithConfiguredCredentials(ctx context.Context, manager *service.SessionManager, cfg *config.Config) {
	if cfg.AgentUsername == "" || cfg.AgentPassword == "" {
		slog.Warn("no session and no AGENT_USERNAME/AGENT_PASSWORD configured")
		return
	}

	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := manager.Login(loginCtx, cfg.AgentUsername, cfg.AgentPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			slog.Error("configured agent credentials were rejected")
			os.Exit(1)
		}
		slog.Warn("initial login failed, will stay unauthenticated",
			slog.String("error", err.Error()))
		return
	}

	slog.Info("logged in", slog.String("username", cfg.AgentUsername))
}
