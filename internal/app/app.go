package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rosterkit/rosterkit/internal/config"
	"github.com/rosterkit/rosterkit/internal/db"
	"github.com/rosterkit/rosterkit/internal/invitations"
	"github.com/rosterkit/rosterkit/internal/notify"
	"github.com/rosterkit/rosterkit/internal/telemetry"
)

// App holds the application state.
type App struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Router http.Handler

	server        *http.Server
	publisher     *notify.EmailPublisher
	traceShutdown func(context.Context) error
}

// New creates and initializes a new application instance.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel)

	log.Info().Msg("Initializing RosterKit application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	traceShutdown, err := telemetry.InitTracing(ctx, "rosterkit", cfg.OTELEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, cfg.DBDSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	var (
		notifier  invitations.Notifier
		publisher *notify.EmailPublisher
	)
	if cfg.NATSURL != "" {
		publisher, err = notify.NewEmailPublisher(cfg.NATSURL, cfg.NATSSubject, cfg.BaseURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize email publisher: %w", err)
		}
		notifier = publisher
		log.Info().Str("subject", cfg.NATSSubject).Msg("Email delivery via NATS")
	} else {
		notifier = &notify.LogNotifier{BaseURL: cfg.BaseURL}
		log.Warn().Msg("No NATS URL configured; invitation emails will be logged only")
	}

	store := invitations.NewPostgresStore(pool)
	svc := invitations.NewService(store, notifier)

	router := NewRouter(pool, svc, cfg)

	app := &App{
		Config:        cfg,
		DB:            pool,
		Router:        otelhttp.NewHandler(router, "rosterkit"),
		publisher:     publisher,
		traceShutdown: traceShutdown,
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// Start starts the HTTP server and blocks until it exits.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown gracefully stops the server and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")

	var firstErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	if a.publisher != nil {
		a.publisher.Close()
	}

	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}

	return firstErr
}

// setupLogger configures the global logger.
func setupLogger(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
