// Package app wires repositories, services and HTTP handlers for the
// duck-explore server and runs it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"duck-explore/internal/api"
	"duck-explore/internal/config"
	"duck-explore/internal/db/repository"
	"duck-explore/internal/engine"
	"duck-explore/internal/middleware"
	"duck-explore/internal/service/explore"
	"duck-explore/internal/service/query"
	"duck-explore/internal/service/retention"
	"duck-explore/internal/ui"
)

const shutdownTimeout = 10 * time.Second

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg     *config.Config
	DuckDB  *engine.DuckDB
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// Services groups the services the handlers and the run loop need.
type Services struct {
	Query     *query.QueryService
	Explore   *explore.Service
	Retention *retention.Scheduler
}

// App is the fully wired application.
type App struct {
	Services Services
	Handler  http.Handler

	cfg    *config.Config
	logger *slog.Logger
}

// New wires repositories, services and the router from deps. ctx bounds
// background helpers such as the rate limiter sweep.
func New(ctx context.Context, deps Deps) (*App, error) {
	if deps.Cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.DuckDB == nil || deps.WriteDB == nil || deps.ReadDB == nil {
		return nil, errors.New("app: database handles are required")
	}
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// === Repositories (write-pool) ===
	jobRepo := repository.NewQueryJobRepo(deps.WriteDB)
	sampleRepo := repository.NewDatasetSampleRepo(deps.WriteDB)

	// === Repositories (read-pool) ===
	sampleReader := repository.NewDatasetSampleRepo(deps.ReadDB)

	// === Services ===
	querySvc := query.NewQueryService(deps.DuckDB, jobRepo, sampleRepo, logger.With("component", "query"), query.Options{
		MaxConcurrency:  cfg.QueryMaxConcurrency,
		MaxAttempts:     cfg.QueryMaxAttempts,
		RunRowLimit:     cfg.RunRowLimit,
		PreviewRowLimit: cfg.PreviewRowLimit,
		SampleRows:      cfg.SampleRows,
	})
	exploreSvc := explore.NewService(querySvc, sampleReader, cfg.ProjectID, cfg.Locale, logger.With("component", "explore"))
	retentionSvc := retention.NewScheduler(jobRepo, sampleRepo, retention.Policy{
		Schedule:  cfg.RetentionSchedule,
		JobTTL:    cfg.JobTTL,
		SampleTTL: cfg.SampleTTL,
	}, logger.With("component", "retention"))

	// === Handlers ===
	apiHandler := api.NewHandler(querySvc, exploreSvc, logger.With("component", "api"))
	uiHandler := ui.NewHandler(exploreSvc, querySvc, logger.With("component", "ui"), cfg.IsProduction())

	return &App{
		Services: Services{
			Query:     querySvc,
			Explore:   exploreSvc,
			Retention: retentionSvc,
		},
		Handler: NewRouter(ctx, cfg, logger, apiHandler, uiHandler),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// NewRouter builds the HTTP router with the shared middleware stack.
func NewRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger, apiHandler *api.Handler, uiHandler *ui.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger, "/healthz", "/ui/explore/status"))
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimiter(ctx, middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/explore", http.StatusFound)
	})
	api.MountRoutes(r, apiHandler, cfg.CORSAllowedOrigins)
	r.Route("/ui", func(r chi.Router) {
		ui.MountRoutes(r, uiHandler)
	})
	return r
}

// Run serves HTTP and runs the retention scheduler until ctx is canceled,
// then shuts both down and stops the query workers.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := a.Services.Retention.Start(); err != nil {
		return fmt.Errorf("start retention: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		a.Services.Retention.Stop()
		if err := a.Services.Query.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop query workers: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
