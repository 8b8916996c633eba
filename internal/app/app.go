// Package app provides application initialization and lifecycle
// management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/expensio/expensio/internal/authz"
	"github.com/expensio/expensio/internal/config"
	"github.com/expensio/expensio/internal/identity"
	"github.com/expensio/expensio/internal/identity/jwt"
	identitypostgres "github.com/expensio/expensio/internal/identity/postgres"
	"github.com/expensio/expensio/internal/notifications"
	"github.com/expensio/expensio/internal/notifications/email"
	notificationspostgres "github.com/expensio/expensio/internal/notifications/postgres"
	"github.com/expensio/expensio/internal/pkg/ctxlog"
	"github.com/expensio/expensio/internal/pkg/httputil"
	"github.com/expensio/expensio/internal/pkg/metrics"
	"github.com/expensio/expensio/internal/pkg/postgres"
	"github.com/expensio/expensio/internal/reimbursements"
	reimbursementspostgres "github.com/expensio/expensio/internal/reimbursements/postgres"
	"github.com/expensio/expensio/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config             *config.Config
	logger             *slog.Logger
	db                 *pgxpool.Pool
	server             *http.Server
	metricsServer      *http.Server
	backgroundCancel   context.CancelFunc
	notificationWorker *notifications.Worker
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		backgroundCancel: backgroundCancel,
	}

	go app.collectDBMetrics(backgroundCtx)

	router, notificationWorker, err := app.setupRouter(backgroundCtx)
	if err != nil {
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.notificationWorker = notificationWorker

	app.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics server on a separate port, never exposed publicly.
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              cfg.Server.MetricsAddr(),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and blocks until the API server stops.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server", "addr", a.server.Addr)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.backgroundCancel()

	if a.notificationWorker != nil {
		a.notificationWorker.Stop()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler, used by tests.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// NotificationWorker returns the worker instance, or nil when
// notifications are disabled. Used by tests.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, *notifications.Worker, error) {
	r := chi.NewRouter()

	// Metrics middleware first so it measures full request time.
	r.Use(httputil.MetricsMiddleware)

	// CORS before everything else to answer preflight requests.
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	identityRepo := identitypostgres.NewRepository(a.db)
	identityService := identity.NewService(identityRepo)
	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           a.config.Auth.JWTSecret,
		AccessTokenDuration: a.config.Auth.AccessTokenDuration,
	})
	identityHandler := identity.NewHandler(identityService, jwtAuth, identity.CookieSettings{
		Secure: a.config.Auth.CookieSecure,
		Domain: a.config.Auth.CookieDomain,
	})

	var notifier reimbursements.ResolutionNotifier
	var notificationWorker *notifications.Worker

	slog.Info("notifications configured", "enabled", a.config.Notifications.Enabled)

	if a.config.Notifications.Enabled {
		notificationsRepo := notificationspostgres.NewRepository(a.db)

		sender, err := email.NewSender(email.Config{
			Enabled:      true,
			SMTPHost:     a.config.Notifications.SMTPHost,
			SMTPPort:     a.config.Notifications.SMTPPort,
			SMTPUser:     a.config.Notifications.SMTPUser,
			SMTPPassword: a.config.Notifications.SMTPPassword,
			FromAddress:  a.config.Notifications.FromAddress,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create email sender: %w", err)
		}

		renderer, err := notifications.NewRenderer()
		if err != nil {
			return nil, nil, fmt.Errorf("create notification renderer: %w", err)
		}

		workerConfig := notifications.DefaultWorkerConfig()
		workerConfig.BatchSize = a.config.Notifications.BatchSize
		workerConfig.PollInterval = a.config.Notifications.PollInterval
		workerConfig.NumWorkers = a.config.Notifications.NumWorkers

		notificationWorker = notifications.NewWorker(workerConfig, notificationsRepo, sender, renderer)
		notificationWorker.Start(ctx)

		go a.collectQueueMetrics(ctx, notificationsRepo)

		notifier = notifications.NewNotifier(notificationsRepo)
	}

	reimbursementsRepo := reimbursementspostgres.NewRepository(a.db)
	reimbursementsService := reimbursements.NewService(reimbursementsRepo, identityService, notifier)
	reimbursementsHandler := reimbursements.NewHandler(reimbursementsService)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(jwtAuth, identityService))

			identityHandler.RegisterProtectedRoutes(r)
			reimbursementsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireOperation(authz.OpListAllReimbursements))
				reimbursementsHandler.RegisterManagerRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireOperation(authz.OpManageUsers))
				identityHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, notificationWorker, nil
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo notifications.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			notifications.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
