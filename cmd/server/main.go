package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/stanstork/taskwatch/internal/app"
	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/handlers"
	"github.com/stanstork/taskwatch/internal/middleware"
	"github.com/stanstork/taskwatch/internal/routes"
	"github.com/stanstork/taskwatch/internal/temporal"
	"github.com/stanstork/taskwatch/internal/temporal/activities"
	"github.com/stanstork/taskwatch/internal/temporal/workflows"
)

type application struct {
	*app.App
	temporalClient tc.Client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Set up structured, level-based logging.
	logger := app.NewLogger(cfg.Log, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(logger)

	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("jwt_secret must be set to serve the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer base.Close()

	a := &application{App: base}

	if cfg.Temporal.Enabled {
		a.temporalClient, err = tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewZerologAdapter(logger),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Unable to create Temporal client")
		}
		defer a.temporalClient.Close()
	}

	// Initialize the HTTP router and middleware.
	router := a.initRouter()
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"*"}),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(loggedRouter)
	handler := h.RecoveryHandler(h.RecoveryLogger(log.Default()), h.PrintRecoveryStack(true))(corsHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.startServer(gctx, handler) })
	g.Go(func() error {
		logger.Info().Msg("Starting notification outbox worker...")
		return a.Outbox.Start(gctx)
	})
	if a.temporalClient != nil {
		g.Go(func() error { return a.runTemporalWorker(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Application stopped with error")
	}
	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (a *application) initRouter() http.Handler {
	return routes.NewRouter(routes.Handlers{
		Auth:          authz.NewAuthenticator(a.Config.JWTSecret),
		Health:        handlers.NewHealthHandler(a.DB),
		Tasks:         handlers.NewTaskHandler(a.Engine, a.Logger),
		Incidents:     handlers.NewIncidentHandler(a.Engine, a.Logger),
		Sweeps:        handlers.NewSweepHandler(a.Engine, a.Logger),
		Alerts:        handlers.NewAlertHandler(a.Alerts, a.Logger),
		Notifications: handlers.NewNotificationHandler(a.Notifications, a.Logger),
	})
}

// runTemporalWorker serves sweep workflows and makes sure the cron schedule
// exists. It blocks until ctx is done.
func (a *application) runTemporalWorker(ctx context.Context) error {
	taskQueue := a.Config.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = temporal.DefaultTaskQueue
	}

	w := worker.New(a.temporalClient, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SweepWorkflow)
	w.RegisterActivity(&activities.Activities{Engine: a.Engine, Outbox: a.Outbox})

	if err := w.Start(); err != nil {
		return err
	}
	a.Logger.Info().Str("task_queue", taskQueue).Msg("Temporal worker started")

	if err := workflows.EnsureSchedule(ctx, a.temporalClient, a.Config.Engine.SweepCron, taskQueue, a.Logger); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to ensure sweep schedule")
	}

	<-ctx.Done()
	a.Logger.Info().Msg("Stopping Temporal worker...")
	w.Stop()
	a.Logger.Info().Msg("Temporal worker stopped.")
	return nil
}

// startServer launches the HTTP server and shuts it down gracefully once
// ctx is cancelled.
func (a *application) startServer(ctx context.Context, handler http.Handler) error {
	server := &http.Server{
		Addr:              ":" + a.Config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info().Msg("Shutting down...")
	case err, ok := <-serverErrCh:
		if ok {
			a.Logger.Error().Err(err).Msg("Server error occurred")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	a.Logger.Info().Msg("HTTP server shutdown complete.")
	return nil
}
