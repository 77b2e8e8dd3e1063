// Package app wires configuration, storage, the engine and the notification
// outbox together for the server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/migration"
	"github.com/stanstork/taskwatch/internal/notification"
	"github.com/stanstork/taskwatch/internal/repository"
	"github.com/stanstork/taskwatch/internal/risk"
	"github.com/stanstork/taskwatch/internal/worker"
)

type App struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect repository.Dialect
	Logger  zerolog.Logger

	Tasks         repository.TaskRepository
	Alerts        repository.AlertRepository
	Incidents     repository.IncidentRepository
	Events        repository.EventRepository
	Users         repository.UserRepository
	Notifications notification.Service

	Engine *engine.Engine
	Outbox *worker.Worker
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// New opens the database, optionally applies migrations and builds every
// component on top of it. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*App, error) {
	db, dialect, err := repository.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if migrate {
		if err := migration.Run(db, dialect, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Dialect:   dialect,
		Logger:    logger,
		Tasks:     repository.NewTaskRepository(db),
		Alerts:    repository.NewAlertRepository(db),
		Incidents: repository.NewIncidentRepository(db),
		Events:    repository.NewEventRepository(db),
		Users:     repository.NewUserRepository(db),
	}

	notificationRepo := repository.NewNotificationRepository(db, dialect)
	a.Notifications = notification.NewService(notificationRepo, logger)

	a.Engine = engine.New(engine.Deps{
		Tasks:         a.Tasks,
		Alerts:        a.Alerts,
		Incidents:     a.Incidents,
		Events:        a.Events,
		Runs:          repository.NewSweepRunRepository(db),
		Notifications: a.Notifications,
		Evaluator:     risk.NewEvaluator(cfg.Location()),
		Clock:         risk.SystemClock{},
		Logger:        logger,
	})

	fanout, err := newFanout(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Outbox, err = worker.NewWorker(worker.WorkerConfig{
		Notifications: notificationRepo,
		Users:         a.Users,
		Deliverer:     fanout,
		PollInterval:  cfg.Notification.PollInterval,
		BatchSize:     cfg.Notification.BatchSize,
		MaxAttempts:   cfg.Notification.MaxAttempts,
		Lease:         cfg.Notification.Lease,
		RetryBackoff:  cfg.Notification.RetryBackoff,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// newFanout builds one notifier per enabled channel. With nothing enabled
// notifications still land in the outbox and are abandoned as undeliverable.
func newFanout(cfg *config.Config, logger zerolog.Logger) (*notification.Fanout, error) {
	var notifiers []notification.Notifier
	if cfg.Notification.LogChannel {
		notifiers = append(notifiers, notification.NewLogNotifier(logger))
	}
	if cfg.Email.Enabled {
		email, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			return nil, fmt.Errorf("configure email channel: %w", err)
		}
		notifiers = append(notifiers, email)
	}
	if cfg.Telegram.Enabled {
		tg, err := notification.NewTelegramNotifier(cfg.Telegram, logger)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	fanout := notification.NewFanout(logger, notifiers...)
	logger.Info().Strs("channels", fanout.Channels()).Msg("notification channels configured")
	return fanout, nil
}
