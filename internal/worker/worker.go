package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/notification"
	"github.com/stanstork/taskwatch/internal/repository"
)

// Deliverer is satisfied by *notification.Fanout.
type Deliverer interface {
	Deliver(ctx context.Context, to models.User, notif models.Notification) error
}

type WorkerConfig struct {
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Deliverer     Deliverer
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	// Lease hides claimed rows from other workers while they are delivered.
	Lease time.Duration
	// RetryBackoff is the wait after the first failed attempt. It doubles
	// with every further attempt up to maxRetryDelay. Negative retries on
	// the next poll.
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

const maxRetryDelay = time.Hour

// Worker drains the notification outbox.
type Worker struct {
	cfg    WorkerConfig
	logger zerolog.Logger
}

type DrainResult struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Notifications == nil || cfg.Users == nil || cfg.Deliverer == nil {
		return nil, fmt.Errorf("worker needs a notification repository, a user repository and a deliverer")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	return &Worker{cfg: cfg, logger: cfg.Logger.With().Str("component", "notification_worker").Logger()}, nil
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("worker started, polling for notifications")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				// Keep polling; the next tick retries.
				w.logger.Error().Err(err).Msg("error draining notifications")
			}
		}
	}
}

// DrainOnce claims one batch and tries to deliver every row in it.
func (w *Worker) DrainOnce(ctx context.Context) (DrainResult, error) {
	batch, err := w.cfg.Notifications.ClaimPending(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts, w.cfg.Lease)
	if err != nil {
		return DrainResult{}, fmt.Errorf("claim notifications: %w", err)
	}
	res := DrainResult{Claimed: len(batch)}
	for _, notif := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch w.deliver(ctx, notif) {
		case outcomeDelivered:
			res.Delivered++
		case outcomeAbandoned:
			res.Abandoned++
		default:
			res.Failed++
		}
	}
	if res.Claimed > 0 {
		w.logger.Info().
			Int("claimed", res.Claimed).
			Int("delivered", res.Delivered).
			Int("failed", res.Failed).
			Int("abandoned", res.Abandoned).
			Msg("notification batch processed")
	}
	return res, nil
}

// DrainAll keeps draining until a batch comes back empty or every claimed
// row failed, so one-shot callers do not spin on a broken channel.
func (w *Worker) DrainAll(ctx context.Context) (DrainResult, error) {
	var total DrainResult
	for {
		res, err := w.DrainOnce(ctx)
		total.Claimed += res.Claimed
		total.Delivered += res.Delivered
		total.Failed += res.Failed
		total.Abandoned += res.Abandoned
		if err != nil || res.Claimed == 0 || res.Failed == res.Claimed {
			return total, err
		}
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeDelivered
	outcomeAbandoned
)

func (w *Worker) deliver(ctx context.Context, notif models.Notification) outcome {
	log := w.logger.With().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int64("recipient_id", notif.RecipientID).
		Int("attempt", notif.Attempts).
		Logger()

	user, err := w.cfg.Users.Get(ctx, notif.RecipientID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn().Msg("recipient no longer exists, abandoning notification")
		return w.fail(ctx, log, notif, "recipient not found", true)
	}
	if err != nil {
		return w.fail(ctx, log, notif, err.Error(), notif.Attempts >= w.cfg.MaxAttempts)
	}

	err = w.cfg.Deliverer.Deliver(ctx, user, notif)
	if errors.Is(err, notification.ErrNoChannel) {
		log.Warn().Msg("recipient has no contact channel, abandoning notification")
		return w.fail(ctx, log, notif, err.Error(), true)
	}
	if err != nil {
		return w.fail(ctx, log, notif, err.Error(), notif.Attempts >= w.cfg.MaxAttempts)
	}

	if err := w.cfg.Notifications.MarkDelivered(ctx, notif.ID); err != nil {
		// Delivered but not recorded; the lease expiry will redeliver it.
		log.Error().Err(err).Msg("failed to mark notification delivered")
		return outcomeFailed
	}
	log.Debug().Msg("notification delivered")
	return outcomeDelivered
}

// retryDelay is how long a row that failed its attempts-th delivery waits
// before it can be claimed again.
func (w *Worker) retryDelay(attempts int) time.Duration {
	if w.cfg.RetryBackoff < 0 {
		return 0
	}
	delay := w.cfg.RetryBackoff
	for i := 1; i < attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (w *Worker) fail(ctx context.Context, log zerolog.Logger, notif models.Notification, reason string, abandon bool) outcome {
	retryAfter := w.retryDelay(notif.Attempts)
	if err := w.cfg.Notifications.MarkFailed(ctx, notif.ID, reason, retryAfter, abandon); err != nil {
		log.Error().Err(err).Msg("failed to record notification failure")
	}
	if abandon {
		log.Warn().Str("reason", reason).Msg("notification abandoned")
		return outcomeAbandoned
	}
	log.Warn().Str("reason", reason).Dur("retry_after", retryAfter).Msg("notification delivery failed, will retry")
	return outcomeFailed
}
