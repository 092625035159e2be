// Package syncer reconciles the local event log with the remote backend:
// push unsynced local events, then pull remote records missing locally. It
// never updates or deletes existing records on either side.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aqualog/internal/metrics"
	"aqualog/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// LocalLog is the local side. *intake.Store implements it.
type LocalLog interface {
	UnsyncedEvents(ctx context.Context) ([]models.IntakeEvent, error)
	MarkSynced(ctx context.Context, id int64, remoteID string) error
	AllRemoteIDs(ctx context.Context) (map[string]struct{}, error)
	InsertSynced(ctx context.Context, log models.RemoteHydrationLog) (bool, error)
}

// RemoteLog is the backend side. *remote.Client implements it.
type RemoteLog interface {
	CurrentUserID() string
	InsertLog(ctx context.Context, log models.RemoteHydrationLog) error
	ListLogs(ctx context.Context, userID string) ([]models.RemoteHydrationLog, error)
}

// Recorder stores the time of the last fully successful run.
type Recorder interface {
	RecordSync(ctx context.Context, at time.Time) error
}

// Config holds configuration for the reconciler.
type Config struct {
	// WritesPerSecond caps backend inserts during push. Zero means unlimited.
	WritesPerSecond float64

	// Burst of writes allowed above the rate. Default: 10.
	Burst int
}

// Result counts what one run moved.
type Result struct {
	Pushed  int `json:"pushed"`
	Pulled  int `json:"pulled"`
	Skipped int `json:"skipped"`
}

type Reconciler struct {
	local    LocalLog
	remote   RemoteLog
	recorder Recorder
	limiter  *rate.Limiter
	logger   *zerolog.Logger

	newID func() string
	now   func() time.Time

	// mu serializes runs; two overlapping pushes would insert the same
	// unsynced events twice under different ids.
	mu sync.Mutex
}

func NewReconciler(local LocalLog, remote RemoteLog, recorder Recorder, cfg Config, logger *zerolog.Logger) *Reconciler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	limit := rate.Inf
	if cfg.WritesPerSecond > 0 {
		limit = rate.Limit(cfg.WritesPerSecond)
	}
	return &Reconciler{
		local:    local,
		remote:   remote,
		recorder: recorder,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// RunSync pushes, then pulls. Both phases run even if the first fails. Any
// failure is returned wrapped in models.ErrSync; local data is never lost by
// a failed run.
func (r *Reconciler) RunSync(ctx context.Context) (res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("sync panicked")
			err = fmt.Errorf("%w: panic: %v", models.ErrSync, p)
		}
	}()

	start := r.now()
	defer metrics.ObserveSyncDuration(start)

	userID := r.remote.CurrentUserID()
	if userID == "" {
		metrics.IncSyncFailure("auth")
		return res, fmt.Errorf("%w: %w: not signed in", models.ErrSync, models.ErrAuth)
	}

	pushed, pushErr := r.push(ctx, userID)
	res.Pushed = pushed
	if pushErr != nil {
		metrics.IncSyncFailure("push")
	}

	pulled, skipped, pullErr := r.pull(ctx, userID)
	res.Pulled, res.Skipped = pulled, skipped
	if pullErr != nil {
		metrics.IncSyncFailure("pull")
	}

	metrics.AddSynced("push", pushed)
	metrics.AddSynced("pull", pulled)

	if err := errors.Join(pushErr, pullErr); err != nil {
		r.logger.Warn().Err(err).Int("pushed", pushed).Int("pulled", pulled).Msg("sync incomplete")
		return res, fmt.Errorf("%w: %w", models.ErrSync, err)
	}

	if r.recorder != nil {
		if err := r.recorder.RecordSync(ctx, r.now()); err != nil {
			r.logger.Warn().Err(err).Msg("failed to record sync time")
		}
	}
	r.logger.Info().
		Int("pushed", pushed).
		Int("pulled", pulled).
		Int("skipped", skipped).
		Dur("took", r.now().Sub(start)).
		Msg("sync finished")
	return res, nil
}

// Run adapts RunSync to a periodic job.
func (r *Reconciler) Run(ctx context.Context) error {
	_, err := r.RunSync(ctx)
	return err
}

// Push sends every unsynced local event to the backend.
func (r *Reconciler) Push(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.remote.CurrentUserID()
	if userID == "" {
		return 0, fmt.Errorf("push: %w: not signed in", models.ErrAuth)
	}
	return r.push(ctx, userID)
}

// Pull inserts remote records that are missing locally.
func (r *Reconciler) Pull(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.remote.CurrentUserID()
	if userID == "" {
		return 0, fmt.Errorf("pull: %w: not signed in", models.ErrAuth)
	}
	pulled, _, err := r.pull(ctx, userID)
	return pulled, err
}

// push stops at the first failed insert. Events not yet sent stay unsynced
// for the next run.
func (r *Reconciler) push(ctx context.Context, userID string) (int, error) {
	pending, err := r.local.UnsyncedEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("push: %w", err)
	}

	pushed := 0
	for _, ev := range pending {
		if err := r.limiter.Wait(ctx); err != nil {
			return pushed, fmt.Errorf("push: %w", err)
		}

		log := models.RemoteHydrationLog{
			ID:          r.newID(),
			UserID:      userID,
			AmountMl:    ev.AmountMl,
			TimestampMs: ev.TimestampMs,
			CalendarDay: ev.CalendarDay,
		}
		if err := r.remote.InsertLog(ctx, log); err != nil {
			return pushed, fmt.Errorf("push event %d: %w", ev.ID, err)
		}

		if err := r.local.MarkSynced(ctx, ev.ID, log.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Deleted or synced locally while in flight.
				r.logger.Warn().Int64("id", ev.ID).Str("remote_id", log.ID).Msg("pushed event no longer pending locally")
				continue
			}
			return pushed, fmt.Errorf("push event %d: %w", ev.ID, err)
		}
		pushed++
	}
	return pushed, nil
}

func (r *Reconciler) pull(ctx context.Context, userID string) (pulled, skipped int, err error) {
	logs, err := r.remote.ListLogs(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("pull: %w", err)
	}
	known, err := r.local.AllRemoteIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("pull: %w", err)
	}

	for _, log := range logs {
		if _, ok := known[log.ID]; ok {
			continue
		}
		if log.ID == "" || log.AmountMl <= 0 || (log.UserID != "" && log.UserID != userID) {
			r.logger.Debug().Str("remote_id", log.ID).Int("amount_ml", log.AmountMl).Msg("skipping unusable remote record")
			skipped++
			continue
		}

		inserted, err := r.local.InsertSynced(ctx, log)
		if err != nil {
			return pulled, skipped, fmt.Errorf("pull record %s: %w", log.ID, err)
		}
		known[log.ID] = struct{}{}
		if inserted {
			pulled++
		}
	}
	return pulled, skipped, nil
}
