package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aqualog/internal/api"
	"aqualog/internal/auth"
	"aqualog/internal/config"
	"aqualog/internal/dashboard"
	"aqualog/internal/database"
	"aqualog/internal/events"
	"aqualog/internal/intake"
	"aqualog/internal/metrics"
	"aqualog/internal/reminder"
	"aqualog/internal/remote"
	"aqualog/internal/settings"
	"aqualog/internal/syncer"
	"aqualog/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("AQUALOG_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	intakeStore := intake.NewStore(db, bus, loc, &logger)
	settingsSvc := settings.NewService(db, bus, &logger)

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.RemoteTimeout())
	ready := map[string]api.Pinger{"database": db}
	if cfg.Redis.Address != "" && cfg.Remote.CacheTTLSeconds > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.RemoteCacheTTL())
		ready["redis"] = redisPinger{rdb}
	}

	authLogger := logger.With().Str("component", "auth").Logger()
	authSvc := auth.NewService(client, settingsSvc, &authLogger)
	if st, err := authSvc.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to restore session")
	} else if st.State == auth.StateAuthenticated {
		logger.Info().Str("user_id", st.UserID).Msg("signed in from stored session")
	}

	syncLogger := logger.With().Str("component", "sync").Logger()
	reconciler := syncer.NewReconciler(intakeStore, client, settingsSvc, syncer.Config{
		WritesPerSecond: cfg.Sync.WritesPerSecond,
		Burst:           cfg.Sync.Burst,
	}, &syncLogger)

	if cfg.Sync.Enabled && cfg.Remote.BaseURL != "" {
		syncWorker := worker.NewPeriodic(worker.Config{
			Name:       "sync",
			Interval:   cfg.SyncInterval(),
			Timeout:    2 * time.Minute,
			RunOnStart: true,
		}, reconciler.Run, &syncLogger)
		syncWorker.Start(ctx)
		defer syncWorker.Stop()

		// Push fresh entries without waiting for the next tick.
		unsubscribe := bus.Subscribe(events.TopicIntakeChanged, func(events.Event) { syncWorker.Trigger() })
		defer unsubscribe()
	}

	if cfg.Reminders.Enabled {
		reminderLogger := logger.With().Str("component", "reminders").Logger()
		checker := reminder.NewChecker(intakeStore, settingsSvc, reminder.LogNotifier{Logger: &reminderLogger}, &reminderLogger)
		reminderWorker := worker.NewPeriodic(worker.Config{
			Name:     "reminders",
			Interval: cfg.ReminderCheckInterval(),
			Timeout:  30 * time.Second,
		}, checker.Run, &reminderLogger)
		reminderWorker.Start(ctx)
		defer reminderWorker.Stop()
	}

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	view := dashboard.NewView(intakeStore, settingsSvc, bus, &logger)
	go logGoalReached(ctx, view, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	apiLogger := logger.With().Str("component", "api").Logger()
	srv := api.NewServer(api.Deps{
		Intake:    intakeStore,
		Settings:  settingsSvc,
		Dashboard: view,
		Auth:      authSvc,
		Syncer:    reconciler,
		Ready:     ready,
	}, &apiLogger).HTTPServer(cfg.APIAddr())

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", srv.Addr).Msg("aqualog started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("aqualog stopped")
}

// logGoalReached follows the today view and logs the moment the goal is met.
func logGoalReached(ctx context.Context, view *dashboard.View, logger *zerolog.Logger) {
	var reached bool
	day := ""
	for st := range view.Watch(ctx) {
		if st.Day != day {
			day, reached = st.Day, st.GoalReached
			continue
		}
		if st.GoalReached && !reached {
			logger.Info().Str("day", st.Day).Int("total_ml", st.TotalMl).Msg("daily goal reached")
		}
		reached = st.GoalReached
	}
}

type redisPinger struct {
	*redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.Ping(ctx).Err()
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
