// Package reminder decides when the user should be nudged to drink. Delivery
// of the nudge is up to a Notifier.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aqualog/internal/metrics"
	"aqualog/internal/models"

	"github.com/rs/zerolog"
)

// Due reports whether a reminder should fire at now. Reminders fire inside
// the waking window only, stop once the goal is met, and wait at least the
// configured interval after the last entry of the day, or after wake time
// when there is none.
func Due(now time.Time, s models.Settings, last *models.IntakeEvent, totalMl int) bool {
	if !s.RemindersEnabled || s.ReminderIntervalMin <= 0 {
		return false
	}
	if totalMl >= s.DailyGoalMl {
		return false
	}

	wake, sleep := s.WakeTime.On(now), s.SleepTime.On(now)
	if !sleep.After(wake) || now.Before(wake) || now.After(sleep) {
		return false
	}

	since := wake
	if last != nil {
		if t := last.Time(now.Location()); t.After(since) {
			since = t
		}
	}
	return now.Sub(since) >= time.Duration(s.ReminderIntervalMin)*time.Minute
}

// Reminder is what gets handed to a Notifier.
type Reminder struct {
	Day         string
	TotalMl     int
	GoalMl      int
	RemainingMl int
	At          time.Time
}

func (r Reminder) Message() string {
	return fmt.Sprintf("Time for some water: %d ml to go today (%d/%d ml).", r.RemainingMl, r.TotalMl, r.GoalMl)
}

// Notifier delivers a reminder to the user.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct {
	Logger *zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.Logger.Info().
		Str("day", r.Day).
		Int("total_ml", r.TotalMl).
		Int("goal_ml", r.GoalMl).
		Msg(r.Message())
	return nil
}

// IntakeReader is the part of the event log the checker reads.
type IntakeReader interface {
	Today() string
	Now() time.Time
	TotalForDay(ctx context.Context, day string) (int, error)
	LastEntryForDay(ctx context.Context, day string) (*models.IntakeEvent, error)
}

// SettingsReader loads the current preferences.
type SettingsReader interface {
	Load(ctx context.Context) (models.Settings, error)
}

// Checker evaluates Due against the stores and notifies when it holds. It
// does not notify twice within one reminder interval.
type Checker struct {
	intake   IntakeReader
	settings SettingsReader
	notifier Notifier
	logger   *zerolog.Logger

	mu           sync.Mutex
	lastNotified time.Time
}

func NewChecker(intake IntakeReader, settings SettingsReader, notifier Notifier, logger *zerolog.Logger) *Checker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Checker{intake: intake, settings: settings, notifier: notifier, logger: logger}
}

// Check notifies if a reminder is due and reports whether it did.
func (c *Checker) Check(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.settings.Load(ctx)
	if err != nil {
		return false, err
	}
	day := c.intake.Today()
	total, err := c.intake.TotalForDay(ctx, day)
	if err != nil {
		return false, err
	}
	last, err := c.intake.LastEntryForDay(ctx, day)
	if err != nil {
		return false, err
	}

	now := c.intake.Now()
	if !Due(now, s, last, total) {
		return false, nil
	}
	interval := time.Duration(s.ReminderIntervalMin) * time.Minute
	if !c.lastNotified.IsZero() && now.Sub(c.lastNotified) < interval {
		return false, nil
	}

	r := Reminder{
		Day:         day,
		TotalMl:     total,
		GoalMl:      s.DailyGoalMl,
		RemainingMl: s.DailyGoalMl - total,
		At:          now,
	}
	if err := c.notifier.Notify(ctx, r); err != nil {
		metrics.IncReminder("failed")
		return false, fmt.Errorf("notify: %w", err)
	}

	metrics.IncReminder("sent")
	c.lastNotified = now
	c.logger.Debug().Str("day", day).Int("remaining_ml", r.RemainingMl).Msg("reminder sent")
	return true, nil
}

// Run adapts Check to a periodic job.
func (c *Checker) Run(ctx context.Context) error {
	_, err := c.Check(ctx)
	return err
}
