// Package dashboard derives the "today" screen from the event log and the
// settings, as a one-off snapshot or as a live stream.
package dashboard

import (
	"context"
	"time"

	"aqualog/internal/events"
	"aqualog/internal/models"
	"aqualog/internal/observe"
	"aqualog/internal/pacing"
	"aqualog/internal/streak"

	"github.com/rs/zerolog"
)

// clockRefresh re-derives the live state so pacing and the day boundary
// advance without writes.
const clockRefresh = time.Minute

// State is everything the today screen shows.
type State struct {
	Day         string               `json:"day"`
	TotalMl     int                  `json:"total_ml"`
	GoalMl      int                  `json:"goal_ml"`
	RemainingMl int                  `json:"remaining_ml"`
	Progress    float64              `json:"progress"`
	GoalReached bool                 `json:"goal_reached"`
	Streak      int                  `json:"streak"`
	Pacing      pacing.Status        `json:"pacing"`
	ExpectedMl  int                  `json:"expected_ml"`
	Entries     []models.IntakeEvent `json:"entries"`
	QuickAdd    []int                `json:"quick_add_amounts"`
}

// IntakeSource is the part of the event log the dashboard reads.
type IntakeSource interface {
	Today() string
	Now() time.Time
	EntriesForDay(ctx context.Context, day string) ([]models.IntakeEvent, error)
	DaysMeetingGoal(ctx context.Context, goalMl int) ([]models.DailyTotal, error)
}

type SettingsSource interface {
	Load(ctx context.Context) (models.Settings, error)
}

type View struct {
	intake   IntakeSource
	settings SettingsSource
	bus      *events.Bus
	logger   *zerolog.Logger
}

func NewView(intake IntakeSource, settings SettingsSource, bus *events.Bus, logger *zerolog.Logger) *View {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &View{intake: intake, settings: settings, bus: bus, logger: logger}
}

// Snapshot computes the current state once.
func (v *View) Snapshot(ctx context.Context) (State, error) {
	s, err := v.settings.Load(ctx)
	if err != nil {
		return State{}, err
	}
	today, err := v.loadToday(ctx)
	if err != nil {
		return State{}, err
	}
	met, err := v.loadGoalDays(ctx)
	if err != nil {
		return State{}, err
	}
	return compose(today, s, met, v.intake.Now()), nil
}

// Watch streams a fresh State after every intake or settings change. The
// channel closes when ctx is done.
func (v *View) Watch(ctx context.Context) <-chan State {
	today := observe.NewQuery(v.bus, v.logger, v.loadToday, events.TopicIntakeChanged).
		RefreshEvery(clockRefresh).
		Watch(ctx)
	prefs := observe.NewQuery(v.bus, v.logger, v.settings.Load, events.TopicSettingsChanged).
		Watch(ctx)
	met := observe.NewQuery(v.bus, v.logger, v.loadGoalDays, events.TopicIntakeChanged, events.TopicSettingsChanged).
		Watch(ctx)

	return observe.Combine3(ctx, today, prefs, met, func(d dayEntries, s models.Settings, m goalDays) State {
		return compose(d, s, m, v.intake.Now())
	})
}

type dayEntries struct {
	Day     string
	Entries []models.IntakeEvent
}

type goalDays struct {
	GoalMl int
	Days   streak.DaySet
}

func (v *View) loadToday(ctx context.Context) (dayEntries, error) {
	day := v.intake.Today()
	entries, err := v.intake.EntriesForDay(ctx, day)
	if err != nil {
		return dayEntries{}, err
	}
	return dayEntries{Day: day, Entries: entries}, nil
}

func (v *View) loadGoalDays(ctx context.Context) (goalDays, error) {
	s, err := v.settings.Load(ctx)
	if err != nil {
		return goalDays{}, err
	}
	totals, err := v.intake.DaysMeetingGoal(ctx, s.DailyGoalMl)
	if err != nil {
		return goalDays{}, err
	}
	return goalDays{GoalMl: s.DailyGoalMl, Days: streak.FromTotals(totals)}, nil
}

func compose(d dayEntries, s models.Settings, m goalDays, now time.Time) State {
	total := 0
	for _, e := range d.Entries {
		total += e.AmountMl
	}

	// Today's membership follows the live total; m may lag one emission
	// behind a write or a goal change.
	days := make(streak.DaySet, len(m.Days)+1)
	for day := range m.Days {
		days[day] = struct{}{}
	}
	if total >= s.DailyGoalMl {
		days[d.Day] = struct{}{}
	} else {
		delete(days, d.Day)
	}

	progress := 0.0
	if s.DailyGoalMl > 0 {
		progress = float64(total) / float64(s.DailyGoalMl)
		if progress > 1 {
			progress = 1
		}
	}
	remaining := s.DailyGoalMl - total
	if remaining < 0 {
		remaining = 0
	}

	entries := d.Entries
	if entries == nil {
		entries = []models.IntakeEvent{}
	}

	return State{
		Day:         d.Day,
		TotalMl:     total,
		GoalMl:      s.DailyGoalMl,
		RemainingMl: remaining,
		Progress:    progress,
		GoalReached: total >= s.DailyGoalMl,
		Streak:      streak.Calculate(days, d.Day),
		Pacing:      pacing.Evaluate(total, s.DailyGoalMl, now, s.WakeTime, s.SleepTime),
		ExpectedMl:  pacing.ExpectedMl(s.DailyGoalMl, now, s.WakeTime, s.SleepTime),
		Entries:     entries,
		QuickAdd:    s.QuickAddAmounts,
	}
}
