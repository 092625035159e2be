// Package intake is the event log of water intake: validated writes over the
// local database, with a change notification after every committed write.
package intake

import (
	"context"
	"fmt"
	"time"

	"aqualog/internal/events"
	"aqualog/internal/metrics"
	"aqualog/internal/models"

	"github.com/rs/zerolog"
)

// Repository is the persistence the store needs. *database.DB implements it.
type Repository interface {
	InsertIntake(ctx context.Context, amountMl int, timestampMs int64, day string) (int64, error)
	InsertSyncedIntake(ctx context.Context, log models.RemoteHydrationLog) (bool, error)
	DeleteIntake(ctx context.Context, id int64) (bool, error)
	DeleteIntakesForDay(ctx context.Context, day string) (int64, error)
	IntakesForDay(ctx context.Context, day string) ([]models.IntakeEvent, error)
	TotalForDay(ctx context.Context, day string) (int, error)
	LastIntakeForDay(ctx context.Context, day string) (*models.IntakeEvent, error)
	DailyTotals(ctx context.Context, start, end string) ([]models.DailyTotal, error)
	DaysMeetingGoal(ctx context.Context, goalMl int) ([]models.DailyTotal, error)
	UnsyncedIntakes(ctx context.Context) ([]models.IntakeEvent, error)
	MarkIntakeSynced(ctx context.Context, id int64, remoteID string) (bool, error)
	RemoteIDs(ctx context.Context) (map[string]struct{}, error)
}

type Store struct {
	repo   Repository
	bus    *events.Bus
	loc    *time.Location
	logger *zerolog.Logger
	now    func() time.Time
}

func NewStore(repo Repository, bus *events.Bus, loc *time.Location, logger *zerolog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		repo:   repo,
		bus:    bus,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the store clock. Used by tests and tooling that replay
// a fixed day.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Location is the zone calendar days are computed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Today returns the current calendar day.
func (s *Store) Today() string {
	return models.DayOf(s.now(), s.loc)
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Insert records amountMl at ts and returns the new event id.
func (s *Store) Insert(ctx context.Context, amountMl int, ts time.Time) (int64, error) {
	if amountMl <= 0 {
		return 0, fmt.Errorf("insert intake: %w: amount must be positive, got %d", models.ErrValidation, amountMl)
	}

	day := models.DayOf(ts, s.loc)
	id, err := s.repo.InsertIntake(ctx, amountMl, ts.UnixMilli(), day)
	if err != nil {
		return 0, storageErr("insert intake", err)
	}

	metrics.IncIntakeLogged(amountMl)
	s.logger.Debug().Int64("id", id).Int("amount_ml", amountMl).Str("day", day).Msg("intake recorded")
	s.notify(day)
	return id, nil
}

// AddWater records amountMl now.
func (s *Store) AddWater(ctx context.Context, amountMl int) (int64, error) {
	return s.Insert(ctx, amountMl, s.now())
}

// DeleteByID removes an event. Removing an id that does not exist is a no-op.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteIntake(ctx, id)
	if err != nil {
		return storageErr("delete intake", err)
	}
	if deleted {
		metrics.AddIntakeDeleted(1)
		s.notify("")
	}
	return nil
}

// Delete removes the given event.
func (s *Store) Delete(ctx context.Context, ev models.IntakeEvent) error {
	return s.DeleteByID(ctx, ev.ID)
}

// EntriesForDay lists a day's events, newest first.
func (s *Store) EntriesForDay(ctx context.Context, day string) ([]models.IntakeEvent, error) {
	if _, err := models.ParseDay(day, s.loc); err != nil {
		return nil, err
	}
	entries, err := s.repo.IntakesForDay(ctx, day)
	if err != nil {
		return nil, storageErr("entries for day", err)
	}
	return entries, nil
}

func (s *Store) TotalForDay(ctx context.Context, day string) (int, error) {
	if _, err := models.ParseDay(day, s.loc); err != nil {
		return 0, err
	}
	total, err := s.repo.TotalForDay(ctx, day)
	if err != nil {
		return 0, storageErr("total for day", err)
	}
	return total, nil
}

// LastEntryForDay returns nil when the day has no events.
func (s *Store) LastEntryForDay(ctx context.Context, day string) (*models.IntakeEvent, error) {
	if _, err := models.ParseDay(day, s.loc); err != nil {
		return nil, err
	}
	last, err := s.repo.LastIntakeForDay(ctx, day)
	if err != nil {
		return nil, storageErr("last entry for day", err)
	}
	return last, nil
}

// DeleteAllForDay removes every event of day and returns how many were removed.
func (s *Store) DeleteAllForDay(ctx context.Context, day string) (int64, error) {
	if _, err := models.ParseDay(day, s.loc); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteIntakesForDay(ctx, day)
	if err != nil {
		return 0, storageErr("reset day", err)
	}
	if n > 0 {
		metrics.AddIntakeDeleted(n)
		s.logger.Info().Str("day", day).Int64("removed", n).Msg("day reset")
		s.notify(day)
	}
	return n, nil
}

// ResetDay is DeleteAllForDay.
func (s *Store) ResetDay(ctx context.Context, day string) (int64, error) {
	return s.DeleteAllForDay(ctx, day)
}

// UndoLastEntry removes today's most recent event and returns it, or nil when
// there was nothing to undo.
func (s *Store) UndoLastEntry(ctx context.Context) (*models.IntakeEvent, error) {
	last, err := s.LastEntryForDay(ctx, s.Today())
	if err != nil || last == nil {
		return nil, err
	}
	if err := s.DeleteByID(ctx, last.ID); err != nil {
		return nil, err
	}
	return last, nil
}

// DailyTotals returns per-day sums in [start, end], ascending. Days without
// events are omitted.
func (s *Store) DailyTotals(ctx context.Context, start, end string) ([]models.DailyTotal, error) {
	from, err := models.ParseDay(start, s.loc)
	if err != nil {
		return nil, err
	}
	to, err := models.ParseDay(end, s.loc)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("daily totals: %w: range end %s before start %s", models.ErrValidation, end, start)
	}

	totals, err := s.repo.DailyTotals(ctx, start, end)
	if err != nil {
		return nil, storageErr("daily totals", err)
	}
	return totals, nil
}

// DaysMeetingGoal returns the days whose total reached goalMl, newest first.
func (s *Store) DaysMeetingGoal(ctx context.Context, goalMl int) ([]models.DailyTotal, error) {
	if goalMl <= 0 {
		return nil, fmt.Errorf("days meeting goal: %w: goal must be positive", models.ErrValidation)
	}
	days, err := s.repo.DaysMeetingGoal(ctx, goalMl)
	if err != nil {
		return nil, storageErr("days meeting goal", err)
	}
	return days, nil
}

// UnsyncedEvents lists events not yet pushed to the backend, oldest first.
func (s *Store) UnsyncedEvents(ctx context.Context) ([]models.IntakeEvent, error) {
	evs, err := s.repo.UnsyncedIntakes(ctx)
	if err != nil {
		return nil, storageErr("unsynced events", err)
	}
	return evs, nil
}

// MarkSynced flags an event as pushed under remoteID. It returns ErrNotFound
// when the event is gone or was already synced.
func (s *Store) MarkSynced(ctx context.Context, id int64, remoteID string) error {
	ok, err := s.repo.MarkIntakeSynced(ctx, id, remoteID)
	if err != nil {
		return storageErr("mark synced", err)
	}
	if !ok {
		return fmt.Errorf("mark synced %d: %w", id, models.ErrNotFound)
	}
	s.notify("")
	return nil
}

// AllRemoteIDs returns the remote ids already present locally.
func (s *Store) AllRemoteIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := s.repo.RemoteIDs(ctx)
	if err != nil {
		return nil, storageErr("remote ids", err)
	}
	return ids, nil
}

// InsertSynced stores a record pulled from the backend. It reports false when
// a record with the same remote id already exists.
func (s *Store) InsertSynced(ctx context.Context, log models.RemoteHydrationLog) (bool, error) {
	if log.AmountMl <= 0 {
		return false, fmt.Errorf("insert synced: %w: amount must be positive, got %d", models.ErrValidation, log.AmountMl)
	}
	if log.ID == "" {
		return false, fmt.Errorf("insert synced: %w: missing remote id", models.ErrValidation)
	}
	// A missing or malformed day is recomputed from the timestamp; otherwise
	// the row would never be counted in any day's total.
	if _, err := models.ParseDay(log.CalendarDay, s.loc); err != nil {
		log.CalendarDay = models.DayOf(time.UnixMilli(log.TimestampMs), s.loc)
	}

	inserted, err := s.repo.InsertSyncedIntake(ctx, log)
	if err != nil {
		return false, storageErr("insert synced", err)
	}
	if inserted {
		s.notify(log.CalendarDay)
	}
	return inserted, nil
}

// notify publishes an intake change. day is empty when the write is not
// reported against a single day.
func (s *Store) notify(day string) {
	s.bus.Publish(events.Event{
		Type:      events.TopicIntakeChanged,
		Payload:   day,
		CreatedAt: s.now(),
	})
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}
