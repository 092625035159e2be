package dashboard

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"aqualog/internal/database"
	"aqualog/internal/events"
	"aqualog/internal/intake"
	"aqualog/internal/models"
	"aqualog/internal/pacing"
	"aqualog/internal/settings"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

type fixture struct {
	view     *View
	intake   *intake.Store
	settings *settings.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "dash.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewBus()
	in := intake.NewStore(db, bus, time.UTC, &logger)
	in.SetClock(func() time.Time { return noon })
	st := settings.NewService(db, bus, &logger)
	return fixture{view: NewView(in, st, bus, &logger), intake: in, settings: st}
}

func (f fixture) add(t *testing.T, amount int, ts time.Time) {
	t.Helper()
	_, err := f.intake.Insert(context.Background(), amount, ts)
	require.NoError(t, err)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, 4000, noon.AddDate(0, 0, -2))
	f.add(t, 4100, noon.AddDate(0, 0, -1))
	f.add(t, 1500, noon.Add(-4*time.Hour))
	f.add(t, 1000, noon.Add(-time.Hour))

	st, err := f.view.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", st.Day)
	assert.Equal(t, 2500, st.TotalMl)
	assert.Equal(t, 4000, st.GoalMl)
	assert.Equal(t, 1500, st.RemainingMl)
	assert.InDelta(t, 0.625, st.Progress, 1e-9)
	assert.False(t, st.GoalReached)
	assert.Equal(t, 2, st.Streak)
	assert.Equal(t, pacing.Ahead, st.Pacing)
	assert.Equal(t, 2000, st.ExpectedMl)
	require.Len(t, st.Entries, 2)
	assert.Equal(t, 1000, st.Entries[0].AmountMl)
	assert.Equal(t, []int{250, 330, 500, 750, 1000}, st.QuickAdd)
}

func TestSnapshotEmptyDay(t *testing.T) {
	f := newFixture(t)
	st, err := f.view.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalMl)
	assert.Zero(t, st.Streak)
	assert.Equal(t, pacing.Behind, st.Pacing)
	assert.NotNil(t, st.Entries)
}

func next(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case st, ok := <-ch:
		require.True(t, ok)
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dashboard state")
	}
	return State{}
}

// waitFor reads states until one satisfies cond.
func waitFor(t *testing.T, ch <-chan State, cond func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-ch:
			require.True(t, ok)
			if cond(st) {
				return st
			}
		case <-deadline:
			t.Fatal("dashboard never reached expected state")
		}
	}
}

func TestWatchFollowsWrites(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.add(t, 4000, noon.AddDate(0, 0, -1))
	ch := f.view.Watch(ctx)

	st := next(t, ch)
	assert.Zero(t, st.TotalMl)
	assert.Equal(t, 1, st.Streak)

	f.add(t, 3000, noon.Add(-time.Hour))
	st = waitFor(t, ch, func(s State) bool { return s.TotalMl == 3000 })
	assert.False(t, st.GoalReached)

	require.NoError(t, f.settings.SetDailyGoal(context.Background(), 3000))
	st = waitFor(t, ch, func(s State) bool { return s.GoalMl == 3000 })
	assert.True(t, st.GoalReached)
	assert.Equal(t, pacing.Completed, st.Pacing)
	assert.Equal(t, 2, st.Streak)

	_, err := f.intake.UndoLastEntry(context.Background())
	require.NoError(t, err)
	st = waitFor(t, ch, func(s State) bool { return s.TotalMl == 0 })
	assert.Equal(t, 1, st.Streak)
}

func TestComposeDoesNotMutateInput(t *testing.T) {
	met := goalDays{GoalMl: 1000, Days: map[string]struct{}{"2024-03-09": {}}}
	d := dayEntries{Day: "2024-03-10", Entries: []models.IntakeEvent{{AmountMl: 1200}}}

	st := compose(d, models.Settings{DailyGoalMl: 1000}, met, noon)
	assert.Equal(t, 2, st.Streak)
	assert.Len(t, met.Days, 1)
}
