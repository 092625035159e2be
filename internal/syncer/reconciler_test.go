package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aqualog/internal/database"
	"aqualog/internal/events"
	"aqualog/internal/intake"
	"aqualog/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

func newLocal(t *testing.T) *intake.Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return intake.NewStore(db, events.NewBus(), time.UTC, &logger)
}

func seed(t *testing.T, s *intake.Store, amounts ...int) {
	t.Helper()
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	for i, a := range amounts {
		_, err := s.Insert(context.Background(), a, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
}

// fakeRemote is an in-memory backend.
type fakeRemote struct {
	mu           sync.Mutex
	user         string
	logs         []models.RemoteHydrationLog
	insertCalls  int
	failInsertAt int
	listErr      error
	panicOnList  bool
}

func (f *fakeRemote) CurrentUserID() string { return f.user }

func (f *fakeRemote) InsertLog(_ context.Context, log models.RemoteHydrationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.failInsertAt > 0 && f.insertCalls == f.failInsertAt {
		return errors.New("backend http 503")
	}
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeRemote) ListLogs(_ context.Context, user string) ([]models.RemoteHydrationLog, error) {
	if f.panicOnList {
		panic("nil map in decoder")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RemoteHydrationLog
	for _, l := range f.logs {
		if l.UserID == user {
			out = append(out, l)
		}
	}
	return out, nil
}

type recorder struct {
	at []time.Time
}

func (r *recorder) RecordSync(_ context.Context, at time.Time) error {
	r.at = append(r.at, at)
	return nil
}

func localTotal(t *testing.T, s *intake.Store) int {
	t.Helper()
	total, err := s.TotalForDay(context.Background(), "2024-03-10")
	require.NoError(t, err)
	return total
}

func TestPushMarksEverythingSynced(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250, 500, 330)
	remote := &fakeRemote{user: userID}
	r := NewReconciler(local, remote, nil, Config{}, nil)

	pushed, err := r.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pushed)

	unsynced, err := local.UnsyncedEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unsynced)
	require.Len(t, remote.logs, 3)
	for _, l := range remote.logs {
		assert.Equal(t, userID, l.UserID)
		assert.Equal(t, "2024-03-10", l.CalendarDay)
		assert.NotEmpty(t, l.ID)
	}
}

type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) CurrentUserID() string { return userID }

func (m *MockRemote) InsertLog(ctx context.Context, log models.RemoteHydrationLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockRemote) ListLogs(ctx context.Context, user string) ([]models.RemoteHydrationLog, error) {
	args := m.Called(ctx, user)
	return args.Get(0).([]models.RemoteHydrationLog), args.Error(1)
}

func TestSecondPushSendsNothing(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250, 500)
	remote := new(MockRemote)
	remote.On("InsertLog", mock.Anything, mock.Anything).Return(nil)
	r := NewReconciler(local, remote, nil, Config{}, nil)

	_, err := r.Push(context.Background())
	require.NoError(t, err)
	remote.AssertNumberOfCalls(t, "InsertLog", 2)

	pushed, err := r.Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pushed)
	remote.AssertNumberOfCalls(t, "InsertLog", 2)
}

func TestPushFailureLeavesRestUnsynced(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250, 500, 330)
	remote := &fakeRemote{user: userID, failInsertAt: 2}
	rec := &recorder{}
	r := NewReconciler(local, remote, rec, Config{}, nil)

	res, err := r.RunSync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSync)
	assert.Equal(t, 1, res.Pushed)
	assert.Empty(t, rec.at)

	unsynced, err := local.UnsyncedEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, 500, unsynced[0].AmountMl)
	assert.Equal(t, 1080, localTotal(t, local), "no local data is lost")

	// The next run picks up where the failed one stopped.
	res, err = r.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Zero(t, res.Pulled)
	assert.Len(t, remote.logs, 3)
	assert.Len(t, rec.at, 1)
}

func TestPullInsertsOnlyMissingRecords(t *testing.T) {
	local := newLocal(t)
	ts := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC).UnixMilli()
	remote := &fakeRemote{user: userID, logs: []models.RemoteHydrationLog{
		{ID: "r-1", UserID: userID, AmountMl: 300, TimestampMs: ts, CalendarDay: "2024-03-10"},
		{ID: "r-2", UserID: userID, AmountMl: 200, TimestampMs: ts, CalendarDay: "2024-03-10"},
	}}
	_, err := local.InsertSynced(context.Background(), remote.logs[0])
	require.NoError(t, err)

	r := NewReconciler(local, remote, nil, Config{}, nil)
	pulled, err := r.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pulled)
	assert.Equal(t, 500, localTotal(t, local))

	pulled, err = r.Pull(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pulled)
	assert.Equal(t, 500, localTotal(t, local))
}

func TestPullSkipsUnusableRecords(t *testing.T) {
	local := newLocal(t)
	ts := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC).UnixMilli()
	remote := &fakeRemote{user: userID, logs: []models.RemoteHydrationLog{
		{ID: "r-1", UserID: userID, AmountMl: 0, TimestampMs: ts, CalendarDay: "2024-03-10"},
		{ID: "", UserID: userID, AmountMl: 100, TimestampMs: ts, CalendarDay: "2024-03-10"},
		{ID: "r-3", UserID: userID, AmountMl: 100, TimestampMs: ts, CalendarDay: "2024-03-10"},
	}}

	res, err := NewReconciler(local, remote, nil, Config{}, nil).RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Pulled: 1, Skipped: 2}, res)
	assert.Equal(t, 100, localTotal(t, local))
}

func TestRunSyncIsIdempotent(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250, 500)
	ts := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC).UnixMilli()
	remote := &fakeRemote{user: userID, logs: []models.RemoteHydrationLog{
		{ID: "other-device-1", UserID: userID, AmountMl: 400, TimestampMs: ts, CalendarDay: "2024-03-10"},
	}}
	rec := &recorder{}
	r := NewReconciler(local, remote, rec, Config{WritesPerSecond: 1000, Burst: 5}, nil)

	res, err := r.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Pushed: 2, Pulled: 1}, res)

	res, err = r.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	assert.Equal(t, 1150, localTotal(t, local))
	assert.Len(t, remote.logs, 3)
	assert.Len(t, rec.at, 2)

	ids, err := local.AllRemoteIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRunSyncRequiresSession(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250)
	_, err := NewReconciler(local, &fakeRemote{}, nil, Config{}, nil).RunSync(context.Background())
	assert.ErrorIs(t, err, models.ErrSync)
	assert.ErrorIs(t, err, models.ErrAuth)
}

func TestRunSyncReportsBothPhases(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250)
	remote := &fakeRemote{user: userID, failInsertAt: 1, listErr: fmt.Errorf("list: %w", context.DeadlineExceeded)}

	_, err := NewReconciler(local, remote, nil, Config{}, nil).RunSync(context.Background())
	assert.ErrorIs(t, err, models.ErrSync)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "503")
}

func TestRunSyncRecoversFromPanic(t *testing.T) {
	local := newLocal(t)
	remote := &fakeRemote{user: userID, panicOnList: true}

	var err error
	require.NotPanics(t, func() {
		_, err = NewReconciler(local, remote, nil, Config{}, nil).RunSync(context.Background())
	})
	assert.ErrorIs(t, err, models.ErrSync)
}

func TestPushSurvivesConcurrentLocalDelete(t *testing.T) {
	local := newLocal(t)
	seed(t, local, 250, 500)
	pending, err := local.UnsyncedEvents(context.Background())
	require.NoError(t, err)

	remote := &deletingRemote{fakeRemote: fakeRemote{user: userID}, local: local, victim: pending[0].ID}
	pushed, err := NewReconciler(local, remote, nil, Config{}, nil).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.Equal(t, 500, localTotal(t, local))
}

// deletingRemote deletes a local event while its insert is in flight.
type deletingRemote struct {
	fakeRemote
	local  *intake.Store
	victim int64
}

func (d *deletingRemote) InsertLog(ctx context.Context, log models.RemoteHydrationLog) error {
	if err := d.local.DeleteByID(ctx, d.victim); err != nil {
		return err
	}
	return d.fakeRemote.InsertLog(ctx, log)
}
