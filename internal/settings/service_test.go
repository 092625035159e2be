package settings

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"aqualog/internal/database"
	"aqualog/internal/events"
	"aqualog/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *database.DB, *events.Bus) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "settings.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewBus()
	return NewService(db, bus, &logger), db, bus
}

func TestLoadReturnsDefaultsWithoutWriting(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	got, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), got)

	stored, err := db.AllSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSettersRoundTrip(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()

	var changes atomic.Int32
	bus.Subscribe(events.TopicSettingsChanged, func(events.Event) { changes.Add(1) })

	require.NoError(t, svc.SetDailyGoal(ctx, 2500))
	require.NoError(t, svc.SetWakeTime(ctx, models.MustTimeOfDay("06:30")))
	require.NoError(t, svc.SetSleepTime(ctx, models.MustTimeOfDay("22:15")))
	require.NoError(t, svc.SetReminderInterval(ctx, 45))
	require.NoError(t, svc.SetRemindersEnabled(ctx, false))
	require.NoError(t, svc.SetHapticEnabled(ctx, false))
	require.NoError(t, svc.SetDarkMode(ctx, models.ThemeDark))
	require.NoError(t, svc.SetOnboardingCompleted(ctx, true))
	require.NoError(t, svc.SetQuickAddAmounts(ctx, []int{200, 400}))
	require.NoError(t, svc.SetIdentity(ctx, "u-1", "Sam", "sam@example.com"))
	require.NoError(t, svc.RecordSync(ctx, time.UnixMilli(1700000000000)))

	got, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Settings{
		DailyGoalMl:         2500,
		WakeTime:            models.TimeOfDay{Hour: 6, Minute: 30},
		SleepTime:           models.TimeOfDay{Hour: 22, Minute: 15},
		ReminderIntervalMin: 45,
		RemindersEnabled:    false,
		HapticEnabled:       false,
		DarkMode:            models.ThemeDark,
		OnboardingCompleted: true,
		QuickAddAmounts:     []int{200, 400},
		UserID:              "u-1",
		UserName:            "Sam",
		UserEmail:           "sam@example.com",
		LastSyncAtMs:        1700000000000,
	}, got)
	assert.Equal(t, int32(11), changes.Load())

	goal, err := svc.DailyGoal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2500, goal)
}

func TestApplyValidatesBeforeWriting(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	goal := 3000
	bad := "25:00"
	err := svc.Apply(ctx, Patch{DailyGoalMl: &goal, WakeTime: &bad})
	assert.ErrorIs(t, err, models.ErrValidation)

	stored, err := db.AllSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	zero := 0
	assert.ErrorIs(t, svc.Apply(ctx, Patch{DailyGoalMl: &zero}), models.ErrValidation)
	assert.ErrorIs(t, svc.Apply(ctx, Patch{ReminderIntervalMin: &zero}), models.ErrValidation)
	assert.ErrorIs(t, svc.SetQuickAddAmounts(ctx, []int{250, -1}), models.ErrValidation)
	assert.ErrorIs(t, svc.SetDarkMode(ctx, "sepia"), models.ErrValidation)
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.SetSetting(ctx, models.KeyDailyGoalMl, "lots"))
	require.NoError(t, db.SetSetting(ctx, models.KeyWakeTime, "dawn"))
	require.NoError(t, db.SetSetting(ctx, models.KeyQuickAddAmounts, "[250,"))
	require.NoError(t, db.SetSetting(ctx, models.KeySleepTime, "23:00"))

	got, err := svc.Load(ctx)
	require.NoError(t, err)
	def := models.DefaultSettings()
	assert.Equal(t, def.DailyGoalMl, got.DailyGoalMl)
	assert.Equal(t, def.WakeTime, got.WakeTime)
	assert.Equal(t, def.QuickAddAmounts, got.QuickAddAmounts)
	assert.Equal(t, models.TimeOfDay{Hour: 23}, got.SleepTime)
}

func TestSessionAndClearIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetIdentity(ctx, "u-1", "Sam", "sam@example.com"))
	require.NoError(t, svc.SetSession(ctx, "access", "refresh"))

	access, refresh, err := svc.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access", access)
	assert.Equal(t, "refresh", refresh)

	require.NoError(t, svc.ClearIdentity(ctx))
	access, refresh, err = svc.Session(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	got, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.UserID)
}

type MockStore struct {
	mock.Mock
	Store
}

func (m *MockStore) AllSettings(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(map[string]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestLoadWrapsStorageErrors(t *testing.T) {
	store := new(MockStore)
	store.On("AllSettings", mock.Anything).Return(nil, errors.New("disk I/O error"))

	_, err := NewService(store, events.NewBus(), nil).Load(context.Background())
	assert.ErrorIs(t, err, models.ErrStorage)
	store.AssertExpectations(t)
}
