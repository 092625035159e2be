// Package settings exposes the key/value settings table as typed, defaulted
// preferences.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"aqualog/internal/events"
	"aqualog/internal/models"

	"github.com/rs/zerolog"
)

// Store is the raw key/value persistence. *database.DB implements it.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

type Service struct {
	store  Store
	bus    *events.Bus
	logger *zerolog.Logger
}

func NewService(store Store, bus *events.Bus, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: store, bus: bus, logger: logger}
}

// Load returns the current preferences. Missing keys read as their defaults;
// nothing is written. A stored value that cannot be decoded also falls back to
// its default.
func (s *Service) Load(ctx context.Context) (models.Settings, error) {
	raw, err := s.store.AllSettings(ctx)
	if err != nil {
		return models.Settings{}, storageErr("load settings", err)
	}

	out := models.DefaultSettings()
	for key, value := range raw {
		if err := decodeInto(&out, key, value); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Str("value", value).Msg("ignoring malformed setting")
		}
	}
	return out, nil
}

// DailyGoal returns the daily goal in millilitres.
func (s *Service) DailyGoal(ctx context.Context) (int, error) {
	value, ok, err := s.store.GetSetting(ctx, models.KeyDailyGoalMl)
	if err != nil {
		return 0, storageErr("daily goal", err)
	}
	def := models.DefaultSettings().DailyGoalMl
	if !ok {
		return def, nil
	}
	goal, err := strconv.Atoi(value)
	if err != nil || goal <= 0 {
		return def, nil
	}
	return goal, nil
}

func (s *Service) SetDailyGoal(ctx context.Context, ml int) error {
	return s.Apply(ctx, Patch{DailyGoalMl: &ml})
}

func (s *Service) SetWakeTime(ctx context.Context, t models.TimeOfDay) error {
	v := t.String()
	return s.Apply(ctx, Patch{WakeTime: &v})
}

func (s *Service) SetSleepTime(ctx context.Context, t models.TimeOfDay) error {
	v := t.String()
	return s.Apply(ctx, Patch{SleepTime: &v})
}

func (s *Service) SetReminderInterval(ctx context.Context, minutes int) error {
	return s.Apply(ctx, Patch{ReminderIntervalMin: &minutes})
}

func (s *Service) SetRemindersEnabled(ctx context.Context, enabled bool) error {
	return s.Apply(ctx, Patch{RemindersEnabled: &enabled})
}

func (s *Service) SetHapticEnabled(ctx context.Context, enabled bool) error {
	return s.Apply(ctx, Patch{HapticEnabled: &enabled})
}

func (s *Service) SetDarkMode(ctx context.Context, mode models.ThemeMode) error {
	v := string(mode)
	return s.Apply(ctx, Patch{DarkMode: &v})
}

func (s *Service) SetOnboardingCompleted(ctx context.Context, done bool) error {
	return s.Apply(ctx, Patch{OnboardingCompleted: &done})
}

func (s *Service) SetQuickAddAmounts(ctx context.Context, amounts []int) error {
	if amounts == nil {
		amounts = []int{}
	}
	return s.Apply(ctx, Patch{QuickAddAmounts: amounts})
}

// SetIdentity stores the signed-in user's identity.
func (s *Service) SetIdentity(ctx context.Context, userID, name, email string) error {
	return s.write(ctx, map[string]string{
		models.KeyUserID:    userID,
		models.KeyUserName:  name,
		models.KeyUserEmail: email,
	})
}

// ClearIdentity forgets the signed-in user and their session tokens.
func (s *Service) ClearIdentity(ctx context.Context) error {
	for _, key := range []string{
		models.KeyUserID, models.KeyUserName, models.KeyUserEmail,
		models.KeySessionAccessToken, models.KeySessionRefreshToken,
	} {
		if err := s.store.DeleteSetting(ctx, key); err != nil {
			return storageErr("clear identity", err)
		}
	}
	s.notify()
	return nil
}

// Session returns the persisted backend tokens; both are empty when signed out.
func (s *Service) Session(ctx context.Context) (accessToken, refreshToken string, err error) {
	accessToken, _, err = s.store.GetSetting(ctx, models.KeySessionAccessToken)
	if err != nil {
		return "", "", storageErr("session", err)
	}
	refreshToken, _, err = s.store.GetSetting(ctx, models.KeySessionRefreshToken)
	if err != nil {
		return "", "", storageErr("session", err)
	}
	return accessToken, refreshToken, nil
}

func (s *Service) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	return s.write(ctx, map[string]string{
		models.KeySessionAccessToken:  accessToken,
		models.KeySessionRefreshToken: refreshToken,
	})
}

// RecordSync stores the time of the last successful sync.
func (s *Service) RecordSync(ctx context.Context, at time.Time) error {
	return s.write(ctx, map[string]string{
		models.KeyLastSyncAt: strconv.FormatInt(at.UnixMilli(), 10),
	})
}

// Patch is a partial settings update. Nil fields are left untouched.
type Patch struct {
	DailyGoalMl         *int    `json:"daily_goal_ml"`
	WakeTime            *string `json:"wake_time"`
	SleepTime           *string `json:"sleep_time"`
	ReminderIntervalMin *int    `json:"reminder_interval_min"`
	RemindersEnabled    *bool   `json:"reminders_enabled"`
	HapticEnabled       *bool   `json:"haptic_enabled"`
	DarkMode            *string `json:"dark_mode"`
	OnboardingCompleted *bool   `json:"onboarding_completed"`
	QuickAddAmounts     []int   `json:"quick_add_amounts"`
}

// Apply validates every field of p before writing any of them.
func (s *Service) Apply(ctx context.Context, p Patch) error {
	values, err := p.encode()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return s.write(ctx, values)
}

func (p Patch) encode() (map[string]string, error) {
	values := make(map[string]string)

	if p.DailyGoalMl != nil {
		if *p.DailyGoalMl <= 0 {
			return nil, fmt.Errorf("%w: daily goal must be positive", models.ErrValidation)
		}
		values[models.KeyDailyGoalMl] = strconv.Itoa(*p.DailyGoalMl)
	}
	if p.WakeTime != nil {
		t, err := models.ParseTimeOfDay(*p.WakeTime)
		if err != nil {
			return nil, err
		}
		values[models.KeyWakeTime] = t.String()
	}
	if p.SleepTime != nil {
		t, err := models.ParseTimeOfDay(*p.SleepTime)
		if err != nil {
			return nil, err
		}
		values[models.KeySleepTime] = t.String()
	}
	if p.ReminderIntervalMin != nil {
		if *p.ReminderIntervalMin <= 0 {
			return nil, fmt.Errorf("%w: reminder interval must be positive", models.ErrValidation)
		}
		values[models.KeyReminderIntervalMin] = strconv.Itoa(*p.ReminderIntervalMin)
	}
	if p.RemindersEnabled != nil {
		values[models.KeyRemindersEnabled] = strconv.FormatBool(*p.RemindersEnabled)
	}
	if p.HapticEnabled != nil {
		values[models.KeyHapticEnabled] = strconv.FormatBool(*p.HapticEnabled)
	}
	if p.DarkMode != nil {
		mode, err := models.ParseThemeMode(*p.DarkMode)
		if err != nil {
			return nil, err
		}
		values[models.KeyDarkMode] = string(mode)
	}
	if p.OnboardingCompleted != nil {
		values[models.KeyOnboardingCompleted] = strconv.FormatBool(*p.OnboardingCompleted)
	}
	if p.QuickAddAmounts != nil {
		for _, a := range p.QuickAddAmounts {
			if a <= 0 {
				return nil, fmt.Errorf("%w: quick-add amounts must be positive, got %d", models.ErrValidation, a)
			}
		}
		b, err := json.Marshal(p.QuickAddAmounts)
		if err != nil {
			return nil, err
		}
		values[models.KeyQuickAddAmounts] = string(b)
	}

	return values, nil
}

func (s *Service) write(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		if err := s.store.SetSetting(ctx, key, value); err != nil {
			return storageErr("set "+key, err)
		}
	}
	s.notify()
	return nil
}

func (s *Service) notify() {
	s.bus.Publish(events.Event{
		Type:      events.TopicSettingsChanged,
		CreatedAt: time.Now(),
	})
}

func decodeInto(out *models.Settings, key, value string) error {
	var err error
	switch key {
	case models.KeyDailyGoalMl:
		out.DailyGoalMl, err = positiveInt(value, out.DailyGoalMl)
	case models.KeyWakeTime:
		out.WakeTime, err = models.ParseTimeOfDay(value)
		if err != nil {
			out.WakeTime = models.DefaultSettings().WakeTime
		}
	case models.KeySleepTime:
		out.SleepTime, err = models.ParseTimeOfDay(value)
		if err != nil {
			out.SleepTime = models.DefaultSettings().SleepTime
		}
	case models.KeyReminderIntervalMin:
		out.ReminderIntervalMin, err = positiveInt(value, out.ReminderIntervalMin)
	case models.KeyRemindersEnabled:
		out.RemindersEnabled, err = boolOr(value, out.RemindersEnabled)
	case models.KeyHapticEnabled:
		out.HapticEnabled, err = boolOr(value, out.HapticEnabled)
	case models.KeyDarkMode:
		var mode models.ThemeMode
		if mode, err = models.ParseThemeMode(value); err == nil {
			out.DarkMode = mode
		}
	case models.KeyOnboardingCompleted:
		out.OnboardingCompleted, err = boolOr(value, out.OnboardingCompleted)
	case models.KeyQuickAddAmounts:
		var amounts []int
		if err = json.Unmarshal([]byte(value), &amounts); err == nil {
			out.QuickAddAmounts = amounts
		}
	case models.KeyUserID:
		out.UserID = value
	case models.KeyUserName:
		out.UserName = value
	case models.KeyUserEmail:
		out.UserEmail = value
	case models.KeyLastSyncAt:
		var ms int64
		if ms, err = strconv.ParseInt(value, 10, 64); err == nil {
			out.LastSyncAtMs = ms
		}
	}
	return err
}

func positiveInt(value string, fallback int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, err
	}
	if n <= 0 {
		return fallback, fmt.Errorf("%w: expected positive integer, got %d", models.ErrValidation, n)
	}
	return n, nil
}

func boolOr(value string, fallback bool) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, err
	}
	return b, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}
