package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Setting keys as persisted in the settings table.
const (
	KeyDailyGoalMl         = "daily_goal_ml"
	KeyWakeTime            = "wake_time"
	KeySleepTime           = "sleep_time"
	KeyReminderIntervalMin = "reminder_interval_min"
	KeyRemindersEnabled    = "reminders_enabled"
	KeyHapticEnabled       = "haptic_enabled"
	KeyDarkMode            = "dark_mode"
	KeyOnboardingCompleted = "onboarding_completed"
	KeyQuickAddAmounts     = "quick_add_amounts"
	KeyUserID              = "user_id"
	KeyUserName            = "user_name"
	KeyUserEmail           = "user_email"
	KeyLastSyncAt          = "last_sync_at"
	KeySessionAccessToken  = "session_access_token"
	KeySessionRefreshToken = "session_refresh_token"
)

// ThemeMode selects the front-end color scheme.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// ParseThemeMode validates a theme mode string.
func ParseThemeMode(s string) (ThemeMode, error) {
	switch ThemeMode(s) {
	case ThemeLight, ThemeDark, ThemeSystem:
		return ThemeMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown theme mode %q", ErrValidation, s)
	}
}

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time %q", ErrValidation, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", ErrValidation, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", ErrValidation, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText encodes the time as "HH:MM".
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes "HH:MM".
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns this wall-clock time on the date of ref, in ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// Settings is the flat record of user preferences.
type Settings struct {
	DailyGoalMl         int       `json:"daily_goal_ml"`
	WakeTime            TimeOfDay `json:"wake_time"`
	SleepTime           TimeOfDay `json:"sleep_time"`
	ReminderIntervalMin int       `json:"reminder_interval_min"`
	RemindersEnabled    bool      `json:"reminders_enabled"`
	HapticEnabled       bool      `json:"haptic_enabled"`
	DarkMode            ThemeMode `json:"dark_mode"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	QuickAddAmounts     []int     `json:"quick_add_amounts"`
	UserID              string    `json:"user_id,omitempty"`
	UserName            string    `json:"user_name,omitempty"`
	UserEmail           string    `json:"user_email,omitempty"`
	LastSyncAtMs        int64     `json:"last_sync_at_ms,omitempty"`
}

// DefaultSettings returns the preferences used before anything is stored.
func DefaultSettings() Settings {
	return Settings{
		DailyGoalMl:         4000,
		WakeTime:            TimeOfDay{Hour: 7},
		SleepTime:           TimeOfDay{Hour: 21},
		ReminderIntervalMin: 90,
		RemindersEnabled:    true,
		HapticEnabled:       true,
		DarkMode:            ThemeSystem,
		OnboardingCompleted: false,
		QuickAddAmounts:     []int{250, 330, 500, 750, 1000},
	}
}
