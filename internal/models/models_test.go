package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayHelpers(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	t.Run("DayOf uses location", func(t *testing.T) {
		ts := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
		assert.Equal(t, "2024-01-02", DayOf(ts, loc))
		assert.Equal(t, "2024-01-01", DayOf(ts, time.UTC))
	})

	t.Run("AddDays crosses month and year", func(t *testing.T) {
		d, err := AddDays("2024-01-01", -1)
		require.NoError(t, err)
		assert.Equal(t, "2023-12-31", d)

		d, err = AddDays("2024-02-28", 1)
		require.NoError(t, err)
		assert.Equal(t, "2024-02-29", d)
	})

	t.Run("ParseDay rejects garbage", func(t *testing.T) {
		_, err := ParseDay("01-02-2024", loc)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)
	assert.Equal(t, "07:05", tod.String())
	assert.Equal(t, 425, tod.Minutes())

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}

	ref := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 7, 5, 0, 0, time.UTC), tod.On(ref))
}

func TestSettingsJSON(t *testing.T) {
	data, err := json.Marshal(DefaultSettings())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"wake_time":"07:00"`)
	assert.Contains(t, string(data), `"sleep_time":"21:00"`)

	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"wake_time":"06:30","dark_mode":"dark"}`), &s))
	assert.Equal(t, TimeOfDay{Hour: 6, Minute: 30}, s.WakeTime)
	assert.Equal(t, ThemeDark, s.DarkMode)
}

func TestParseThemeMode(t *testing.T) {
	m, err := ParseThemeMode("light")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, m)

	_, err = ParseThemeMode("sepia")
	assert.ErrorIs(t, err, ErrValidation)
}
