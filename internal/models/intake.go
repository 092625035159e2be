package models

import (
	"fmt"
	"time"
)

// DayLayout is the format of calendar day strings stored next to each intake.
const DayLayout = "2006-01-02"

// IntakeEvent is one logged water-consumption action.
type IntakeEvent struct {
	ID          int64  `json:"id"`
	AmountMl    int    `json:"amount_ml"`
	TimestampMs int64  `json:"timestamp_ms"`
	CalendarDay string `json:"calendar_day"`
	RemoteID    string `json:"remote_id,omitempty"`
	Synced      bool   `json:"synced"`
}

// Time returns the event timestamp in loc.
func (e IntakeEvent) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(e.TimestampMs).In(loc)
}

// DailyTotal is the sum of intake amounts for one calendar day.
type DailyTotal struct {
	Day     string `json:"day"`
	TotalMl int    `json:"total_ml"`
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD string and returns midnight of that day in loc.
func ParseDay(day string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid day %q", ErrValidation, day)
	}
	return t, nil
}

// AddDays shifts a calendar day by n days. Day arithmetic is done in UTC so
// DST transitions never skip or repeat a day.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day, time.UTC)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayLayout), nil
}
