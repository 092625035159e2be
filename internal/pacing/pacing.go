// Package pacing compares today's intake with a linear schedule across the
// waking window.
package pacing

import (
	"time"

	"aqualog/internal/models"
)

type Status string

const (
	Ahead     Status = "AHEAD"
	OnTrack   Status = "ON_TRACK"
	Behind    Status = "BEHIND"
	Completed Status = "COMPLETED"
)

// Thresholds on current/expected.
const (
	aheadRatio   = 1.1
	onTrackRatio = 0.7
)

// Evaluate classifies currentMl against goalMl at now. wake and sleep are
// wall-clock times on now's date.
func Evaluate(currentMl, goalMl int, now time.Time, wake, sleep models.TimeOfDay) Status {
	if currentMl >= goalMl {
		return Completed
	}

	expected, ok := expectedMl(goalMl, now, wake, sleep)
	if !ok || expected <= 0 {
		return OnTrack
	}

	ratio := float64(currentMl) / expected
	switch {
	case ratio >= aheadRatio:
		return Ahead
	case ratio >= onTrackRatio:
		return OnTrack
	default:
		return Behind
	}
}

// ExpectedMl is how much should have been drunk by now, rounded down. It is 0
// outside the waking window.
func ExpectedMl(goalMl int, now time.Time, wake, sleep models.TimeOfDay) int {
	expected, ok := expectedMl(goalMl, now, wake, sleep)
	if !ok || expected < 0 {
		return 0
	}
	return int(expected)
}

// expectedMl reports false when now is outside [wake, sleep] or the window is
// empty.
func expectedMl(goalMl int, now time.Time, wake, sleep models.TimeOfDay) (float64, bool) {
	start, end := wake.On(now), sleep.On(now)
	if !end.After(start) {
		return 0, false
	}
	if now.Before(start) || now.After(end) {
		return 0, false
	}
	elapsed := now.Sub(start).Minutes()
	window := end.Sub(start).Minutes()
	return float64(goalMl) * elapsed / window, true
}
