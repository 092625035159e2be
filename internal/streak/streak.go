// Package streak counts consecutive days on which the daily goal was met.
package streak

import (
	"sort"

	"aqualog/internal/models"
)

// DaySet is a set of calendar days ("2006-01-02").
type DaySet map[string]struct{}

func NewDaySet(days ...string) DaySet {
	set := make(DaySet, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

// FromTotals builds a set from the days of totals.
func FromTotals(totals []models.DailyTotal) DaySet {
	set := make(DaySet, len(totals))
	for _, t := range totals {
		set[t.Day] = struct{}{}
	}
	return set
}

func (s DaySet) Has(day string) bool {
	_, ok := s[day]
	return ok
}

// Calculate returns the current streak ending today. A streak that reached
// yesterday still counts while today is in progress; any older gap ends it.
func Calculate(days DaySet, today string) int {
	if len(days) == 0 {
		return 0
	}

	start := today
	if !days.Has(start) {
		yesterday, err := models.AddDays(today, -1)
		if err != nil || !days.Has(yesterday) {
			return 0
		}
		start = yesterday
	}

	count := 0
	for day := start; days.Has(day); {
		count++
		prev, err := models.AddDays(day, -1)
		if err != nil {
			break
		}
		day = prev
	}
	return count
}

// Longest returns the longest run of consecutive days ever recorded.
func Longest(days DaySet) int {
	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	best, run := 0, 0
	prev := ""
	for _, d := range sorted {
		if next, err := models.AddDays(prev, 1); prev != "" && err == nil && next == d {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = d
	}
	return best
}
