// Package availability computes bookable appointment slots from calendar
// busy time and a provider's weekly business hours.
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

const (
	// SlotDuration is the fixed length of every appointment.
	SlotDuration = 60 * time.Minute
	// DefaultQualifyingDays is how many attending weekdays are scanned.
	DefaultQualifyingDays = 15
)

// Interval is a half-open span of time [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable free interval on a calendar day.
type Slot struct {
	Day   time.Time
	Start time.Time
	End   time.Time
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// WeekdayName returns the Portuguese name of d.
func WeekdayName(d time.Weekday) string { return weekdayNames[d] }

// Label renders the slot's day as "quarta-feira, 15/01/2025".
func (s Slot) Label() string {
	return fmt.Sprintf("%s, %s", WeekdayName(s.Day.Weekday()), s.Day.Format("02/01/2006"))
}

func isAttendingWeekday(d time.Weekday) bool {
	return d == time.Wednesday || d == time.Thursday || d == time.Friday
}

// ComputeSlots walks forward from windowStart's calendar day until
// qualifyingDays Wednesdays, Thursdays or Fridays have been seen and returns
// the first free 60-minute slot of each, in day order. Business hours come
// from the provider matched by name; an unmatched name yields no slots.
// Day boundaries use windowStart's location.
func ComputeSlots(provider string, busyByCalendar [][]Interval, windowStart time.Time, qualifyingDays int) []Slot {
	if qualifyingDays <= 0 {
		qualifyingDays = DefaultQualifyingDays
	}
	key, matched := clinic.MatchName(provider)
	hours := clinic.HoursFor(key)
	busy := mergeCalendars(busyByCalendar)

	loc := windowStart.Location()
	y, m, d := windowStart.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var slots []Slot
	for seen := 0; seen < qualifyingDays; day = day.AddDate(0, 0, 1) {
		if !isAttendingWeekday(day.Weekday()) {
			continue
		}
		seen++
		if !matched {
			continue
		}
		open, closeAt, ok := hours.Window(day)
		if !ok {
			continue
		}
		free := freeGaps(open, closeAt, clip(busy, open, closeAt))
		if slot, ok := firstSlot(day, free); ok {
			slots = append(slots, slot)
		}
	}
	return slots
}

// mergeCalendars flattens every calendar's busy list into one slice ordered by
// start time. Degenerate intervals are dropped.
func mergeCalendars(busyByCalendar [][]Interval) []Interval {
	var all []Interval
	for _, cal := range busyByCalendar {
		for _, iv := range cal {
			if iv.Start.IsZero() || iv.End.IsZero() || !iv.Start.Before(iv.End) {
				continue
			}
			all = append(all, iv)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	return all
}

// clip keeps the parts of busy that fall within [open, closeAt), merging
// overlapping and touching intervals. busy must be sorted by start.
func clip(busy []Interval, open, closeAt time.Time) []Interval {
	var merged []Interval
	for _, iv := range busy {
		if !iv.End.After(open) || !iv.Start.Before(closeAt) {
			continue
		}
		start, end := iv.Start, iv.End
		if start.Before(open) {
			start = open
		}
		if end.After(closeAt) {
			end = closeAt
		}
		if !start.Before(end) {
			continue
		}
		if n := len(merged); n > 0 && !start.After(merged[n-1].End) {
			if end.After(merged[n-1].End) {
				merged[n-1].End = end
			}
			continue
		}
		merged = append(merged, Interval{Start: start, End: end})
	}
	return merged
}

func freeGaps(open, closeAt time.Time, busy []Interval) []Interval {
	var gaps []Interval
	cursor := open
	for _, iv := range busy {
		if cursor.Before(iv.Start) {
			gaps = append(gaps, Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(closeAt) {
		gaps = append(gaps, Interval{Start: cursor, End: closeAt})
	}
	return gaps
}

// firstSlot returns the earliest 60-minute slot that fits in any gap.
func firstSlot(day time.Time, gaps []Interval) (Slot, bool) {
	for _, gap := range gaps {
		start := gap.Start.In(day.Location())
		end := start.Add(SlotDuration)
		if !end.After(gap.End) {
			return Slot{Day: day, Start: start, End: end}, true
		}
	}
	return Slot{}, false
}

// Format renders slots the way the assistant relays them to patients.
func Format(provider string, slots []Slot) string {
	lines := make([]string, 0, len(slots))
	for _, s := range slots {
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", s.Label(), s.Start.Format("15:04"), s.End.Format("15:04")))
	}
	return fmt.Sprintf("Horários Livres para %s:\n%s", provider, strings.Join(lines, "\n"))
}
