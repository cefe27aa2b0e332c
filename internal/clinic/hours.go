package clinic

import (
	"fmt"
	"strings"
	"time"
)

// DayHours represents the opening hours for a single day.
// Nil means the provider does not attend that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// GetHoursForDay returns the hours for a given weekday (0=Sunday, 6=Saturday).
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// Window returns the absolute open and close instants for the calendar day of
// day, in day's location. ok is false when the day is closed or the hours do
// not parse.
func (b *BusinessHours) Window(day time.Time) (start, end time.Time, ok bool) {
	hours := b.GetHoursForDay(day.Weekday())
	if hours == nil {
		return time.Time{}, time.Time{}, false
	}
	openClock, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeClock, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := day.Date()
	loc := day.Location()
	start = time.Date(y, m, d, openClock.Hour(), openClock.Minute(), 0, 0, loc)
	end = time.Date(y, m, d, closeClock.Hour(), closeClock.Minute(), 0, 0, loc)
	if !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

var (
	marinaHours = BusinessHours{
		Wednesday: &DayHours{Open: "14:00", Close: "20:00"},
		Thursday:  &DayHours{Open: "14:00", Close: "20:00"},
		Friday:    &DayHours{Open: "09:00", Close: "14:00"},
	}
	mariliaHours = BusinessHours{
		Wednesday: &DayHours{Open: "13:30", Close: "19:30"},
		Thursday:  &DayHours{Open: "13:30", Close: "19:30"},
		Friday:    &DayHours{Open: "09:30", Close: "14:30"},
	}
)

// HoursFor returns the weekly schedule the provider attends.
func HoursFor(key ProviderKey) BusinessHours {
	switch key {
	case ProviderMarina:
		return marinaHours
	case ProviderMarilia:
		return mariliaHours
	default:
		return BusinessHours{}
	}
}

// BusinessHoursText describes both providers' schedules for the assistant.
func BusinessHoursText() string {
	var b strings.Builder
	b.WriteString("- Horário de atendimento\n")
	for _, key := range []ProviderKey{ProviderMarina, ProviderMarilia} {
		hours := HoursFor(key)
		fmt.Fprintf(&b, "%s:\n", shortNames[key])
		fmt.Fprintf(&b, "Quartas/ Quintas: %s às %s presencial ou online\n", hours.Wednesday.Open, hours.Wednesday.Close)
		fmt.Fprintf(&b, "Sextas: %s às %s presencial ou online\n", hours.Friday.Open, hours.Friday.Close)
	}
	return b.String()
}
