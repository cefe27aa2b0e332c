package availability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, day, hour, minute int) time.Time {
	return time.Date(2025, time.January, day, hour, minute, 0, 0, loc)
}

// 2025-01-15 is a Wednesday.

func TestComputeSlotsMarinaWednesdayNoBusy(t *testing.T) {
	loc := saoPaulo(t)
	slots := ComputeSlots("Dra Marina Zaneti", nil, at(loc, 15, 0, 0), 1)

	require.Len(t, slots, 1)
	assert.Equal(t, at(loc, 15, 14, 0), slots[0].Start)
	assert.Equal(t, at(loc, 15, 15, 0), slots[0].End)
	assert.Equal(t, "quarta-feira, 15/01/2025", slots[0].Label())
}

func TestComputeSlotsCountsOnlyWedThuFri(t *testing.T) {
	loc := saoPaulo(t)
	// Monday start: the first three qualifying days are Wed 15, Thu 16, Fri 17.
	slots := ComputeSlots("Marília", nil, at(loc, 13, 9, 0), 3)

	require.Len(t, slots, 3)
	assert.Equal(t, at(loc, 15, 13, 30), slots[0].Start)
	assert.Equal(t, at(loc, 16, 13, 30), slots[1].Start)
	assert.Equal(t, at(loc, 17, 9, 30), slots[2].Start)
	assert.Equal(t, at(loc, 17, 10, 30), slots[2].End)
}

func TestComputeSlotsMergesCalendarsAndSkipsBusy(t *testing.T) {
	loc := saoPaulo(t)
	busy := [][]Interval{
		{{Start: at(loc, 15, 13, 0), End: at(loc, 15, 14, 30)}},
		{
			{Start: at(loc, 15, 14, 30), End: at(loc, 15, 15, 0)},
			{Start: at(loc, 15, 15, 30), End: at(loc, 15, 17, 0)},
		},
	}
	slots := ComputeSlots("dra marina", busy, at(loc, 15, 0, 0), 1)

	// 15:00-15:30 is too short, the next clean hour starts at 17:00.
	require.Len(t, slots, 1)
	assert.Equal(t, at(loc, 15, 17, 0), slots[0].Start)
	assert.Equal(t, at(loc, 15, 18, 0), slots[0].End)
}

func TestComputeSlotsBusyInOtherTimezone(t *testing.T) {
	loc := saoPaulo(t)
	// 17:00Z is 14:00 in São Paulo.
	busy := [][]Interval{{{
		Start: time.Date(2025, time.January, 15, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.January, 15, 18, 0, 0, 0, time.UTC),
	}}}
	slots := ComputeSlots("Marina", busy, at(loc, 15, 0, 0), 1)

	require.Len(t, slots, 1)
	assert.Equal(t, "15:00", slots[0].Start.Format("15:04"))
}

func TestComputeSlotsFullyBookedDayYieldsNothing(t *testing.T) {
	loc := saoPaulo(t)
	busy := [][]Interval{{{Start: at(loc, 15, 8, 0), End: at(loc, 15, 21, 0)}}}
	slots := ComputeSlots("Marina", busy, at(loc, 15, 0, 0), 2)

	require.Len(t, slots, 1)
	assert.Equal(t, 16, slots[0].Day.Day())
}

func TestComputeSlotsUnknownProvider(t *testing.T) {
	loc := saoPaulo(t)
	assert.Empty(t, ComputeSlots("Dr. João", nil, at(loc, 15, 0, 0), 15))
}

func TestFirstSlotBoundaries(t *testing.T) {
	loc := saoPaulo(t)
	day := at(loc, 15, 0, 0)
	tests := []struct {
		name    string
		minutes int
		want    bool
	}{
		{name: "exactly sixty", minutes: 60, want: true},
		{name: "sixty one", minutes: 61, want: true},
		{name: "one nineteen", minutes: 119, want: true},
		{name: "fifty nine", minutes: 59, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := at(loc, 15, 14, 0)
			closeAt := open.Add(time.Duration(tt.minutes) * time.Minute)
			slot, ok := firstSlot(day, freeGaps(open, closeAt, nil))
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, open, slot.Start)
				assert.Equal(t, open.Add(SlotDuration), slot.End)
			}
		})
	}
}

func TestComputeSlotsIsIdempotent(t *testing.T) {
	loc := saoPaulo(t)
	busy := [][]Interval{
		{{Start: at(loc, 16, 14, 0), End: at(loc, 16, 16, 0)}},
		{{Start: at(loc, 15, 9, 0), End: at(loc, 15, 14, 45)}},
	}
	first := ComputeSlots("Marina", busy, at(loc, 13, 0, 0), 6)
	second := ComputeSlots("Marina", busy, at(loc, 13, 0, 0), 6)
	assert.Equal(t, first, second)
}

func TestFormat(t *testing.T) {
	loc := saoPaulo(t)
	slots := ComputeSlots("Dra Marina Zaneti", nil, at(loc, 15, 0, 0), 2)
	out := Format("Dra Marina Zaneti", slots)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Horários Livres para Dra Marina Zaneti:", lines[0])
	assert.Equal(t, "- quarta-feira, 15/01/2025: 14:00 - 15:00", lines[1])
	assert.Equal(t, "- quinta-feira, 16/01/2025: 14:00 - 15:00", lines[2])
}
