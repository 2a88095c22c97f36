package schedule

import (
	"testing"
	"time"
)

func TestSlotTimesMidpoints(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start TimeOfDay
		end   TimeOfDay
		n     int
		want  []TimeOfDay
	}{
		{
			name:  "three across 09:00-21:00",
			start: MinuteOfDay(9, 0), end: MinuteOfDay(21, 0), n: 3,
			want: []TimeOfDay{MinuteOfDay(11, 0), MinuteOfDay(15, 0), MinuteOfDay(19, 0)},
		},
		{
			name:  "single slot lands mid-window",
			start: MinuteOfDay(9, 0), end: MinuteOfDay(21, 0), n: 1,
			want: []TimeOfDay{MinuteOfDay(15, 0)},
		},
		{
			name:  "two across one hour",
			start: MinuteOfDay(8, 0), end: MinuteOfDay(9, 0), n: 2,
			want: []TimeOfDay{MinuteOfDay(8, 15), MinuteOfDay(8, 45)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SlotTimes(tt.start, tt.end, tt.n)
			if err != nil {
				t.Fatalf("SlotTimes error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("slot %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
			// All midpoints stay inside the half-open window.
			for i, v := range got {
				if v < tt.start || v >= tt.end {
					t.Fatalf("slot %d = %s escapes [%s,%s)", i, v, tt.start, tt.end)
				}
			}
		})
	}

	if _, err := SlotTimes(MinuteOfDay(9, 0), MinuteOfDay(9, 0), 1); err == nil {
		t.Fatal("expected error for empty window")
	}
	if _, err := SlotTimes(MinuteOfDay(9, 0), MinuteOfDay(10, 0), 0); err == nil {
		t.Fatal("expected error for zero slots")
	}
}

func TestTightSlots(t *testing.T) {
	t.Parallel()
	// 60-minute window, 3 slots: 20 minutes apart, under the 30m floor.
	if !TightSlots(MinuteOfDay(9, 0), MinuteOfDay(10, 0), 3, 30*time.Minute) {
		t.Fatal("expected tight")
	}
	// 12-hour window, 3 slots: 4h apart.
	if TightSlots(MinuteOfDay(9, 0), MinuteOfDay(21, 0), 3, 30*time.Minute) {
		t.Fatal("expected not tight")
	}
	if TightSlots(MinuteOfDay(9, 0), MinuteOfDay(10, 0), 1, 30*time.Minute) {
		t.Fatal("single slot can never be tight")
	}
}

func basePrefs() Preferences {
	return Preferences{
		Enabled:     true,
		Mode:        ModeAllDays,
		WindowStart: MinuteOfDay(9, 0),
		WindowEnd:   MinuteOfDay(21, 0),
		PerDay:      3,
	}
}

func TestNextSlotSameDay(t *testing.T) {
	t.Parallel()
	// Monday 2026-08-24 10:00 UTC: next slot is 11:00 same day, index 0.
	from := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	slot, ok := NextSlot(basePrefs(), from, time.UTC, Options{})
	if !ok {
		t.Fatal("expected a slot")
	}
	want := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	if !slot.At.Equal(want) {
		t.Fatalf("At = %v, want %v", slot.At, want)
	}
	if slot.Key.Index != 0 || slot.Key.Day.String() != "2026-08-24" {
		t.Fatalf("Key = %+v", slot.Key)
	}
}

func TestNextSlotStrictlyAfter(t *testing.T) {
	t.Parallel()
	p := basePrefs()

	// Exactly at a slot instant: that slot is excluded, the next one wins.
	from := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	slot, ok := NextSlot(p, from, time.UTC, Options{})
	if !ok || !slot.At.Equal(time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("slot = %v ok=%v, want 15:00 same day", slot.At, ok)
	}

	// Past the last slot of the day: roll to the first slot of the next day.
	from = time.Date(2026, 8, 24, 20, 30, 0, 0, time.UTC)
	slot, ok = NextSlot(p, from, time.UTC, Options{})
	if !ok {
		t.Fatal("expected a slot")
	}
	want := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	if !slot.At.Equal(want) {
		t.Fatalf("At = %v, want %v", slot.At, want)
	}
	if slot.Key.Index != 0 {
		t.Fatalf("Index = %d, want 0", slot.Key.Index)
	}
}

func TestNextSlotSkipsInactiveDays(t *testing.T) {
	t.Parallel()
	p := basePrefs()
	p.Mode = ModeWeekends

	// Wednesday 2026-08-26: the next eligible day is Saturday 2026-08-29.
	from := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	slot, ok := NextSlot(p, from, time.UTC, Options{})
	if !ok {
		t.Fatal("expected a slot")
	}
	if got := slot.Key.Day.String(); got != "2026-08-29" {
		t.Fatalf("Day = %s, want 2026-08-29 (Saturday)", got)
	}
	if wd := slot.At.Weekday(); wd != time.Saturday {
		t.Fatalf("weekday = %v, want Saturday", wd)
	}
}

func TestNextSlotCustomDays(t *testing.T) {
	t.Parallel()
	p := basePrefs()
	p.Mode = ModeCustom
	p.CustomDays = NewDaySet(time.Friday)

	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) // Monday
	slot, ok := NextSlot(p, from, time.UTC, Options{})
	if !ok {
		t.Fatal("expected a slot")
	}
	if got := slot.Key.Day.String(); got != "2026-08-28" {
		t.Fatalf("Day = %s, want 2026-08-28 (Friday)", got)
	}
}

func TestNextSlotEmptyCustomSet(t *testing.T) {
	t.Parallel()
	p := basePrefs()
	p.Mode = ModeCustom
	p.CustomDays = 0

	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if _, ok := NextSlot(p, from, time.UTC, Options{}); ok {
		t.Fatal("empty custom set must yield no slot")
	}
}

func TestNextSlotHorizonBound(t *testing.T) {
	t.Parallel()
	p := basePrefs()
	p.Mode = ModeCustom
	p.CustomDays = NewDaySet(time.Sunday)

	// Monday with a 3-day horizon (Mon..Wed): Sunday is out of reach.
	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if _, ok := NextSlot(p, from, time.UTC, Options{LookaheadDays: 3}); ok {
		t.Fatal("slot found past the horizon")
	}
	// Default horizon (14 days) reaches it.
	slot, ok := NextSlot(p, from, time.UTC, Options{})
	if !ok || slot.At.Weekday() != time.Sunday {
		t.Fatalf("slot = %v ok=%v, want a Sunday", slot.At, ok)
	}
}

func TestNextSlotHonorsLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+4", 4*3600)
	p := basePrefs()

	// 06:30 UTC is 10:30 in UTC+4: first local slot that day is 11:00 local.
	from := time.Date(2026, 8, 24, 6, 30, 0, 0, time.UTC)
	slot, ok := NextSlot(p, from, loc, Options{})
	if !ok {
		t.Fatal("expected a slot")
	}
	if got := slot.At.In(loc).Hour(); got != 11 {
		t.Fatalf("local hour = %d, want 11", got)
	}
	if got := slot.Key.Day.String(); got != "2026-08-24" {
		t.Fatalf("Day = %s, want 2026-08-24", got)
	}
}
