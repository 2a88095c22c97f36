package content

import (
	"testing"
	"time"
)

func TestDayKeyRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{name: "plain", in: "2026-08-24"},
		{name: "leap day", in: "2024-02-29"},
		{name: "year edge", in: "2025-12-31"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			k, err := ParseDayKey(tt.in)
			if err != nil {
				t.Fatalf("ParseDayKey(%q) error: %v", tt.in, err)
			}
			if got := k.String(); got != tt.in {
				t.Fatalf("String() = %q, want %q", got, tt.in)
			}
		})
	}

	if _, err := ParseDayKey("2026-13-01"); err == nil {
		t.Fatal("expected error for bad month")
	}
}

func TestDayKeyNextAcrossMonth(t *testing.T) {
	t.Parallel()
	k, _ := ParseDayKey("2026-08-31")
	if got := k.Next().String(); got != "2026-09-01" {
		t.Fatalf("Next() = %s, want 2026-09-01", got)
	}
}

func TestDayKeyWeekday(t *testing.T) {
	t.Parallel()
	// 2026-08-24 is a Monday.
	k, _ := ParseDayKey("2026-08-24")
	if got := k.Weekday(); got != time.Monday {
		t.Fatalf("Weekday() = %v, want Monday", got)
	}
}

func TestSlotKeyUnitID(t *testing.T) {
	t.Parallel()
	k := SlotKey{Day: DayKey{Year: 2026, Month: time.August, Day: 24}, Index: 2}
	const want = "delivery:2026-08-24:02"
	if got := k.UnitID(); got != want {
		t.Fatalf("UnitID() = %q, want %q", got, want)
	}
	// Same inputs, same id: re-planning must not mint a new name.
	if again := (SlotKey{Day: DayKeyOf(time.Date(2026, 8, 24, 18, 30, 0, 0, time.UTC)), Index: 2}).UnitID(); again != want {
		t.Fatalf("UnitID() second derivation = %q, want %q", again, want)
	}

	if !IsUnitID(want) {
		t.Fatalf("IsUnitID(%q) = false, want true", want)
	}
	if IsUnitID("manual:abc") {
		t.Fatal("IsUnitID(manual:abc) = true, want false")
	}
}
