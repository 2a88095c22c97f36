package content

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dayKeyLayout = "2006-01-02"

// DayKey is a calendar day in the planner's timezone, independent of
// clock time. It is comparable, so it can key maps and equality checks
// directly.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

func DayKeyOf(t time.Time) DayKey {
	y, m, d := t.Date()
	return DayKey{Year: y, Month: m, Day: d}
}

func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayKeyLayout, s)
	if err != nil {
		return DayKey{}, fmt.Errorf("content: bad day key %q: %w", s, err)
	}
	return DayKeyOf(t), nil
}

func (k DayKey) IsZero() bool { return k == DayKey{} }

func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// At returns the instant of hh:mm on this day in loc. time.Date
// normalization makes this safe across DST transitions.
func (k DayKey) At(hour, min int, loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, k.Day, hour, min, 0, 0, loc)
}

// Weekday reports the day-of-week of this calendar day.
func (k DayKey) Weekday() time.Weekday {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Next returns the following calendar day.
func (k DayKey) Next() DayKey {
	return DayKeyOf(time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1))
}

func (k DayKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *DayKey) UnmarshalText(b []byte) error {
	parsed, err := ParseDayKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SlotKey names one planned delivery slot: a calendar day plus the
// zero-based index into that day's slot list. Two planning passes over
// the same preferences produce the same SlotKey for the same slot,
// which is what makes re-enqueueing idempotent.
type SlotKey struct {
	Day   DayKey
	Index int
}

// unitPrefix tags scheduled work units owned by the delivery planner so
// they can be cancelled as a group without touching foreign units.
const unitPrefix = "delivery:"

// UnitID returns the deterministic work-unit name for this slot,
// e.g. "delivery:2026-08-24:02".
func (k SlotKey) UnitID() string {
	return fmt.Sprintf("%s%s:%02d", unitPrefix, k.Day, k.Index)
}

func (k SlotKey) String() string { return k.UnitID() }

// IsUnitID reports whether a work-unit name belongs to the delivery
// planner's namespace.
func IsUnitID(id string) bool {
	return len(id) > len(unitPrefix) && id[:len(unitPrefix)] == unitPrefix
}

// manualPrefix tags on-demand deliveries in the ledger's slot ids.
const manualPrefix = "manual:"

// ManualSlotID mints a fresh slot id for an on-demand delivery. Unlike
// UnitID these are never reproducible: every trigger is its own slot.
func ManualSlotID() string {
	return manualPrefix + uuid.NewString()
}

// IsManualSlotID reports whether a ledger slot id came from an on-demand
// delivery.
func IsManualSlotID(id string) bool {
	return len(id) > len(manualPrefix) && id[:len(manualPrefix)] == manualPrefix
}
