// Package schedule holds the user's delivery preferences and the pure
// calendar arithmetic that turns them into concrete delivery instants.
// Nothing in this package touches storage, timers or the clock.
package schedule

import (
	"errors"
	"fmt"
	"math/bits"
	"regexp"
	"strings"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
)

// Mode selects which calendar days are eligible for delivery.
type Mode string

const (
	ModeAllDays  Mode = "all_days"
	ModeWeekdays Mode = "weekdays"
	ModeWeekends Mode = "weekends"
	ModeCustom   Mode = "custom"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeAllDays, ModeWeekdays, ModeWeekends, ModeCustom:
		return true
	}
	return false
}

// ParseMode normalizes a config string into a Mode.
func ParseMode(raw string) (Mode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "all", "all_days", "daily":
		return ModeAllDays, nil
	case "weekday", "weekdays", "weekdays_only":
		return ModeWeekdays, nil
	case "weekend", "weekends", "weekends_only":
		return ModeWeekends, nil
	case "custom", "custom_days":
		return ModeCustom, nil
	}
	return "", fmt.Errorf("invalid mode %q (use all_days, weekdays, weekends or custom)", raw)
}

// DaySet is a bitmask over time.Weekday (bit 0 = Sunday).
// The zero value is the empty set.
type DaySet uint8

var (
	// AllDays .. Weekends are the fixed sets the non-custom modes expand to.
	AllDays  = NewDaySet(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)
	Weekdays = NewDaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	Weekends = NewDaySet(time.Saturday, time.Sunday)
)

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s DaySet) With(d time.Weekday) DaySet    { return s | 1<<uint(d) }
func (s DaySet) Without(d time.Weekday) DaySet { return s &^ (1 << uint(d)) }
func (s DaySet) Has(d time.Weekday) bool       { return s&(1<<uint(d)) != 0 }
func (s DaySet) Count() int                    { return bits.OnesCount8(uint8(s)) }
func (s DaySet) Empty() bool                   { return s == 0 }

// Days lists the members in Sunday..Saturday order.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, s.Count())
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DaySet) String() string {
	if s.Empty() {
		return "none"
	}
	parts := make([]string, 0, s.Count())
	for _, d := range s.Days() {
		parts = append(parts, d.String()[:3])
	}
	return strings.Join(parts, ",")
}

// ParseDays builds a DaySet from config day names ("mon", "monday", ...).
// Duplicates collapse; an empty list yields the empty set.
func ParseDays(names []string) (DaySet, error) {
	var s DaySet
	for _, raw := range names {
		d, err := parseDayName(raw)
		if err != nil {
			return 0, err
		}
		s = s.With(d)
	}
	return s, nil
}

func parseDayName(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tues", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thur", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("invalid day name %q", raw)
}

// TimeOfDay is a clock time expressed as minutes since midnight.
// It deliberately carries no date or timezone; combine with a DayKey
// and location via On().
type TimeOfDay int

const MinutesPerDay = 24 * 60

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

func MinuteOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses strict wall-clock "HH:MM" (00:00 .. 23:59).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	m := reClock.FindStringSubmatch(strings.TrimSpace(raw))
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM)", raw)
	}
	var hh, mm int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm = int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", raw)
	}
	return MinuteOfDay(hh, mm), nil
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t < MinutesPerDay }
func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On anchors this clock time to a calendar day in loc. time.Date
// normalization keeps the result valid across DST transitions.
func (t TimeOfDay) On(day content.DayKey, loc *time.Location) time.Time {
	return day.At(t.Hour(), t.Minute(), loc)
}

// Preferences is the user's delivery plan. The struct is comparable, so
// "did anything change" checks are plain ==.
type Preferences struct {
	Enabled     bool
	Mode        Mode
	CustomDays  DaySet // only consulted when Mode == ModeCustom
	WindowStart TimeOfDay
	WindowEnd   TimeOfDay
	PerDay      int
}

// ErrInvalidPreferences marks structural preference violations. An empty
// custom day set is NOT one of them: it is a valid plan that happens to
// produce no slots.
var ErrInvalidPreferences = errors.New("schedule: invalid preferences")

// MaxPerDay caps the per-day delivery count. Past ten a day the product
// stops being a coach and starts being noise.
const MaxPerDay = 10

func (p Preferences) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPreferences, string(p.Mode))
	}
	if !p.WindowStart.Valid() {
		return fmt.Errorf("%w: window start %d out of range", ErrInvalidPreferences, int(p.WindowStart))
	}
	if !p.WindowEnd.Valid() {
		return fmt.Errorf("%w: window end %d out of range", ErrInvalidPreferences, int(p.WindowEnd))
	}
	if p.WindowStart >= p.WindowEnd {
		return fmt.Errorf("%w: window start %s must be before end %s", ErrInvalidPreferences, p.WindowStart, p.WindowEnd)
	}
	if p.PerDay < 1 || p.PerDay > MaxPerDay {
		return fmt.Errorf("%w: per-day count %d must be between 1 and %d", ErrInvalidPreferences, p.PerDay, MaxPerDay)
	}
	return nil
}

// ActiveDays expands the mode into the concrete eligible day set.
func (p Preferences) ActiveDays() DaySet {
	switch p.Mode {
	case ModeAllDays:
		return AllDays
	case ModeWeekdays:
		return Weekdays
	case ModeWeekends:
		return Weekends
	case ModeCustom:
		return p.CustomDays
	}
	return 0
}
