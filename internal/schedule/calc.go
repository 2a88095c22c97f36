package schedule

import (
	"fmt"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
)

const (
	DefaultLookaheadDays = 14
	DefaultMinSlotGap    = 30 * time.Minute
)

// Options bounds the planner's forward search.
type Options struct {
	// LookaheadDays caps the day-by-day scan, counting the reference
	// day itself. Zero means DefaultLookaheadDays.
	LookaheadDays int
	// MinSlotGap is the advisory floor between same-day slots. Plans
	// tighter than this still schedule; callers may warn. Zero means
	// DefaultMinSlotGap.
	MinSlotGap time.Duration
}

func (o Options) withDefaults() Options {
	if o.LookaheadDays <= 0 {
		o.LookaheadDays = DefaultLookaheadDays
	}
	if o.MinSlotGap <= 0 {
		o.MinSlotGap = DefaultMinSlotGap
	}
	return o
}

// SlotTimes returns the midpoints of n equal sub-intervals of the
// half-open window [start, end), as minute-of-day values. One slot
// lands mid-window; three slots in 09:00-21:00 land at 11:00, 15:00
// and 19:00.
func SlotTimes(start, end TimeOfDay, n int) ([]TimeOfDay, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: slot count %d must be >= 1", ErrInvalidPreferences, n)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: window start %s must be before end %s", ErrInvalidPreferences, start, end)
	}
	width := int(end - start)
	out := make([]TimeOfDay, n)
	for i := range out {
		out[i] = start + TimeOfDay((2*i+1)*width/(2*n))
	}
	return out, nil
}

// TightSlots reports whether consecutive midpoints would land closer
// together than gap. Advisory only.
func TightSlots(start, end TimeOfDay, n int, gap time.Duration) bool {
	if n <= 1 || start >= end {
		return false
	}
	width := time.Duration(end-start) * time.Minute
	return width/time.Duration(n) < gap
}

// Slot pairs a planned delivery instant with the deterministic key that
// names its work unit.
type Slot struct {
	At  time.Time
	Key content.SlotKey
}

// NextSlot finds the earliest delivery instant strictly after from,
// scanning day by day under p's mode and window, at most
// opt.LookaheadDays calendar days (the day containing from included).
//
// p must already be valid per Validate; loc is the planner timezone.
// ok is false when no eligible instant exists within the horizon, which
// is a normal outcome (empty custom day set, horizon exhausted), not an
// error. The Enabled flag is ignored here: gating happens upstream.
func NextSlot(p Preferences, from time.Time, loc *time.Location, opt Options) (Slot, bool) {
	opt = opt.withDefaults()
	if loc == nil {
		loc = time.Local
	}

	active := p.ActiveDays()
	if active.Empty() {
		return Slot{}, false
	}
	times, err := SlotTimes(p.WindowStart, p.WindowEnd, p.PerDay)
	if err != nil {
		return Slot{}, false
	}

	day := content.DayKeyOf(from.In(loc))
	for i := 0; i < opt.LookaheadDays; i++ {
		if active.Has(day.Weekday()) {
			for idx, tod := range times {
				at := tod.On(day, loc)
				if at.After(from) {
					return Slot{At: at, Key: content.SlotKey{Day: day, Index: idx}}, true
				}
			}
		}
		day = day.Next()
	}
	return Slot{}, false
}
