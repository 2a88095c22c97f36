package deferred

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// onceSchedule fires at a single absolute instant and then never again.
//
// The cron runner calls Next twice per entry lifetime: once to compute
// the activation and once right after it, to recompute. The second call
// arrives with t at (or past) the activation we handed out, so it parks
// the entry by returning the zero time; the fire path removes the entry
// shortly after.
type onceSchedule struct {
	mu       sync.Mutex
	at       time.Time
	catchUp  time.Duration
	armedFor time.Time
}

var _ cron.Schedule = (*onceSchedule)(nil)

func (s *onceSchedule) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armedFor.IsZero() && !t.Before(s.armedFor) {
		return time.Time{}
	}

	next := s.at
	if !t.Before(next) {
		// Target instant already passed (armed after a restart): fire
		// once shortly instead of never.
		next = t.Add(s.catchUp)
	}
	s.armedFor = next
	return next
}
