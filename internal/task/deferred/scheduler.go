package deferred

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/engine"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

const (
	defaultCatchUpDelay = 5 * time.Second
	defaultFireTimeout  = 2 * time.Minute

	enqueueWarnThrottle = 5 * time.Second
)

type Config struct {
	// Timezone is the IANA zone the cron runner operates in. Empty means Local.
	Timezone string

	// CatchUpDelay is how long after Start a past-due unit fires.
	CatchUpDelay time.Duration

	// FireTimeout bounds a single fire on the engine.
	FireTimeout time.Duration
}

// Unit is a one-shot trigger armed at an absolute instant.
// ID doubles as the persistence key: arming the same id again replaces
// the earlier unit instead of adding a second one.
type Unit struct {
	ID        string
	At        time.Time
	Day       content.DayKey
	SlotIndex int
}

// Handler runs a fired unit. It executes on an engine worker.
type Handler func(ctx context.Context, u Unit) error

// UnitInfo is a read-only snapshot row.
type UnitInfo struct {
	ID   string
	At   time.Time
	Next time.Time
}

type Scheduler struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	store  storage.Store
	engine *engine.Service

	handler Handler

	c       *cron.Cron
	entries map[string]cron.EntryID
	units   map[string]Unit

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

func New(cfg Config, store storage.Store, eng *engine.Service, log logx.Logger) *Scheduler {
	if cfg.CatchUpDelay <= 0 {
		cfg.CatchUpDelay = defaultCatchUpDelay
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = defaultFireTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:         cfg,
		log:         log,
		store:       store,
		engine:      eng,
		entries:     map[string]cron.EntryID{},
		units:       map[string]Unit{},
		lastEnqWarn: map[string]time.Time{},
	}
}

// SetHandler installs the fire handler. Must be called before Start.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Start creates the cron runner and re-arms every persisted unit.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if s.handler == nil {
		return errors.New("deferred: handler not set")
	}

	pending, err := s.store.ListPendingUnits(ctx)
	if err != nil {
		return fmt.Errorf("list pending units: %w", err)
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))

	restored := 0
	for _, p := range pending {
		u := Unit{ID: p.ID, At: p.At, Day: p.Day, SlotIndex: p.SlotIndex}
		s.armLocked(u)
		restored++
	}
	s.c.Start()

	s.log.Info("deferred scheduler started", logx.String("tz", loc.String()), logx.Int("restored", restored))
	return nil
}

// Stop stops the cron runner. Persisted units remain so they resume on
// the next Start.
func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.log.Info("deferred scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply picks up config changes. A timezone change restarts the runner
// and re-arms the in-memory units under the new location.
func (s *Scheduler) Apply(cfg Config) {
	if cfg.CatchUpDelay <= 0 {
		cfg.CatchUpDelay = defaultCatchUpDelay
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = defaultFireTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

// Arm persists and schedules a unit. The store write happens first so a
// crash between the two re-arms the unit on the next Start. Arming
// before Start is allowed; the unit is scheduled when Start runs.
func (s *Scheduler) Arm(ctx context.Context, u Unit) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("unit id required")
	}
	if u.At.IsZero() {
		return errors.New("unit instant required")
	}

	if err := s.store.SavePendingUnit(ctx, storage.PendingUnit{ID: u.ID, Day: u.Day, SlotIndex: u.SlotIndex, At: u.At}); err != nil {
		return fmt.Errorf("persist unit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = u
	if s.c == nil {
		return nil
	}
	s.armLocked(u)
	return nil
}

// Cancel disarms a unit and removes its persisted row.
// Returns true when something was actually removed.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	s.mu.Lock()
	removed := false
	if eid, ok := s.entries[id]; ok {
		if s.c != nil {
			s.c.Remove(eid)
		}
		delete(s.entries, id)
		removed = true
	}
	if _, ok := s.units[id]; ok {
		delete(s.units, id)
		removed = true
	}
	s.mu.Unlock()

	if err := s.store.DeletePendingUnit(ctx, id); err != nil {
		return removed, fmt.Errorf("delete unit: %w", err)
	}
	if removed {
		s.log.Debug("unit canceled", logx.String("unit", id))
	}
	return removed, nil
}

// CancelAll disarms everything and clears the persisted set.
func (s *Scheduler) CancelAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	n := len(s.units)
	if s.c != nil {
		for _, eid := range s.entries {
			s.c.Remove(eid)
		}
	}
	s.entries = map[string]cron.EntryID{}
	s.units = map[string]Unit{}
	s.mu.Unlock()

	cleared, err := s.store.ClearPendingUnits(ctx)
	if err != nil {
		return n, fmt.Errorf("clear units: %w", err)
	}
	if cleared > n {
		n = cleared
	}
	if n > 0 {
		s.log.Debug("all units canceled", logx.Int("count", n))
	}
	return n, nil
}

// Armed reports whether a unit with the given id is currently known.
func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	_, ok := s.units[strings.TrimSpace(id)]
	s.mu.Unlock()
	return ok
}

// Pending returns the armed units ordered by target instant.
func (s *Scheduler) Pending() []UnitInfo {
	s.mu.Lock()
	c := s.c
	out := make([]UnitInfo, 0, len(s.units))
	for id, u := range s.units {
		info := UnitInfo{ID: id, At: u.At}
		if c != nil {
			if eid, ok := s.entries[id]; ok {
				info.Next = c.Entry(eid).Next
			}
		}
		out = append(out, info)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// armLocked registers u on the cron runner, replacing any earlier entry
// with the same id. Call with s.mu held and s.c non-nil.
func (s *Scheduler) armLocked(u Unit) {
	if eid, ok := s.entries[u.ID]; ok {
		s.c.Remove(eid)
		delete(s.entries, u.ID)
	}

	sched := &onceSchedule{at: u.At, catchUp: s.cfg.CatchUpDelay}
	local := u
	eid := s.c.Schedule(sched, cron.FuncJob(func() { s.fire(local) }))
	s.entries[u.ID] = eid
	s.units[u.ID] = u

	s.log.Debug("unit armed", logx.String("unit", u.ID), logx.Time("at", u.At))
}

// fire hands a triggered unit to the engine. Runs on a cron job goroutine.
func (s *Scheduler) fire(u Unit) {
	s.mu.Lock()
	// A unit canceled or replaced after the trigger fired is stale; drop it.
	cur, ok := s.units[u.ID]
	if !ok || !cur.At.Equal(u.At) {
		s.mu.Unlock()
		return
	}
	if eid, ok := s.entries[u.ID]; ok {
		if s.c != nil {
			s.c.Remove(eid)
		}
		delete(s.entries, u.ID)
	}
	delete(s.units, u.ID)
	h := s.handler
	timeout := s.cfg.FireTimeout
	s.mu.Unlock()

	if h == nil || s.engine == nil {
		s.log.Error("unit fired with no handler wired", logx.String("unit", u.ID))
		return
	}

	err := s.engine.Enqueue(engine.Task{
		Name:    u.ID,
		Timeout: timeout,
		Overlap: engine.OverlapSkipIfRunning,
		Run: func(ctx context.Context) error {
			runErr := h(ctx, u)
			// The persisted row is cleanup, not a retry token: the handler
			// owns chaining even when it fails, so a leftover row would
			// only cause a duplicate catch-up fire on restart.
			if derr := s.store.DeletePendingUnit(ctx, u.ID); derr != nil {
				s.log.Warn("pending unit cleanup failed", logx.String("unit", u.ID), logx.Any("err", derr))
			}
			return runErr
		},
	})
	if err != nil {
		s.reportEnqueueError(u.ID, err)
	}
}

func (s *Scheduler) reportEnqueueError(unit string, err error) {
	// Overlap skips mean the same unit is already queued or running.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("unit trigger skipped", logx.String("unit", unit), logx.Any("err", err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[unit]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[unit] = now
	s.enqMu.Unlock()

	s.log.Warn("unit failed to enqueue", logx.String("unit", unit), logx.Any("err", err))
}

// restartLocked recreates the cron runner under the current timezone and
// re-arms every known unit. Call with s.mu held.
func (s *Scheduler) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))
	s.entries = map[string]cron.EntryID{}
	for _, u := range s.units {
		s.armLocked(u)
	}
	s.c.Start()
	s.log.Info("deferred scheduler restarted", logx.String("tz", loc.String()), logx.Int("units", len(s.units)))
}

func (s *Scheduler) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}
