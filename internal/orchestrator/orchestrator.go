package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/eventbus"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/selector"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/deferred"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// Orchestrator owns the planning state machine. mu serializes planning
// passes so cancel+rearm sequences are never interleaved; delivery
// itself (HandleFire, TriggerManual) runs outside the lock because the
// selector and the store carry their own synchronization.
type Orchestrator struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
	sel   *selector.Selector
	units UnitScheduler
	sndr  Sender

	mu  sync.Mutex
	cfg Config
	loc *time.Location

	now func() time.Time
}

type Option func(*Orchestrator)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(cfg Config, store storage.Store, sel *selector.Selector, units UnitScheduler, sndr Sender, log logx.Logger, bus eventbus.Bus, opts ...Option) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{
		log:   log,
		bus:   bus,
		store: store,
		sel:   sel,
		units: units,
		sndr:  sndr,
		cfg:   cfg,
		now:   time.Now,
	}
	o.loc = loadLocation(cfg.Timezone, log)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply swaps the planner environment at runtime. It does not replan by
// itself; callers follow up with RescheduleAll when the change matters.
func (o *Orchestrator) Apply(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cfg.Timezone != o.cfg.Timezone {
		o.loc = loadLocation(cfg.Timezone, o.log)
	}
	o.cfg = cfg
}

// ScheduleNext arms a unit for the next eligible instant. When the same
// unit is already armed for the same instant the call is a no-op that
// reports the existing plan. Disabled or absent preferences clear the
// armed set: a plan made under earlier preferences must not outlive them.
func (o *Orchestrator) ScheduleNext(ctx context.Context) (Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok, err := o.store.ReadPreferences(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("read preferences: %w", err)
	}
	if !ok || !p.Enabled {
		if n, err := o.units.CancelAll(ctx); err != nil {
			return Plan{}, fmt.Errorf("cancel pending: %w", err)
		} else if n > 0 {
			o.log.Info("cleared stale pending units", logx.Int("count", n))
			o.publishCanceled(n)
		}
		return Plan{State: PlanDisabled}, nil
	}
	return o.planLocked(ctx, p)
}

// EnsurePlanned brings the armed set in line with the stored
// preferences without disturbing a live chain: an already armed unit is
// kept as is (it may be a past-due catch-up that must still fire), an
// empty set gets a fresh plan, and leftovers under disabled preferences
// are cleared.
func (o *Orchestrator) EnsurePlanned(ctx context.Context) (Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok, err := o.store.ReadPreferences(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("read preferences: %w", err)
	}
	if !ok || !p.Enabled {
		if n, err := o.units.CancelAll(ctx); err != nil {
			return Plan{}, fmt.Errorf("cancel pending: %w", err)
		} else if n > 0 {
			o.log.Info("cleared stale pending units", logx.Int("count", n))
		}
		return Plan{State: PlanDisabled}, nil
	}
	if pending := o.units.Pending(); len(pending) > 0 {
		return Plan{State: PlanPlanned, UnitID: pending[0].ID, At: pending[0].At}, nil
	}
	return o.planLocked(ctx, p)
}

// RescheduleAll drops every pending unit and plans from scratch. The
// preference read happens first so a failing store leaves the armed set
// untouched.
func (o *Orchestrator) RescheduleAll(ctx context.Context) (Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok, err := o.store.ReadPreferences(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("read preferences: %w", err)
	}
	if _, err := o.units.CancelAll(ctx); err != nil {
		return Plan{}, fmt.Errorf("cancel pending: %w", err)
	}
	if !ok || !p.Enabled {
		return Plan{State: PlanDisabled}, nil
	}
	return o.planLocked(ctx, p)
}

// ApplyPreferences validates and persists p, then replaces the plan.
// The bool reports whether anything changed; writing identical
// preferences is a pure no-op that keeps the current chain.
func (o *Orchestrator) ApplyPreferences(ctx context.Context, p schedule.Preferences) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	cur, ok, err := o.store.ReadPreferences(ctx)
	if err != nil {
		return false, fmt.Errorf("read preferences: %w", err)
	}
	if ok && cur == p {
		o.log.Debug("preferences unchanged")
		return false, nil
	}
	if err := o.store.WritePreferences(ctx, p); err != nil {
		return false, fmt.Errorf("write preferences: %w", err)
	}
	if schedule.TightSlots(p.WindowStart, p.WindowEnd, p.PerDay, o.minGapLocked()) {
		o.log.Warn("window too tight for per-day count, slots fall below advisory gap",
			logx.String("window", p.WindowStart.String()+"-"+p.WindowEnd.String()),
			logx.Int("per_day", p.PerDay))
	}

	if n, err := o.units.CancelAll(ctx); err != nil {
		return true, fmt.Errorf("cancel pending: %w", err)
	} else if n > 0 {
		o.publishCanceled(n)
	}
	if !p.Enabled {
		o.log.Info("deliveries disabled")
		return true, nil
	}
	if _, err := o.planLocked(ctx, p); err != nil {
		return true, err
	}
	return true, nil
}

// CancelAll disarms every pending unit and reports how many there were.
func (o *Orchestrator) CancelAll(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.units.CancelAll(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		o.log.Info("pending deliveries canceled", logx.Int("count", n))
		o.publishCanceled(n)
	}
	return n, nil
}

// HandleFire is the deferred unit handler. Whatever happens to this
// fire, the successor gets planned; returning early on any path below
// must not skip the deferred ScheduleNext.
func (o *Orchestrator) HandleFire(ctx context.Context, u deferred.Unit) error {
	defer func() {
		if _, err := o.ScheduleNext(ctx); err != nil {
			o.log.Error("planning successor failed", logx.String("unit", u.ID), logx.Err(err))
		}
	}()

	// A crash between the ledger write and the unit cleanup replays the
	// unit on restart; the slot id already present in the ledger turns
	// the replay into a no-op.
	if dup, err := o.store.SlotDelivered(ctx, u.ID); err != nil {
		o.log.Warn("duplicate check failed, delivering anyway", logx.String("unit", u.ID), logx.Err(err))
	} else if dup {
		o.log.Info("slot already delivered, skipping", logx.String("unit", u.ID))
		return nil
	}

	bias, _ := o.env()
	d, ok, err := o.sel.Deliver(ctx, selector.Request{
		SlotID: u.ID,
		At:     o.now(),
		Day:    u.Day,
		Bias:   bias,
	})
	if err != nil {
		return fmt.Errorf("select for %s: %w", u.ID, err)
	}
	if !ok {
		// Exhausted. The chain keeps running so a catalog refill or a
		// ledger reset resumes deliveries without manual replanning.
		return nil
	}
	if o.sndr != nil {
		if err := o.sndr.Send(ctx, d); err != nil {
			return fmt.Errorf("enqueue send for %s: %w", u.ID, err)
		}
	}
	return nil
}

// TriggerManual delivers one item immediately under a manual slot id.
// It shares the ledger with scheduled deliveries but never touches the
// pending units, so the chain stays exactly where it was.
func (o *Orchestrator) TriggerManual(ctx context.Context) (Trigger, error) {
	bias, loc := o.env()
	now := o.now()

	d, ok, err := o.sel.Deliver(ctx, selector.Request{
		SlotID: content.ManualSlotID(),
		At:     now,
		Day:    content.DayKeyOf(now.In(loc)),
		Bias:   bias,
	})
	if err != nil {
		return Trigger{}, err
	}
	if !ok {
		return Trigger{State: TriggerExhausted}, nil
	}
	if o.sndr != nil {
		if err := o.sndr.Send(ctx, d); err != nil {
			o.log.Warn("manual delivery enqueue failed", logx.String("item", string(d.Item.ID)), logx.Err(err))
		}
	}
	return Trigger{State: TriggerDelivered, Delivery: d}, nil
}

// Snapshot assembles the status view. Individual read failures degrade
// to zero values instead of failing the whole snapshot.
func (o *Orchestrator) Snapshot(ctx context.Context) Snapshot {
	var snap Snapshot
	if p, ok, err := o.store.ReadPreferences(ctx); err == nil && ok {
		snap.Enabled = p.Enabled
		snap.Mode = string(p.Mode)
		snap.Days = p.ActiveDays().String()
		snap.Window = p.WindowStart.String() + "-" + p.WindowEnd.String()
		snap.PerDay = p.PerDay
	}
	if n, err := o.store.CountItems(ctx); err == nil {
		snap.Items = n
	}
	if n, err := o.store.CountUnseen(ctx); err == nil {
		snap.Unseen = n
	}
	pending := o.units.Pending()
	snap.Pending = len(pending)
	if len(pending) > 0 {
		snap.NextUnit = pending[0].ID
		snap.NextAt = pending[0].At
	}
	return snap
}

// planLocked finds the next slot under p and arms a unit for it. Caller
// holds mu and has already gated on Enabled.
func (o *Orchestrator) planLocked(ctx context.Context, p schedule.Preferences) (Plan, error) {
	slot, ok := schedule.NextSlot(p, o.now(), o.loc, schedule.Options{
		LookaheadDays: o.cfg.LookaheadDays,
		MinSlotGap:    o.cfg.MinSlotGap,
	})
	if !ok {
		o.log.Warn("no eligible delivery instant within horizon",
			logx.String("mode", string(p.Mode)),
			logx.String("days", p.ActiveDays().String()))
		return Plan{State: PlanNoSlot}, nil
	}

	unitID := slot.Key.UnitID()
	for _, info := range o.units.Pending() {
		if info.ID == unitID && info.At.Equal(slot.At) {
			return Plan{State: PlanPlanned, UnitID: unitID, At: slot.At}, nil
		}
	}

	err := o.units.Arm(ctx, deferred.Unit{
		ID:        unitID,
		At:        slot.At,
		Day:       slot.Key.Day,
		SlotIndex: slot.Key.Index,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("arm %s: %w", unitID, err)
	}

	o.log.Info("delivery planned", logx.String("unit", unitID), logx.Time("at", slot.At))
	if o.bus != nil {
		o.bus.Publish(eventbus.Event{
			Type: "plan.scheduled",
			Time: o.now(),
			Data: PlanEvent{UnitID: unitID, At: slot.At},
		})
	}
	return Plan{State: PlanPlanned, UnitID: unitID, At: slot.At}, nil
}

func (o *Orchestrator) publishCanceled(n int) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{
		Type: "plan.canceled",
		Time: o.now(),
		Data: PlanEvent{Count: n},
	})
}

// env snapshots the mu-guarded fields needed outside the lock.
func (o *Orchestrator) env() (bias []string, loc *time.Location) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.TagBias, o.loc
}

func (o *Orchestrator) minGapLocked() time.Duration {
	if o.cfg.MinSlotGap > 0 {
		return o.cfg.MinSlotGap
	}
	return schedule.DefaultMinSlotGap
}

func loadLocation(name string, log logx.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("invalid timezone, falling back to host zone", logx.String("timezone", name), logx.Err(err))
		return time.Local
	}
	return loc
}
