package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/eventbus"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/selector"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/deferred"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// monday is the fixed test origin, 2026-08-24 08:00 UTC. With the
// default window 09:00-21:00 and three slots per day the midpoints land
// at 11:00, 15:00 and 19:00.
var monday = time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 24, hour, min, 0, 0, time.UTC)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeUnits struct {
	mu       sync.Mutex
	units    map[string]deferred.Unit
	armCalls int
	armErr   error
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{units: make(map[string]deferred.Unit)}
}

func (f *fakeUnits) Arm(_ context.Context, u deferred.Unit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armCalls++
	if f.armErr != nil {
		return f.armErr
	}
	f.units[u.ID] = u
	return nil
}

func (f *fakeUnits) Cancel(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.units[id]
	delete(f.units, id)
	return ok, nil
}

func (f *fakeUnits) CancelAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.units)
	f.units = make(map[string]deferred.Unit)
	return n, nil
}

func (f *fakeUnits) Pending() []deferred.UnitInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]deferred.UnitInfo, 0, len(f.units))
	for _, u := range f.units {
		out = append(out, deferred.UnitInfo{ID: u.ID, At: u.At})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeUnits) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}

func (f *fakeUnits) arms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armCalls
}

func (f *fakeUnits) get(id string) (deferred.Unit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	return u, ok
}

type fakeSender struct {
	mu   sync.Mutex
	sent []selector.Delivery
	err  error
}

func (f *fakeSender) Send(_ context.Context, d selector.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() selector.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	o      *Orchestrator
	store  storage.Store
	units  *fakeUnits
	sender *fakeSender
	clock  *fakeClock
}

func newFixture(t *testing.T, items int) *fixture {
	t.Helper()
	return newFixtureBus(t, items, nil)
}

func newFixtureBus(t *testing.T, items int, bus eventbus.Bus) *fixture {
	t.Helper()
	st := storage.NewMemory()
	seed := make([]content.ContentItem, 0, items)
	for i := 0; i < items; i++ {
		id := fmt.Sprintf("i%d", i)
		seed = append(seed, content.ContentItem{ID: content.ItemID(id), Text: "text " + id})
	}
	if _, err := st.SyncCatalog(context.Background(), seed); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	clock := &fakeClock{t: monday}
	sel := selector.New(st, logx.Nop(), bus,
		selector.WithRand(rand.New(rand.NewSource(7))),
		selector.WithClock(clock.Now))
	units := newFakeUnits()
	snd := &fakeSender{}
	o := New(Config{Timezone: "UTC"}, st, sel, units, snd, logx.Nop(), bus, WithClock(clock.Now))
	return &fixture{o: o, store: st, units: units, sender: snd, clock: clock}
}

func defaultPrefs() schedule.Preferences {
	return schedule.Preferences{
		Enabled:     true,
		Mode:        schedule.ModeAllDays,
		WindowStart: schedule.MinuteOfDay(9, 0),
		WindowEnd:   schedule.MinuteOfDay(21, 0),
		PerDay:      3,
	}
}

func (f *fixture) writePrefs(t *testing.T, p schedule.Preferences) {
	t.Helper()
	if err := f.store.WritePreferences(context.Background(), p); err != nil {
		t.Fatalf("write preferences: %v", err)
	}
}

func TestScheduleNextPlansFirstSlot(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())

	plan, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	if plan.State != PlanPlanned {
		t.Fatalf("state = %q, want %q", plan.State, PlanPlanned)
	}
	if plan.UnitID != "delivery:2026-08-24:00" {
		t.Fatalf("unit = %q", plan.UnitID)
	}
	if want := at(11, 0); !plan.At.Equal(want) {
		t.Fatalf("at = %v, want %v", plan.At, want)
	}

	u, ok := f.units.get(plan.UnitID)
	if !ok {
		t.Fatalf("unit %q not armed", plan.UnitID)
	}
	if u.Day != content.DayKeyOf(monday) || u.SlotIndex != 0 {
		t.Fatalf("armed unit = %+v", u)
	}
}

func TestScheduleNextIsIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())

	first, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second != first {
		t.Fatalf("plans differ: %+v vs %+v", second, first)
	}
	if got := f.units.arms(); got != 1 {
		t.Fatalf("arm calls = %d, want 1", got)
	}
}

func TestScheduleNextWithoutPreferences(t *testing.T) {
	f := newFixture(t, 3)

	plan, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	if plan.State != PlanDisabled {
		t.Fatalf("state = %q, want %q", plan.State, PlanDisabled)
	}
	if f.units.count() != 0 {
		t.Fatalf("units armed while disabled")
	}
}

func TestScheduleNextDisabled(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())
	if _, err := f.o.ScheduleNext(context.Background()); err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	if f.units.count() != 1 {
		t.Fatalf("precondition: want one armed unit")
	}

	// Disabling through the store alone must still clear the plan on the
	// next pass; a unit armed under the old preferences may not fire.
	p := defaultPrefs()
	p.Enabled = false
	f.writePrefs(t, p)

	plan, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	if plan.State != PlanDisabled {
		t.Fatalf("state = %q, want %q", plan.State, PlanDisabled)
	}
	if f.units.count() != 0 {
		t.Fatalf("disabled ScheduleNext left %d units armed", f.units.count())
	}
}

func TestScheduleNextNoSlot(t *testing.T) {
	f := newFixture(t, 3)
	p := defaultPrefs()
	p.Mode = schedule.ModeCustom // empty custom set: plan produces nothing
	f.writePrefs(t, p)

	plan, err := f.o.ScheduleNext(context.Background())
	if err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	if plan.State != PlanNoSlot {
		t.Fatalf("state = %q, want %q", plan.State, PlanNoSlot)
	}
	if f.units.count() != 0 {
		t.Fatalf("units armed without a slot")
	}
}

func TestHandleFireDeliversAndChains(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())

	unit := deferred.Unit{
		ID:  "delivery:2026-08-24:00",
		At:  at(11, 0),
		Day: content.DayKeyOf(monday),
	}
	f.clock.Set(at(11, 0))

	if err := f.o.HandleFire(context.Background(), unit); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	if f.sender.count() != 1 {
		t.Fatalf("sent = %d, want 1", f.sender.count())
	}
	if got := f.sender.last().Record.SlotID; got != unit.ID {
		t.Fatalf("record slot = %q, want %q", got, unit.ID)
	}

	recs, err := f.store.Deliveries(context.Background(), 0)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(recs))
	}

	next, ok := f.units.get("delivery:2026-08-24:01")
	if !ok {
		t.Fatalf("successor not armed, pending: %+v", f.units.Pending())
	}
	if want := at(15, 0); !next.At.Equal(want) {
		t.Fatalf("successor at = %v, want %v", next.At, want)
	}
}

func TestHandleFireExhaustedStillChains(t *testing.T) {
	f := newFixture(t, 0)
	f.writePrefs(t, defaultPrefs())

	unit := deferred.Unit{ID: "delivery:2026-08-24:00", At: at(11, 0), Day: content.DayKeyOf(monday)}
	f.clock.Set(at(11, 0))

	if err := f.o.HandleFire(context.Background(), unit); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}
	if f.sender.count() != 0 {
		t.Fatalf("sent = %d, want 0 on empty catalog", f.sender.count())
	}
	if _, ok := f.units.get("delivery:2026-08-24:01"); !ok {
		t.Fatalf("chain broken by exhaustion, pending: %+v", f.units.Pending())
	}
}

func TestHandleFireSkipsReplayedUnit(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())

	unit := deferred.Unit{ID: "delivery:2026-08-24:00", At: at(11, 0), Day: content.DayKeyOf(monday)}
	rec := content.DeliveryRecord{
		ID:     "r1",
		ItemID: "i0",
		At:     at(11, 0),
		Day:    unit.Day,
		SlotID: unit.ID,
		Status: content.StatusDelivered,
	}
	if err := f.store.AppendDelivery(context.Background(), rec); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	f.clock.Set(at(11, 5))
	if err := f.o.HandleFire(context.Background(), unit); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	if f.sender.count() != 0 {
		t.Fatalf("replayed unit delivered again")
	}
	recs, _ := f.store.Deliveries(context.Background(), 0)
	if len(recs) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(recs))
	}
	if _, ok := f.units.get("delivery:2026-08-24:01"); !ok {
		t.Fatalf("replay must still plan the successor")
	}
}

func TestHandleFireSkipsReplayBuriedByManualBurst(t *testing.T) {
	f := newFixture(t, 16)
	f.writePrefs(t, defaultPrefs())

	unit := deferred.Unit{ID: "delivery:2026-08-24:00", At: at(10, 0), Day: content.DayKeyOf(monday)}
	rec := content.DeliveryRecord{
		ID:     "r0",
		ItemID: "i0",
		At:     at(10, 0),
		Day:    unit.Day,
		SlotID: unit.ID,
		Status: content.StatusDelivered,
	}
	if err := f.store.AppendDelivery(context.Background(), rec); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	// A burst of manual deliveries lands on top of the slot's ledger row
	// before the crashed unit replays.
	for i := 1; i <= 12; i++ {
		r := content.DeliveryRecord{
			ID:     fmt.Sprintf("r%d", i),
			ItemID: content.ItemID(fmt.Sprintf("i%d", i)),
			At:     at(10, i),
			Day:    unit.Day,
			SlotID: content.ManualSlotID(),
			Status: content.StatusDelivered,
		}
		if err := f.store.AppendDelivery(context.Background(), r); err != nil {
			t.Fatalf("manual row %d: %v", i, err)
		}
	}

	f.clock.Set(at(11, 5))
	if err := f.o.HandleFire(context.Background(), unit); err != nil {
		t.Fatalf("HandleFire: %v", err)
	}

	if f.sender.count() != 0 {
		t.Fatalf("replayed unit delivered again despite its ledger row")
	}
	recs, _ := f.store.Deliveries(context.Background(), 0)
	if len(recs) != 13 {
		t.Fatalf("ledger rows = %d, want 13", len(recs))
	}
}

func TestHandleFireSendFailureStillChains(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())
	f.sender.err = errors.New("queue full")

	unit := deferred.Unit{ID: "delivery:2026-08-24:00", At: at(11, 0), Day: content.DayKeyOf(monday)}
	f.clock.Set(at(11, 0))

	if err := f.o.HandleFire(context.Background(), unit); err == nil {
		t.Fatalf("want error when enqueue fails")
	}

	// The pick is already recorded; only the send was lost.
	recs, _ := f.store.Deliveries(context.Background(), 0)
	if len(recs) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(recs))
	}
	if _, ok := f.units.get("delivery:2026-08-24:01"); !ok {
		t.Fatalf("send failure must still plan the successor")
	}
}

func TestTriggerManualLeavesPlanAlone(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())
	if _, err := f.o.ScheduleNext(context.Background()); err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}
	before := f.units.Pending()

	tr, err := f.o.TriggerManual(context.Background())
	if err != nil {
		t.Fatalf("TriggerManual: %v", err)
	}
	if tr.State != TriggerDelivered {
		t.Fatalf("state = %q, want %q", tr.State, TriggerDelivered)
	}
	if !content.IsManualSlotID(tr.Delivery.Record.SlotID) {
		t.Fatalf("slot id = %q, want manual namespace", tr.Delivery.Record.SlotID)
	}
	if f.sender.count() != 1 {
		t.Fatalf("sent = %d, want 1", f.sender.count())
	}

	after := f.units.Pending()
	if len(after) != len(before) || after[0].ID != before[0].ID || !after[0].At.Equal(before[0].At) {
		t.Fatalf("manual trigger disturbed the plan: %+v vs %+v", after, before)
	}
	if got := f.units.arms(); got != 1 {
		t.Fatalf("arm calls = %d, want 1", got)
	}
}

func TestTriggerManualExhausted(t *testing.T) {
	f := newFixture(t, 0)

	tr, err := f.o.TriggerManual(context.Background())
	if err != nil {
		t.Fatalf("TriggerManual: %v", err)
	}
	if tr.State != TriggerExhausted {
		t.Fatalf("state = %q, want %q", tr.State, TriggerExhausted)
	}
	if f.sender.count() != 0 {
		t.Fatalf("sent on empty catalog")
	}
}

func TestApplyPreferencesRejectsInvalid(t *testing.T) {
	f := newFixture(t, 3)
	p := defaultPrefs()
	p.PerDay = 0

	if _, err := f.o.ApplyPreferences(context.Background(), p); !errors.Is(err, schedule.ErrInvalidPreferences) {
		t.Fatalf("err = %v, want ErrInvalidPreferences", err)
	}
	if _, ok, _ := f.store.ReadPreferences(context.Background()); ok {
		t.Fatalf("invalid preferences were persisted")
	}
}

func TestApplyPreferencesNoOpOnEqual(t *testing.T) {
	f := newFixture(t, 3)
	p := defaultPrefs()

	changed, err := f.o.ApplyPreferences(context.Background(), p)
	if err != nil || !changed {
		t.Fatalf("first apply: changed=%v err=%v", changed, err)
	}
	arms := f.units.arms()

	changed, err = f.o.ApplyPreferences(context.Background(), p)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if changed {
		t.Fatalf("equal preferences reported as a change")
	}
	if got := f.units.arms(); got != arms {
		t.Fatalf("no-op apply re-armed units: %d -> %d", arms, got)
	}
}

func TestApplyPreferencesReplacesPlan(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.o.ApplyPreferences(context.Background(), defaultPrefs()); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	p := defaultPrefs()
	p.WindowStart = schedule.MinuteOfDay(13, 0)
	p.WindowEnd = schedule.MinuteOfDay(21, 0)
	p.PerDay = 1

	changed, err := f.o.ApplyPreferences(context.Background(), p)
	if err != nil || !changed {
		t.Fatalf("second apply: changed=%v err=%v", changed, err)
	}

	pending := f.units.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if want := at(17, 0); !pending[0].At.Equal(want) {
		t.Fatalf("replanned at = %v, want %v", pending[0].At, want)
	}
}

func TestApplyPreferencesDisableCancels(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.o.ApplyPreferences(context.Background(), defaultPrefs()); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if f.units.count() != 1 {
		t.Fatalf("precondition: want one armed unit")
	}

	p := defaultPrefs()
	p.Enabled = false
	changed, err := f.o.ApplyPreferences(context.Background(), p)
	if err != nil || !changed {
		t.Fatalf("disable: changed=%v err=%v", changed, err)
	}
	if f.units.count() != 0 {
		t.Fatalf("disable left units armed")
	}
}

func TestRescheduleAllReplansFromNow(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())
	if _, err := f.o.ScheduleNext(context.Background()); err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}

	// Past the first slot: a full replan must target the second one.
	f.clock.Set(at(12, 0))
	plan, err := f.o.RescheduleAll(context.Background())
	if err != nil {
		t.Fatalf("RescheduleAll: %v", err)
	}
	if plan.UnitID != "delivery:2026-08-24:01" {
		t.Fatalf("unit = %q", plan.UnitID)
	}
	if f.units.count() != 1 {
		t.Fatalf("pending = %d, want 1", f.units.count())
	}
}

func TestEnsurePlannedKeepsLiveChain(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())
	if _, err := f.o.ScheduleNext(context.Background()); err != nil {
		t.Fatalf("ScheduleNext: %v", err)
	}

	// Even past due, the armed unit is a pending catch-up, not garbage.
	f.clock.Set(at(12, 0))
	plan, err := f.o.EnsurePlanned(context.Background())
	if err != nil {
		t.Fatalf("EnsurePlanned: %v", err)
	}
	if plan.UnitID != "delivery:2026-08-24:00" || !plan.At.Equal(at(11, 0)) {
		t.Fatalf("plan = %+v, want the existing unit", plan)
	}
	if got := f.units.arms(); got != 1 {
		t.Fatalf("arm calls = %d, want 1", got)
	}
}

func TestEnsurePlannedPlansWhenEmpty(t *testing.T) {
	f := newFixture(t, 3)
	f.writePrefs(t, defaultPrefs())

	plan, err := f.o.EnsurePlanned(context.Background())
	if err != nil {
		t.Fatalf("EnsurePlanned: %v", err)
	}
	if plan.State != PlanPlanned || f.units.count() != 1 {
		t.Fatalf("plan = %+v, pending = %d", plan, f.units.count())
	}
}

func TestEnsurePlannedClearsUnitsWhenDisabled(t *testing.T) {
	f := newFixture(t, 3)
	p := defaultPrefs()
	p.Enabled = false
	f.writePrefs(t, p)
	f.units.units["delivery:2026-08-24:00"] = deferred.Unit{ID: "delivery:2026-08-24:00", At: at(11, 0)}

	plan, err := f.o.EnsurePlanned(context.Background())
	if err != nil {
		t.Fatalf("EnsurePlanned: %v", err)
	}
	if plan.State != PlanDisabled {
		t.Fatalf("state = %q, want %q", plan.State, PlanDisabled)
	}
	if f.units.count() != 0 {
		t.Fatalf("stale units survived disable")
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, 3)
	if _, err := f.o.ApplyPreferences(context.Background(), defaultPrefs()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	snap := f.o.Snapshot(context.Background())
	if !snap.Enabled || snap.Mode != string(schedule.ModeAllDays) {
		t.Fatalf("snapshot prefs = %+v", snap)
	}
	if snap.Window != "09:00-21:00" || snap.PerDay != 3 {
		t.Fatalf("snapshot window = %q per-day = %d", snap.Window, snap.PerDay)
	}
	if snap.Items != 3 || snap.Unseen != 3 {
		t.Fatalf("snapshot counts = %d/%d, want 3/3", snap.Unseen, snap.Items)
	}
	if snap.Pending != 1 || snap.NextUnit != "delivery:2026-08-24:00" || !snap.NextAt.Equal(at(11, 0)) {
		t.Fatalf("snapshot plan = %+v", snap)
	}
}

func TestPlanEventsPublished(t *testing.T) {
	bus := eventbus.New()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	f := newFixtureBus(t, 3, bus)
	if _, err := f.o.ApplyPreferences(context.Background(), defaultPrefs()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	p := defaultPrefs()
	p.Enabled = false
	if _, err := f.o.ApplyPreferences(context.Background(), p); err != nil {
		t.Fatalf("disable: %v", err)
	}

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case e := <-ch:
			if e.Type == "plan.scheduled" || e.Type == "plan.canceled" {
				got = append(got, e.Type)
			}
		case <-timeout:
			t.Fatalf("events = %v, want plan.scheduled then plan.canceled", got)
		}
	}
	if got[0] != "plan.scheduled" || got[1] != "plan.canceled" {
		t.Fatalf("events = %v", got)
	}
}
