package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// eachStore runs a subtest against both drivers so they stay
// behaviorally interchangeable.
func eachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		st := NewMemory()
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "coach.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})
}

func item(id, text string, tags ...string) content.ContentItem {
	return content.ContentItem{ID: content.ItemID(id), Text: text, Tags: tags}
}

func seedThree(t *testing.T, st Store) {
	t.Helper()
	added, err := st.SyncCatalog(context.Background(), []content.ContentItem{
		item("a", "alpha", "focus"),
		item("b", "bravo"),
		item("c", "charlie", "calm", "evening"),
	})
	if err != nil {
		t.Fatalf("SyncCatalog: %v", err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3", added)
	}
}

func TestSyncCatalogInsertOnly(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		seedThree(t, st)

		// Re-sync with one changed text and one new item: existing rows
		// must keep their original text.
		added, err := st.SyncCatalog(ctx, []content.ContentItem{
			item("a", "ALPHA CHANGED"),
			item("d", "delta"),
		})
		if err != nil {
			t.Fatalf("SyncCatalog: %v", err)
		}
		if added != 1 {
			t.Fatalf("added = %d, want 1", added)
		}
		got, ok, err := st.Item(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("Item(a) = %v, %v", ok, err)
		}
		if got.Text != "alpha" {
			t.Fatalf("existing item mutated: %q", got.Text)
		}
		if n, _ := st.CountItems(ctx); n != 4 {
			t.Fatalf("CountItems = %d, want 4", n)
		}
	})
}

func TestLedgerBlocksRepeats(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		seedThree(t, st)

		rec := content.DeliveryRecord{
			ID:     "r1",
			ItemID: "b",
			At:     time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
			Day:    content.DayKey{Year: 2026, Month: time.August, Day: 24},
			SlotID: "delivery:2026-08-24:00",
			Status: content.StatusDelivered,
		}
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}

		dup := rec
		dup.ID = "r2"
		if err := st.AppendDelivery(ctx, dup); !errors.Is(err, ErrItemDelivered) {
			t.Fatalf("duplicate append error = %v, want ErrItemDelivered", err)
		}

		unseen, err := st.UnseenItems(ctx)
		if err != nil {
			t.Fatalf("UnseenItems: %v", err)
		}
		if len(unseen) != 2 {
			t.Fatalf("unseen = %d, want 2", len(unseen))
		}
		for _, it := range unseen {
			if it.ID == "b" {
				t.Fatal("delivered item still reported unseen")
			}
		}
		if n, _ := st.CountUnseen(ctx); n != 2 {
			t.Fatalf("CountUnseen = %d, want 2", n)
		}
	})
}

func TestDeliveriesOrderAndStatus(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		seedThree(t, st)

		day := content.DayKey{Year: 2026, Month: time.August, Day: 24}
		base := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			rec := content.DeliveryRecord{
				ID:     "r" + id,
				ItemID: content.ItemID(id),
				At:     base.Add(time.Duration(i) * time.Hour),
				Day:    day,
				SlotID: "delivery:2026-08-24:00",
			}
			if err := st.AppendDelivery(ctx, rec); err != nil {
				t.Fatalf("AppendDelivery(%s): %v", id, err)
			}
		}

		recs, err := st.Deliveries(ctx, 2)
		if err != nil {
			t.Fatalf("Deliveries: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("len = %d, want 2", len(recs))
		}
		if recs[0].ItemID != "c" || recs[1].ItemID != "b" {
			t.Fatalf("order wrong: %s, %s", recs[0].ItemID, recs[1].ItemID)
		}
		// Default status is stamped when absent.
		if recs[0].Status != content.StatusDelivered {
			t.Fatalf("status = %s, want delivered", recs[0].Status)
		}

		if err := st.UpdateDeliveryStatus(ctx, "ra", content.StatusAcknowledged); err != nil {
			t.Fatalf("UpdateDeliveryStatus: %v", err)
		}
		if err := st.UpdateDeliveryStatus(ctx, "nope", content.StatusDismissed); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing update error = %v, want ErrNotFound", err)
		}

		all, _ := st.Deliveries(ctx, 0)
		if len(all) != 3 {
			t.Fatalf("all = %d, want 3", len(all))
		}
	})
}

func TestSlotDelivered(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		seedThree(t, st)

		if got, err := st.SlotDelivered(ctx, "delivery:2026-08-24:00"); err != nil || got {
			t.Fatalf("empty ledger SlotDelivered = %v, %v; want false", got, err)
		}

		day := content.DayKey{Year: 2026, Month: time.August, Day: 24}
		base := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
		slot := "delivery:2026-08-24:00"
		for i, id := range []string{"a", "b", "c"} {
			rec := content.DeliveryRecord{
				ID:     "r" + id,
				ItemID: content.ItemID(id),
				At:     base.Add(time.Duration(i) * time.Hour),
				Day:    day,
				SlotID: content.ManualSlotID(),
			}
			if id == "a" {
				rec.SlotID = slot
			}
			if err := st.AppendDelivery(ctx, rec); err != nil {
				t.Fatalf("AppendDelivery(%s): %v", id, err)
			}
		}

		// The oldest row must still be found, not just recent ones.
		if got, err := st.SlotDelivered(ctx, slot); err != nil || !got {
			t.Fatalf("SlotDelivered(%s) = %v, %v; want true", slot, got, err)
		}
		if got, err := st.SlotDelivered(ctx, "delivery:2026-08-24:01"); err != nil || got {
			t.Fatalf("SlotDelivered(other) = %v, %v; want false", got, err)
		}
	})
}

func TestPurgeDeliveriesResetsLedger(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		seedThree(t, st)

		rec := content.DeliveryRecord{
			ID: "r1", ItemID: "a",
			At:  time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
			Day: content.DayKey{Year: 2026, Month: time.August, Day: 24}, SlotID: "x",
		}
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}

		n, err := st.PurgeDeliveries(ctx)
		if err != nil || n != 1 {
			t.Fatalf("PurgeDeliveries = %d, %v; want 1, nil", n, err)
		}
		if got, _ := st.CountUnseen(ctx); got != 3 {
			t.Fatalf("CountUnseen after purge = %d, want 3", got)
		}
		// The same item is selectable (and appendable) again.
		rec.ID = "r2"
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("append after purge: %v", err)
		}
	})
}

func TestPreferencesRoundTrip(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		if _, ok, err := st.ReadPreferences(ctx); err != nil || ok {
			t.Fatalf("fresh read = ok=%v err=%v, want absent", ok, err)
		}

		p := schedule.Preferences{
			Enabled:     true,
			Mode:        schedule.ModeCustom,
			CustomDays:  schedule.NewDaySet(time.Monday, time.Thursday),
			WindowStart: schedule.MinuteOfDay(8, 30),
			WindowEnd:   schedule.MinuteOfDay(20, 0),
			PerDay:      2,
		}
		if err := st.WritePreferences(ctx, p); err != nil {
			t.Fatalf("WritePreferences: %v", err)
		}
		got, ok, err := st.ReadPreferences(ctx)
		if err != nil || !ok {
			t.Fatalf("ReadPreferences = ok=%v err=%v", ok, err)
		}
		if got != p {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, p)
		}

		// Overwrite wins.
		p.PerDay = 5
		if err := st.WritePreferences(ctx, p); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		got, _, _ = st.ReadPreferences(ctx)
		if got.PerDay != 5 {
			t.Fatalf("PerDay = %d, want 5", got.PerDay)
		}

		// Structural violations never reach disk.
		bad := p
		bad.PerDay = 0
		if err := st.WritePreferences(ctx, bad); !errors.Is(err, schedule.ErrInvalidPreferences) {
			t.Fatalf("invalid write error = %v", err)
		}
	})
}

func TestPendingUnits(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		day := content.DayKey{Year: 2026, Month: time.August, Day: 25}

		later := PendingUnit{ID: "delivery:2026-08-25:01", Day: day, SlotIndex: 1, At: time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)}
		early := PendingUnit{ID: "delivery:2026-08-25:00", Day: day, SlotIndex: 0, At: time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)}
		for _, u := range []PendingUnit{later, early} {
			if err := st.SavePendingUnit(ctx, u); err != nil {
				t.Fatalf("SavePendingUnit: %v", err)
			}
		}

		units, err := st.ListPendingUnits(ctx)
		if err != nil {
			t.Fatalf("ListPendingUnits: %v", err)
		}
		if len(units) != 2 || units[0].ID != early.ID {
			t.Fatalf("units = %+v, want earliest first", units)
		}
		if units[0].Key() != (content.SlotKey{Day: day, Index: 0}) {
			t.Fatalf("Key() = %+v", units[0].Key())
		}

		// Upsert by id moves the instant instead of duplicating.
		early.At = early.At.Add(30 * time.Minute)
		if err := st.SavePendingUnit(ctx, early); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		units, _ = st.ListPendingUnits(ctx)
		if len(units) != 2 {
			t.Fatalf("after upsert len = %d, want 2", len(units))
		}

		if err := st.DeletePendingUnit(ctx, later.ID); err != nil {
			t.Fatalf("DeletePendingUnit: %v", err)
		}
		if n, err := st.ClearPendingUnits(ctx); err != nil || n != 1 {
			t.Fatalf("ClearPendingUnits = %d, %v; want 1", n, err)
		}
		if units, _ := st.ListPendingUnits(ctx); len(units) != 0 {
			t.Fatalf("units remain after clear: %+v", units)
		}
	})
}
