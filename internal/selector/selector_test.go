package selector

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/eventbus"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

func seeded(t *testing.T, n int) storage.Store {
	t.Helper()
	st := storage.NewMemory()
	items := make([]content.ContentItem, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		it := content.ContentItem{ID: content.ItemID(id), Text: "text " + id}
		if i%2 == 0 {
			it.Tags = []string{"focus"}
		}
		items = append(items, it)
	}
	if _, err := st.SyncCatalog(context.Background(), items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func newSelector(t *testing.T, st storage.Store) *Selector {
	t.Helper()
	return New(st, logx.Nop(), eventbus.New(), WithRand(rand.New(rand.NewSource(1))))
}

func TestDeliverNeverRepeats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := seeded(t, 5)
	s := newSelector(t, st)

	seen := map[content.ItemID]bool{}
	for i := 0; i < 5; i++ {
		d, ok, err := s.Deliver(ctx, Request{SlotID: "manual:test"})
		if err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("exhausted after %d of 5", i)
		}
		if seen[d.Item.ID] {
			t.Fatalf("item %s delivered twice", d.Item.ID)
		}
		seen[d.Item.ID] = true
		if d.Record.ItemID != d.Item.ID || d.Record.ID == "" {
			t.Fatalf("record malformed: %+v", d.Record)
		}
	}

	// Sixth call: exhausted, not an error, nothing written.
	_, ok, err := s.Deliver(ctx, Request{SlotID: "manual:test"})
	if err != nil {
		t.Fatalf("exhausted call errored: %v", err)
	}
	if ok {
		t.Fatal("expected exhaustion after catalog is spent")
	}
	if recs, _ := st.Deliveries(ctx, 0); len(recs) != 5 {
		t.Fatalf("ledger has %d rows, want 5", len(recs))
	}
}

func TestDeliverConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const n = 8
	st := seeded(t, n)
	s := newSelector(t, st)

	var wg sync.WaitGroup
	ids := make(chan content.ItemID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, ok, err := s.Deliver(ctx, Request{SlotID: "manual:race"})
			if err != nil || !ok {
				t.Errorf("Deliver = ok=%v err=%v", ok, err)
				return
			}
			ids <- d.Item.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[content.ItemID]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("item %s delivered twice under concurrency", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("delivered %d distinct items, want %d", len(seen), n)
	}
}

func TestDeliverBias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	_, _ = st.SyncCatalog(ctx, []content.ContentItem{
		{ID: "tagged", Text: "x", Tags: []string{"calm"}},
		{ID: "plain-1", Text: "y"},
		{ID: "plain-2", Text: "z"},
	})
	s := newSelector(t, st)

	// While a biased candidate exists, it wins.
	d, ok, err := s.Deliver(ctx, Request{SlotID: "manual:b", Bias: []string{"calm"}})
	if err != nil || !ok {
		t.Fatalf("Deliver = ok=%v err=%v", ok, err)
	}
	if d.Item.ID != "tagged" {
		t.Fatalf("biased pick = %s, want tagged", d.Item.ID)
	}

	// Bias is soft: once no match remains, untagged items still flow.
	d, ok, err = s.Deliver(ctx, Request{SlotID: "manual:b", Bias: []string{"calm"}})
	if err != nil || !ok {
		t.Fatalf("soft-bias Deliver = ok=%v err=%v", ok, err)
	}
	if d.Item.ID != "plain-1" && d.Item.ID != "plain-2" {
		t.Fatalf("fallback pick = %s", d.Item.ID)
	}
}

func TestDeliverUsesRequestInstant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := seeded(t, 1)
	s := newSelector(t, st)

	at := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	day := content.DayKey{Year: 2026, Month: time.August, Day: 24}
	d, ok, err := s.Deliver(ctx, Request{SlotID: "delivery:2026-08-24:00", At: at, Day: day})
	if err != nil || !ok {
		t.Fatalf("Deliver = ok=%v err=%v", ok, err)
	}
	if !d.Record.At.Equal(at) || d.Record.Day != day || d.Record.SlotID != "delivery:2026-08-24:00" {
		t.Fatalf("record = %+v", d.Record)
	}
}

func TestResetLedgerReopensCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := seeded(t, 2)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := New(st, logx.Nop(), bus, WithRand(rand.New(rand.NewSource(7))))

	for i := 0; i < 2; i++ {
		if _, ok, err := s.Deliver(ctx, Request{SlotID: "manual:r"}); err != nil || !ok {
			t.Fatalf("Deliver %d = ok=%v err=%v", i, ok, err)
		}
	}
	if exhausted, _ := s.IsExhausted(ctx); !exhausted {
		t.Fatal("expected exhaustion")
	}

	n, err := s.ResetLedger(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ResetLedger = %d, %v; want 2", n, err)
	}
	if exhausted, _ := s.IsExhausted(ctx); exhausted {
		t.Fatal("still exhausted after reset")
	}
	if _, ok, err := s.Deliver(ctx, Request{SlotID: "manual:r"}); err != nil || !ok {
		t.Fatalf("post-reset Deliver = ok=%v err=%v", ok, err)
	}

	// Bus saw recorded + reset events.
	var sawReset, sawRecorded bool
	for {
		select {
		case e := <-events:
			switch e.Type {
			case "ledger.reset":
				sawReset = true
			case "delivery.recorded":
				sawRecorded = true
			}
			continue
		default:
		}
		break
	}
	if !sawReset || !sawRecorded {
		t.Fatalf("events missed: reset=%v recorded=%v", sawReset, sawRecorded)
	}
}
