// Package selector picks the next unseen catalog item and records its
// delivery. The pick and the ledger append happen under one lock, so
// two concurrent triggers can never deliver the same item.
package selector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/eventbus"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// Request describes one delivery attempt. The caller owns slot naming
// and day attribution; the selector only owns the pick.
type Request struct {
	SlotID string         // "delivery:<day>:<idx>" or "manual:<uuid>"
	At     time.Time      // delivery instant; zero means now
	Day    content.DayKey // planner-tz day; zero means At's local day
	Bias   []string       // soft tag preference, may be empty
}

// Delivery is a successful pick with its ledger row.
type Delivery struct {
	Record content.DeliveryRecord
	Item   content.ContentItem
}

// SelectionEvent is the bus payload for delivery.recorded,
// catalog.exhausted and ledger.reset.
type SelectionEvent struct {
	ItemID string    `json:"item_id,omitempty"`
	SlotID string    `json:"slot_id,omitempty"`
	Unseen int       `json:"unseen"`
	Reset  int       `json:"reset,omitempty"`
	At     time.Time `json:"at"`
}

type Selector struct {
	mu    sync.Mutex
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus

	rng *rand.Rand       // guarded by mu
	now func() time.Time // test hook
}

type Option func(*Selector)

// WithRand injects a deterministic source for tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store storage.Store, log logx.Logger, bus eventbus.Bus, opts ...Option) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Selector{
		store: store,
		log:   log.With(logx.String("comp", "selector")),
		bus:   bus,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Deliver atomically picks one unseen item and appends its ledger row.
// ok=false means the catalog is exhausted, which is a normal outcome:
// nothing was written and no error is returned.
func (s *Selector) Deliver(ctx context.Context, req Request) (Delivery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	day := req.Day
	if day.IsZero() {
		day = content.DayKeyOf(at)
	}

	item, ok, err := s.pickLocked(ctx, req.Bias)
	if err != nil {
		return Delivery{}, false, err
	}
	if !ok {
		s.noteExhausted(ctx, req.SlotID, at)
		return Delivery{}, false, nil
	}

	rec := content.DeliveryRecord{
		ID:     uuid.NewString(),
		ItemID: item.ID,
		At:     at,
		Day:    day,
		SlotID: req.SlotID,
		Status: content.StatusDelivered,
	}
	if err := s.store.AppendDelivery(ctx, rec); err != nil {
		return Delivery{}, false, err
	}

	unseen, _ := s.store.CountUnseen(ctx)
	s.log.Info("delivery recorded",
		logx.String("item", string(item.ID)),
		logx.String("slot", req.SlotID),
		logx.Int("unseen_left", unseen))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "delivery.recorded", Time: at, Data: SelectionEvent{
			ItemID: string(item.ID), SlotID: req.SlotID, Unseen: unseen, At: at,
		}})
	}
	return Delivery{Record: rec, Item: item}, true, nil
}

// Peek returns the item Deliver would likely choose, without reserving
// it. Two Peeks (or a Peek then Deliver) may disagree: the pick is
// random and nothing is locked across calls.
func (s *Selector) Peek(ctx context.Context, bias []string) (content.ContentItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pickLocked(ctx, bias)
}

func (s *Selector) IsExhausted(ctx context.Context) (bool, error) {
	n, err := s.store.CountUnseen(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// ResetLedger clears delivery history so every item becomes selectable
// again. Returns the number of cleared records.
func (s *Selector) ResetLedger(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.PurgeDeliveries(ctx)
	if err != nil {
		return 0, err
	}
	unseen, _ := s.store.CountUnseen(ctx)
	s.log.Info("ledger reset", logx.Int("cleared", n), logx.Int("unseen", unseen))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "ledger.reset", Data: SelectionEvent{Reset: n, Unseen: unseen, At: s.now()}})
	}
	return n, nil
}

// pickLocked chooses uniformly among unseen items, preferring those
// matching the bias tags when any do. The bias is soft: it narrows the
// pool but never empties it.
func (s *Selector) pickLocked(ctx context.Context, bias []string) (content.ContentItem, bool, error) {
	unseen, err := s.store.UnseenItems(ctx)
	if err != nil {
		return content.ContentItem{}, false, err
	}
	if len(unseen) == 0 {
		return content.ContentItem{}, false, nil
	}

	pool := unseen
	if len(bias) > 0 {
		var matched []content.ContentItem
		for _, it := range unseen {
			if it.HasAnyTag(bias) {
				matched = append(matched, it)
			}
		}
		if len(matched) > 0 {
			pool = matched
		}
	}
	return pool[s.rng.Intn(len(pool))], true, nil
}

func (s *Selector) noteExhausted(ctx context.Context, slotID string, at time.Time) {
	total, _ := s.store.CountItems(ctx)
	s.log.Warn("catalog exhausted, nothing to deliver",
		logx.String("slot", slotID),
		logx.Int("catalog_size", total))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "catalog.exhausted", Time: at, Data: SelectionEvent{
			SlotID: slotID, Unseen: 0, At: at,
		}})
	}
}
