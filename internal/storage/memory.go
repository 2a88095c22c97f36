package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
)

// memStore is the ephemeral driver. Same contract as sqlite, nothing
// survives Close. Used by tests and -storage.driver=memory runs.
type memStore struct {
	mu sync.Mutex

	order      []content.ItemID // catalog insertion order
	items      map[content.ItemID]content.ContentItem
	deliveries []content.DeliveryRecord
	seen       map[content.ItemID]struct{}

	prefs    schedule.Preferences
	hasPrefs bool

	pending map[string]PendingUnit
}

func NewMemory() Store {
	return &memStore{
		items:   map[content.ItemID]content.ContentItem{},
		seen:    map[content.ItemID]struct{}{},
		pending: map[string]PendingUnit{},
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) SyncCatalog(_ context.Context, items []content.ContentItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return 0, err
		}
		if _, exists := s.items[it.ID]; exists {
			continue
		}
		s.items[it.ID] = it
		s.order = append(s.order, it.ID)
		added++
	}
	return added, nil
}

func (s *memStore) Item(_ context.Context, id content.ItemID) (content.ContentItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok, nil
}

func (s *memStore) CountItems(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *memStore) UnseenItems(context.Context) ([]content.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []content.ContentItem
	for _, id := range s.order {
		if _, seen := s.seen[id]; seen {
			continue
		}
		out = append(out, s.items[id])
	}
	return out, nil
}

func (s *memStore) CountUnseen(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) - len(s.seen), nil
}

func (s *memStore) AppendDelivery(_ context.Context, rec content.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[rec.ItemID]; !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, rec.ItemID)
	}
	if _, dup := s.seen[rec.ItemID]; dup {
		return fmt.Errorf("%w (item=%s)", ErrItemDelivered, rec.ItemID)
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if rec.Status == "" {
		rec.Status = content.StatusDelivered
	}
	s.deliveries = append(s.deliveries, rec)
	s.seen[rec.ItemID] = struct{}{}
	return nil
}

func (s *memStore) Deliveries(_ context.Context, limit int) ([]content.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]content.DeliveryRecord, len(s.deliveries))
	copy(out, s.deliveries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SlotDelivered(_ context.Context, slotID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.deliveries {
		if rec.SlotID == slotID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) UpdateDeliveryStatus(_ context.Context, id string, st content.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.deliveries {
		if s.deliveries[i].ID == id {
			s.deliveries[i].Status = st
			return nil
		}
	}
	return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
}

func (s *memStore) PurgeDeliveries(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.deliveries)
	s.deliveries = nil
	s.seen = map[content.ItemID]struct{}{}
	return n, nil
}

func (s *memStore) ReadPreferences(context.Context) (schedule.Preferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs, s.hasPrefs, nil
}

func (s *memStore) WritePreferences(_ context.Context, p schedule.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	s.hasPrefs = true
	return nil
}

func (s *memStore) SavePendingUnit(_ context.Context, u PendingUnit) error {
	if u.ID == "" {
		return fmt.Errorf("storage: pending unit id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[u.ID] = u
	return nil
}

func (s *memStore) DeletePendingUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (s *memStore) ListPendingUnits(context.Context) ([]PendingUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingUnit, 0, len(s.pending))
	for _, u := range s.pending {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (s *memStore) ClearPendingUnits(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = map[string]PendingUnit{}
	return n, nil
}
