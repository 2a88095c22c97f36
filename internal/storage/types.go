package storage

import (
	"errors"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
)

var (
	// ErrItemDelivered reports a ledger append for an item that already
	// has a row. The unique index backs this even if a caller bypasses
	// the selector's lock.
	ErrItemDelivered = errors.New("storage: item already delivered")

	// ErrNotFound reports an update against a missing row.
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
//   - "memory": ephemeral in-process store (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PendingUnit is a scheduled work unit waiting to fire. Persisted so a
// restart can re-arm the timer chain instead of losing it.
type PendingUnit struct {
	ID        string
	Day       content.DayKey
	SlotIndex int
	At        time.Time
}

// Key reconstructs the composite slot key this unit was derived from.
func (u PendingUnit) Key() content.SlotKey {
	return content.SlotKey{Day: u.Day, Index: u.SlotIndex}
}
