package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// Store is the persistence API shared by the selector, the orchestrator
// and the deferred scheduler. Implementations must be safe for
// concurrent use; cross-call atomicity (select then record) is the
// selector's job, not the store's.
type Store interface {
	// SyncCatalog inserts items that are not yet in the catalog and
	// reports how many were added. Existing rows and their ledger state
	// are never touched: a removed line in the seed file must not
	// resurrect or delete history.
	SyncCatalog(ctx context.Context, items []content.ContentItem) (added int, err error)
	Item(ctx context.Context, id content.ItemID) (content.ContentItem, bool, error)
	CountItems(ctx context.Context) (int, error)

	// UnseenItems returns every catalog item without a ledger row, in
	// stable catalog order.
	UnseenItems(ctx context.Context) ([]content.ContentItem, error)
	CountUnseen(ctx context.Context) (int, error)
	AppendDelivery(ctx context.Context, rec content.DeliveryRecord) error
	// Deliveries returns the newest records first; limit <= 0 means all.
	Deliveries(ctx context.Context, limit int) ([]content.DeliveryRecord, error)
	// SlotDelivered reports whether the ledger already holds a row for
	// the given slot id, however old that row is.
	SlotDelivered(ctx context.Context, slotID string) (bool, error)
	UpdateDeliveryStatus(ctx context.Context, id string, st content.DeliveryStatus) error
	// PurgeDeliveries clears the ledger, making every item selectable
	// again. Returns the number of removed rows.
	PurgeDeliveries(ctx context.Context) (int, error)

	// ReadPreferences reports ok=false when no preferences were ever
	// written (fresh database).
	ReadPreferences(ctx context.Context) (p schedule.Preferences, ok bool, err error)
	WritePreferences(ctx context.Context, p schedule.Preferences) error

	SavePendingUnit(ctx context.Context, u PendingUnit) error
	DeletePendingUnit(ctx context.Context, id string) error
	ListPendingUnits(ctx context.Context) ([]PendingUnit, error)
	ClearPendingUnits(ctx context.Context) (int, error)

	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
