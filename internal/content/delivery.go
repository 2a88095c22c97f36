package content

import (
	"time"
)

// DeliveryStatus tracks what happened to a delivered item after the
// ledger write. The ledger row exists (and blocks re-selection) in every
// status; the status only refines how the user reacted.
type DeliveryStatus string

const (
	StatusDelivered    DeliveryStatus = "delivered"
	StatusAcknowledged DeliveryStatus = "acknowledged"
	StatusDismissed    DeliveryStatus = "dismissed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusDelivered, StatusAcknowledged, StatusDismissed:
		return true
	}
	return false
}

// DeliveryRecord is one row of the delivery ledger.
//
// SlotID is opaque here: scheduled deliveries carry the deterministic
// SlotKey id ("delivery:2026-08-24:02"), manual ones carry
// "manual:<uuid>". The ledger never parses it back.
type DeliveryRecord struct {
	ID     string         `json:"id"` // uuid
	ItemID ItemID         `json:"item_id"`
	At     time.Time      `json:"at"`
	Day    DayKey         `json:"day"`
	SlotID string         `json:"slot_id"`
	Status DeliveryStatus `json:"status"`
}
