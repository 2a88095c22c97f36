package delivery

import "time"

// Config controls the outbound send pipeline.
type Config struct {
	// ChatID is the telegram chat deliveries go to. ThreadID is the
	// optional forum topic.
	ChatID   int64
	ThreadID int

	Workers    int
	QueueSize  int
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// SendTimeout bounds a single adapter call.
	SendTimeout time.Duration
}

type HistoryItem struct {
	At     time.Time
	ItemID string
	SlotID string
	Error  string
}

// SendEvent is emitted on the event bus for pipeline lifecycle events.
type SendEvent struct {
	RecordID string    `json:"record_id"`
	ItemID   string    `json:"item_id"`
	SlotID   string    `json:"slot_id"`
	ChatID   int64     `json:"chat_id"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
