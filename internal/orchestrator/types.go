package orchestrator

import (
	"context"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/selector"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/deferred"
)

// Config carries the planner knobs. Preferences live in the store; this
// is only the environment around them.
type Config struct {
	// Timezone resolves day boundaries and window instants. Empty or
	// invalid falls back to the host timezone.
	Timezone string

	// LookaheadDays bounds the slot search. Zero means the schedule
	// package default.
	LookaheadDays int

	// MinSlotGap is the advisory minimum spacing between slots of one
	// day. Tighter windows plan anyway and log a warning. Zero means
	// the schedule package default.
	MinSlotGap time.Duration

	// TagBias softly prefers items carrying any of these tags.
	TagBias []string
}

// PlanState classifies the outcome of a planning pass.
type PlanState string

const (
	// PlanPlanned means a unit is armed for the returned instant.
	PlanPlanned PlanState = "planned"
	// PlanDisabled means preferences are absent or switched off.
	PlanDisabled PlanState = "disabled"
	// PlanNoSlot means no eligible instant exists within the horizon.
	PlanNoSlot PlanState = "no_slot"
)

// Plan is the result of ScheduleNext and friends.
type Plan struct {
	State  PlanState
	UnitID string
	At     time.Time
}

// TriggerState classifies the outcome of an on-demand delivery.
type TriggerState string

const (
	TriggerDelivered TriggerState = "delivered"
	TriggerExhausted TriggerState = "exhausted"
)

// Trigger is the result of TriggerManual. Delivery is only populated in
// the delivered state.
type Trigger struct {
	State    TriggerState
	Delivery selector.Delivery
}

// PlanEvent is the bus payload for plan.scheduled and plan.canceled.
type PlanEvent struct {
	UnitID string    `json:"unit_id,omitempty"`
	At     time.Time `json:"at,omitempty"`
	Count  int       `json:"count,omitempty"`
}

// Snapshot is a point-in-time view for status surfaces.
type Snapshot struct {
	Enabled  bool
	Mode     string
	Days     string
	Window   string
	PerDay   int
	NextUnit string
	NextAt   time.Time
	Pending  int
	Items    int
	Unseen   int
}

// UnitScheduler is the slice of the deferred scheduler the orchestrator
// needs. *deferred.Scheduler satisfies it.
type UnitScheduler interface {
	Arm(ctx context.Context, u deferred.Unit) error
	Cancel(ctx context.Context, id string) (bool, error)
	CancelAll(ctx context.Context) (int, error)
	Pending() []deferred.UnitInfo
}

// Sender hands a recorded delivery to the outbound pipeline. Send only
// covers enqueueing; transport failures surface later as delivery.failed
// events, never here.
type Sender interface {
	Send(ctx context.Context, d selector.Delivery) error
}
