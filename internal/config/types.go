package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/schedule"
)

// Config is the on-disk configuration. The schedule section only SEEDS
// the stored preferences: after first run the store is the source of
// truth and a file edit is applied as a preference write-through.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`

	// Planner tunes the slot search and the deferred timer layer.
	Planner *PlannerConfig `json:"planner,omitempty"`

	// Delivery addresses and paces the outbound pipeline.
	Delivery *DeliveryConfig `json:"delivery,omitempty"`

	// Engine sizes the worker pool that executes fired units.
	Engine *EngineConfig `json:"engine,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Content ContentConfig  `json:"content"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OwnerUserIDs may use every command; empty means commands are open
	// to anyone who can see the bot.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is the long-poll duration, e.g. "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig mirrors schedule.Preferences in file-friendly form.
type ScheduleConfig struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"` // all_days | weekdays | weekends | custom

	// Days lists weekday names ("mon", "tuesday") and is only consulted
	// in custom mode.
	Days []string `json:"days,omitempty"`

	WindowStart string `json:"window_start"` // "09:00"
	WindowEnd   string `json:"window_end"`   // "21:00"
	PerDay      int    `json:"per_day"`      // 1..10

	// Timezone anchors day boundaries and window instants
	// ("Europe/Berlin"); empty means the host timezone.
	Timezone string `json:"timezone,omitempty"`
}

// ToPreferences parses the section into the planner's preference type.
func (s ScheduleConfig) ToPreferences() (schedule.Preferences, error) {
	mode, err := schedule.ParseMode(s.Mode)
	if err != nil {
		return schedule.Preferences{}, fmt.Errorf("schedule.mode: %w", err)
	}
	days, err := schedule.ParseDays(s.Days)
	if err != nil {
		return schedule.Preferences{}, fmt.Errorf("schedule.days: %w", err)
	}
	start, err := schedule.ParseTimeOfDay(s.WindowStart)
	if err != nil {
		return schedule.Preferences{}, fmt.Errorf("schedule.window_start: %w", err)
	}
	end, err := schedule.ParseTimeOfDay(s.WindowEnd)
	if err != nil {
		return schedule.Preferences{}, fmt.Errorf("schedule.window_end: %w", err)
	}

	p := schedule.Preferences{
		Enabled:     s.Enabled,
		Mode:        mode,
		CustomDays:  days,
		WindowStart: start,
		WindowEnd:   end,
		PerDay:      s.PerDay,
	}
	if err := p.Validate(); err != nil {
		return schedule.Preferences{}, err
	}
	return p, nil
}

type PlannerConfig struct {
	// LookaheadDays bounds the slot search; 0 means 14.
	LookaheadDays int `json:"lookahead_days,omitempty"`

	// MinSlotGap is the advisory minimum spacing between same-day slots;
	// empty means "30m". Tighter plans still run, with a warning.
	MinSlotGap string `json:"min_slot_gap,omitempty"`

	// CatchUpDelay postpones past-due units restored at startup; empty
	// means "5s".
	CatchUpDelay string `json:"catch_up_delay,omitempty"`

	// FireTimeout caps one fired unit end to end; empty means "2m".
	FireTimeout string `json:"fire_timeout,omitempty"`

	// TagBias softly prefers catalog items carrying any of these tags.
	TagBias []string `json:"tag_bias,omitempty"`
}

type DeliveryConfig struct {
	// ChatID is the delivery target. 0 leaves the pipeline without a
	// target; sends then fail until it is configured.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type EngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./coach.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type ContentConfig struct {
	// SeedPath points at the YAML catalog synced into the store at
	// startup. Empty skips seeding.
	SeedPath string `json:"seed_path,omitempty"`
}

// Validate checks everything that can be checked without touching the
// outside world. It is installed as the watch validator so a broken
// file edit never reaches the running services.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Schedule.ToPreferences(); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}

	if p := c.Planner; p != nil {
		if p.LookaheadDays < 0 {
			errs = append(errs, errors.New("planner.lookahead_days: must be >= 0"))
		}
		for path, raw := range map[string]string{
			"planner.min_slot_gap":   p.MinSlotGap,
			"planner.catch_up_delay": p.CatchUpDelay,
			"planner.fire_timeout":   p.FireTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if d := c.Delivery; d != nil {
		if d.Workers < 0 || d.QueueSize < 0 || d.RatePerSec < 0 || d.RetryMax < 0 {
			errs = append(errs, errors.New("delivery: counts must be >= 0"))
		}
		for path, raw := range map[string]string{
			"delivery.retry_base":      d.RetryBase,
			"delivery.retry_max_delay": d.RetryMaxDelay,
			"delivery.send_timeout":    d.SendTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if e := c.Engine; e != nil {
		if e.Workers < 0 || e.QueueSize < 0 || e.HistorySize < 0 {
			errs = append(errs, errors.New("engine: counts must be >= 0"))
		}
		for path, raw := range map[string]string{
			"engine.default_timeout": e.DefaultTimeout,
			"engine.max_queue_delay": e.MaxQueueDelay,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s := c.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "sqlite", "sqlite3", "memory", "mem":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
	}

	return errors.Join(errs...)
}
