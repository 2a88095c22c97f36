package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// SummarizeConfigChange returns a compact, sorted list of changed
// sections plus safe structured attrs for logging. Secrets (the bot
// token) are never included; only their presence is.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log the token itself)
	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Schedule (seeds preferences; a change here becomes a write-through)
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.mode", strings.TrimSpace(newCfg.Schedule.Mode)),
			logx.String("schedule.window", strings.TrimSpace(newCfg.Schedule.WindowStart)+"-"+strings.TrimSpace(newCfg.Schedule.WindowEnd)),
			logx.Int("schedule.per_day", newCfg.Schedule.PerDay),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	// Planner
	oP := derefPlanner(oldCfg.Planner)
	nP := derefPlanner(newCfg.Planner)
	if (oldCfg.Planner != nil) != (newCfg.Planner != nil) || !reflect.DeepEqual(oP, nP) {
		changed = append(changed, "planner")
		attrs = append(attrs,
			logx.Int("planner.lookahead_days", nP.LookaheadDays),
			logx.String("planner.min_slot_gap", strings.TrimSpace(nP.MinSlotGap)),
			logx.String("planner.catch_up_delay", strings.TrimSpace(nP.CatchUpDelay)),
			logx.Int("planner.tag_bias_count", len(nP.TagBias)),
		)
	}

	// Delivery
	oD := derefDelivery(oldCfg.Delivery)
	nD := derefDelivery(newCfg.Delivery)
	if (oldCfg.Delivery != nil) != (newCfg.Delivery != nil) || oD != nD {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.chat_set", nD.ChatID != 0),
			logx.Int("delivery.thread_id", nD.ThreadID),
			logx.Int("delivery.workers", nD.Workers),
			logx.Int("delivery.queue_size", nD.QueueSize),
			logx.Int("delivery.rate_per_sec", nD.RatePerSec),
			logx.Int("delivery.retry_max", nD.RetryMax),
		)
	}

	// Engine
	oE := derefEngine(oldCfg.Engine)
	nE := derefEngine(newCfg.Engine)
	if (oldCfg.Engine != nil) != (newCfg.Engine != nil) || oE != nE {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", nE.Workers),
			logx.Int("engine.queue_size", nE.QueueSize),
			logx.String("engine.default_timeout", strings.TrimSpace(nE.DefaultTimeout)),
			logx.String("engine.max_queue_delay", strings.TrimSpace(nE.MaxQueueDelay)),
		)
	}

	// Storage
	oS := derefStorage(oldCfg.Storage)
	nS := derefStorage(newCfg.Storage)
	if (oldCfg.Storage != nil) != (newCfg.Storage != nil) || oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	// Content
	if strings.TrimSpace(oldCfg.Content.SeedPath) != strings.TrimSpace(newCfg.Content.SeedPath) {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.Bool("content.seed_set", strings.TrimSpace(newCfg.Content.SeedPath) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefPlanner(p *PlannerConfig) PlannerConfig {
	if p == nil {
		return PlannerConfig{}
	}
	return *p
}

func derefDelivery(d *DeliveryConfig) DeliveryConfig {
	if d == nil {
		return DeliveryConfig{}
	}
	return *d
}

func derefEngine(e *EngineConfig) EngineConfig {
	if e == nil {
		return EngineConfig{}
	}
	return *e
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
