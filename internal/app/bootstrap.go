package app

import (
	"strings"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/config"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/delivery"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/orchestrator"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/deferred"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/engine"
	telegram "github.com/n00bc0der89/MotivationCoach-sub000/internal/transport/telegram/adapter"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// Mapping from the on-disk config to per-component configs. Duration
// fields arrive as strings; everything here parses them once so the
// components only ever see time.Duration. Zero values defer to each
// component's own defaults.

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: poll,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	s := cfg.Storage
	if s == nil {
		return storage.Config{Driver: "sqlite"}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	if busy <= 0 {
		busy = time.Second
	}
	return storage.Config{
		Driver:      s.Driver,
		Path:        s.Path,
		BusyTimeout: busy,
	}, nil
}

func storageDriverName(sc storage.Config) string {
	d := strings.ToLower(strings.TrimSpace(sc.Driver))
	if d == "" {
		return "sqlite"
	}
	return d
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	e := cfg.Engine
	if e == nil {
		return engine.Config{DefaultTimeout: 2 * time.Minute}, nil
	}
	timeout, err := config.ParseDurationOrDefault("engine.default_timeout", e.DefaultTimeout, 2*time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("engine.max_queue_delay", e.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        e.Workers,
		QueueSize:      e.QueueSize,
		DefaultTimeout: timeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    e.HistorySize,
	}, nil
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	d := cfg.Delivery
	if d == nil {
		return delivery.Config{}, nil
	}
	retryBase, err := config.ParseDurationField("delivery.retry_base", d.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("delivery.retry_max_delay", d.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("delivery.send_timeout", d.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		ChatID:        d.ChatID,
		ThreadID:      d.ThreadID,
		Workers:       d.Workers,
		QueueSize:     d.QueueSize,
		RatePerSec:    d.RatePerSec,
		RetryMax:      d.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

func mapDeferredConfig(cfg *config.Config) (deferred.Config, error) {
	out := deferred.Config{Timezone: cfg.Schedule.Timezone}
	p := cfg.Planner
	if p == nil {
		return out, nil
	}
	catchUp, err := config.ParseDurationField("planner.catch_up_delay", p.CatchUpDelay)
	if err != nil {
		return deferred.Config{}, err
	}
	fireTimeout, err := config.ParseDurationField("planner.fire_timeout", p.FireTimeout)
	if err != nil {
		return deferred.Config{}, err
	}
	out.CatchUpDelay = catchUp
	out.FireTimeout = fireTimeout
	return out, nil
}

func mapOrchestratorConfig(cfg *config.Config) (orchestrator.Config, error) {
	out := orchestrator.Config{Timezone: cfg.Schedule.Timezone}
	p := cfg.Planner
	if p == nil {
		return out, nil
	}
	minGap, err := config.ParseDurationField("planner.min_slot_gap", p.MinSlotGap)
	if err != nil {
		return orchestrator.Config{}, err
	}
	out.LookaheadDays = p.LookaheadDays
	out.MinSlotGap = minGap
	out.TagBias = append([]string(nil), p.TagBias...)
	return out, nil
}
