package app

import (
	"context"
	"strings"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/config"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// reloadLoop applies committed config updates to running components.
// The manager only publishes configs that already passed validation.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logs.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Debug("config change summary", fields...)
			} else {
				a.log.Debug("config reload received, but no effective changes detected")
			}
			prev := lastApplied
			lastApplied = newCfg

			if hasSection(sections, "storage") {
				a.log.Warn("storage config changed; restart required for changes to take effect")
			}
			if hasSection(sections, "telegram") && telegramRestartRequired(prev, newCfg) {
				a.log.Warn("telegram token/poll_timeout changed; restart required for changes to take effect")
			}

			// Logging first so later apply steps land at the new level.
			a.logs.Apply(mapLoggingConfig(newCfg))

			// Owner list used for owner-only command checks.
			a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

			if ecfg, err := mapEngineConfig(newCfg); err != nil {
				a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
			} else {
				a.engine.Apply(ctx, ecfg)
			}
			if pcfg, err := mapDeliveryConfig(newCfg); err != nil {
				a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
			} else {
				a.pipe.Apply(pcfg)
			}
			if dcfg, err := mapDeferredConfig(newCfg); err != nil {
				a.log.Warn("invalid planner config; keeping previous", logx.Err(err))
			} else {
				a.units.Apply(dcfg)
			}
			if ocfg, err := mapOrchestratorConfig(newCfg); err != nil {
				a.log.Warn("invalid orchestrator config; keeping previous", logx.Err(err))
			} else {
				a.orch.Apply(ocfg)
			}

			// A schedule edit in the file is a preference write-through: it
			// lands in the store and replans when it differs from what is
			// stored. A planner-only edit replans against the stored prefs.
			replanned := false
			if hasSection(sections, "schedule") {
				if prefs, err := newCfg.Schedule.ToPreferences(); err != nil {
					a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
				} else if changed, err := a.orch.ApplyPreferences(ctx, prefs); err != nil {
					a.log.Warn("schedule preferences apply failed", logx.Err(err))
				} else if changed {
					replanned = true
					a.log.Info("schedule preferences updated from config")
				}
			}
			if hasSection(sections, "planner") && !replanned {
				if _, err := a.orch.RescheduleAll(ctx); err != nil {
					a.log.Warn("replan after planner change failed", logx.Err(err))
				}
			}

			if hasSection(sections, "content") {
				if err := a.bootstrapContent(ctx, newCfg); err != nil {
					a.log.Warn("catalog re-seed failed", logx.Err(err))
				}
			}

			// Keep the final log line concise (details are in debug logs).
			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

func hasSection(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}

// telegramRestartRequired reports whether the telegram change touches
// fields the running adapter cannot pick up live. Owner list changes
// are hot-applied and do not count.
func telegramRestartRequired(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return true
	}
	return strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)
}
