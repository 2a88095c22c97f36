package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/config"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/delivery"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/eventbus"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/orchestrator"
	rtsup "github.com/n00bc0der89/MotivationCoach-sub000/internal/runtime/supervisor"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/selector"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/storage"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/deferred"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/engine"
	kit "github.com/n00bc0der89/MotivationCoach-sub000/internal/transport"
	telegram "github.com/n00bc0der89/MotivationCoach-sub000/internal/transport/telegram/adapter"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/transport/telegram/router"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

// App wires configuration, storage, the planner stack and the Telegram
// surface into one process.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sel    *selector.Selector
	engine *engine.Service
	units  *deferred.Scheduler
	pipe   *delivery.Service
	orch   *orchestrator.Orchestrator

	router *router.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// The adapter comes up before the logging service so its constructor
	// failures are still visible somewhere.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(acfg, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", storageDriverName(sc)))

	sel := selector.New(store, log, bus)

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "engine")), bus)

	dcfg, err := mapDeferredConfig(cfg)
	if err != nil {
		return nil, err
	}
	units := deferred.New(dcfg, store, eng, log.With(logx.String("comp", "deferred")))

	pcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	pipe := delivery.New(pcfg, ad, log.With(logx.String("comp", "delivery")), bus)

	ocfg, err := mapOrchestratorConfig(cfg)
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(ocfg, store, sel, units, pipe,
		log.With(logx.String("comp", "orchestrator")), bus)
	units.SetHandler(orch.HandleFire)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sel:     sel,
		engine:  eng,
		units:   units,
		pipe:    pipe,
		orch:    orch,
		updates: make(chan kit.Update, 256),
	}

	a.router = router.New(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	a.router.Register(a.commands()...)

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal
// error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.engine.Start(a.sup.Context())
	a.pipe.Start(a.sup.Context())
	if err := a.units.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("deferred scheduler: %w", err)
	}

	cfg := a.cfgm.Get()
	if err := a.bootstrapContent(ctx, cfg); err != nil {
		// A stale seed path must not keep an already-populated bot down.
		a.log.Warn("catalog seed failed", logx.Err(err))
	}
	if err := a.bootstrapSchedule(ctx, cfg); err != nil {
		return fmt.Errorf("schedule bootstrap: %w", err)
	}
	if cfg.Delivery == nil || cfg.Delivery.ChatID == 0 {
		a.log.Warn("delivery.chat_id is not configured; deliveries will fail until it is set")
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// Event log for observability/debug; components publish, this sink
	// only mirrors them at debug level.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// bootstrapContent syncs the YAML seed catalog into the store.
func (a *App) bootstrapContent(ctx context.Context, cfg *config.Config) error {
	path := strings.TrimSpace(cfg.Content.SeedPath)
	if path == "" {
		return nil
	}
	items, err := content.LoadSeed(path)
	if err != nil {
		return err
	}
	added, err := a.store.SyncCatalog(ctx, items)
	if err != nil {
		return err
	}
	total, err := a.store.CountItems(ctx)
	if err != nil {
		return err
	}
	a.log.Info("catalog synced", logx.Int("added", added), logx.Int("total", total))
	return nil
}

// bootstrapSchedule seeds stored preferences from the config file (or
// applies a file edit made while the process was down), then makes sure
// exactly one unit is armed. ApplyPreferences is an equality no-op, so
// the common restart path leaves the restored chain alone.
func (a *App) bootstrapSchedule(ctx context.Context, cfg *config.Config) error {
	prefs, err := cfg.Schedule.ToPreferences()
	if err != nil {
		return err
	}
	changed, err := a.orch.ApplyPreferences(ctx, prefs)
	if err != nil {
		return err
	}
	if changed {
		a.log.Info("schedule preferences written from config")
		return nil
	}
	plan, err := a.orch.EnsurePlanned(ctx)
	if err != nil {
		return err
	}
	switch plan.State {
	case orchestrator.PlanPlanned:
		a.log.Info("delivery chain armed", logx.String("unit", plan.UnitID), logx.Time("at", plan.At))
	case orchestrator.PlanDisabled:
		a.log.Info("scheduled delivery disabled")
	case orchestrator.PlanNoSlot:
		a.log.Warn("no eligible delivery slot within the lookahead horizon")
	}
	return nil
}

// RunOnce performs a single manual delivery and exits: storage and the
// outbound pipeline come up, one item is selected and flushed, nothing
// is armed. Made for cron-style -deliver-now invocations.
func (a *App) RunOnce(ctx context.Context) (orchestrator.Trigger, error) {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))

	cfg := a.cfgm.Get()
	if err := a.bootstrapContent(ctx, cfg); err != nil {
		a.log.Warn("catalog seed failed", logx.Err(err))
	}

	a.pipe.Start(a.sup.Context())

	tr, err := a.orch.TriggerManual(ctx)

	// Flush the queue before tearing down, even when the trigger failed.
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	a.pipe.Stop(stopCtx)
	cancel()
	a.sup.Cancel()

	if cerr := a.store.Close(); cerr != nil {
		a.log.Warn("storage close failed", logx.Err(cerr))
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return tr, err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step runs one shutdown stage with an upper bound so a single
	// component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it
			// doesn't, log a leak signal and observe the eventual finish.
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Order: stop the timer chain first so nothing new fires, drain
	// execution and the outbound queue, then drop the transport and
	// storage underneath them.
	step("deferred", 2*time.Second, func(c context.Context) error { a.units.Stop(c); return nil })
	step("engine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("delivery", 3*time.Second, func(c context.Context) error { a.pipe.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, the
	// command dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
