package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/app"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/orchestrator"
)

func main() {
	var cfgPath string
	var deliverNow bool
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json")
	flag.BoolVar(&deliverNow, "deliver-now", false, "deliver one item immediately and exit")
	flag.Parse()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if deliverNow {
		runOnce(a)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	notifyReady()
	stopWatchdog := startWatchdog(ctx)

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	reason := app.StopUnknown
	select {
	case sig := <-sigc:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	notifyStopping()
	stopWatchdog()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}

// runOnce serves -deliver-now: one selection, one send, exit. Meant for
// cron or ad-hoc shell use next to (not instead of) the daemon.
func runOnce(a *app.App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tr, err := a.RunOnce(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "deliver-now:", err)
		os.Exit(1)
	}
	switch tr.State {
	case orchestrator.TriggerDelivered:
		fmt.Println("delivered", tr.Delivery.Item.ID)
	case orchestrator.TriggerExhausted:
		fmt.Println("catalog exhausted — clear the ledger (/reset) to start the rotation over")
	}
}
