package main

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sd_notify integration for Type=notify units. Every call is a no-op
// when NOTIFY_SOCKET is absent, so running outside systemd costs
// nothing.

func notifyReady()    { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
func notifyStopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

// startWatchdog feeds the systemd watchdog at half the configured
// interval. The returned stop func is safe to call when no watchdog is
// configured.
func startWatchdog(ctx context.Context) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return func() {}
	}
	wctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return cancel
}
